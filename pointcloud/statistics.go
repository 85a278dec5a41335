package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// DistanceStatistics summarizes the distances of the points of a cloud to an origin, in millimeters.
type DistanceStatistics struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	StdDev float64
}

// Statistics computes the distribution of the distances of every point of cloud to origin.
func Statistics(cloud PointCloud, origin r3.Vector) (DistanceStatistics, error) {
	if cloud.Size() == 0 {
		return DistanceStatistics{}, errors.New("cannot compute statistics of an empty point cloud")
	}
	distances := make(stats.Float64Data, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		distances = append(distances, p.Sub(origin).Norm())
		return true
	})

	mean, err := stats.Mean(distances)
	median, err2 := stats.Median(distances)
	minimum, err3 := stats.Min(distances)
	maximum, err4 := stats.Max(distances)
	stdDev, err5 := stats.StandardDeviation(distances)
	if err := multierr.Combine(err, err2, err3, err4, err5); err != nil {
		return DistanceStatistics{}, err
	}
	return DistanceStatistics{
		Count:  len(distances),
		Mean:   mean,
		Median: median,
		Min:    minimum,
		Max:    maximum,
		StdDev: stdDev,
	}, nil
}
