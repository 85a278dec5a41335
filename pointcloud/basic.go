package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// basicPointCloud keeps points in insertion order, with an index by exact position so that
// setting an existing point replaces its data.
type basicPointCloud struct {
	points []PointAndData
	index  map[r3.Vector]int
	meta   MetaData
}

// New returns an empty cloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty cloud with room for size points.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points: make([]PointAndData, 0, size),
		index:  make(map[r3.Vector]int, size),
		meta:   NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(x, y, z float64) (Data, bool) {
	i, ok := cloud.index[r3.Vector{X: x, Y: y, Z: z}]
	if !ok {
		return nil, false
	}
	return cloud.points[i].D, true
}

func finite(p r3.Vector) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Set rejects non finite positions since they cannot be indexed.
func (cloud *basicPointCloud) Set(p r3.Vector, d Data) error {
	if !finite(p) {
		return errors.Errorf("cannot store non finite point %v", p)
	}
	if i, ok := cloud.index[p]; ok {
		cloud.points[i].D = d
		return nil
	}
	cloud.index[p] = len(cloud.points)
	cloud.points = append(cloud.points, PointAndData{P: p, D: d})
	cloud.meta.Merge(p, d)
	return nil
}

// Iterate visits points in insertion order. With numBatches > 0 the points are split into that
// many contiguous ranges and only range myBatch is visited.
func (cloud *basicPointCloud) Iterate(numBatches, myBatch int, fn func(p r3.Vector, d Data) bool) {
	lo, hi := 0, len(cloud.points)
	if numBatches > 0 {
		n := len(cloud.points)
		lo = (n*myBatch + numBatches - 1) / numBatches
		hi = min((n*(myBatch+1)+numBatches-1)/numBatches, n)
		lo = min(lo, hi)
	}
	for _, pd := range cloud.points[lo:hi] {
		if !fn(pd.P, pd.D) {
			return
		}
	}
}
