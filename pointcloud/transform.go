package pointcloud

import (
	"github.com/golang/geo/r3"
	"go.uber.org/multierr"

	"github.com/agimus-project/agimus/spatialmath"
)

// ApplyPose returns a new cloud holding every point of cloud expressed in the parent frame of pose.
func ApplyPose(cloud PointCloud, pose spatialmath.Pose) (PointCloud, error) {
	out := NewWithPrealloc(cloud.Size())
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		multierr.AppendInto(&err, out.Set(spatialmath.TransformPoint(pose, p), d))
		return true
	})
	return out, err
}

// Filter returns a new cloud holding the points of cloud for which keep returns true.
func Filter(cloud PointCloud, keep func(p r3.Vector, d Data) bool) (PointCloud, error) {
	out := New()
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if keep(p, d) {
			multierr.AppendInto(&err, out.Set(p, d))
		}
		return true
	})
	return out, err
}

// MergePointClouds adds every point of the given clouds into dst. Later clouds overwrite the data
// of points at the same position.
func MergePointClouds(dst PointCloud, clouds ...PointCloud) error {
	var err error
	for _, cloud := range clouds {
		cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
			multierr.AppendInto(&err, dst.Set(p, d))
			return true
		})
	}
	return err
}

// Points returns the positions of the cloud in iteration order.
func Points(cloud PointCloud) []r3.Vector {
	out := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		out = append(out, p)
		return true
	})
	return out
}
