// Package perception turns point clouds received on the topic bus into octree obstacles attached to
// the robot.
package perception

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/pointcloud"
	"github.com/agimus-project/agimus/problem"
	"github.com/agimus-project/agimus/spatialmath"
	"github.com/agimus-project/agimus/topics"
	"github.com/agimus-project/agimus/utils"
)

// ObstaclePrefix prefixes the name of the obstacles built from point clouds.
const ObstaclePrefix = "octree/"

// ErrClosed is returned when building a point cloud after Close.
var ErrClosed = errors.New("point cloud builder is closed")

// ObstacleName returns the name of the obstacle built in octreeFrame.
func ObstacleName(octreeFrame string) string {
	return ObstaclePrefix + octreeFrame
}

// NewTimeoutError is returned when no point cloud arrived on topic in time.
func NewTimeoutError(topic string, timeout time.Duration) error {
	return errors.Errorf("timeout reached after %v waiting for a point cloud on topic %q", timeout, topic)
}

// IsTimeoutError returns whether err was returned because no point cloud arrived in time.
func IsTimeoutError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "timeout reached")
}

type objectPlane struct {
	frame  string
	point  r3.Vector
	normal r3.Vector
	margin float64
}

// PointCloud builds obstacles from the clouds published by a depth sensor.
type PointCloud struct {
	buildMu sync.Mutex

	mu          sync.Mutex
	minDistance float64
	maxDistance float64
	plane       *objectPlane
	display     bool
	sub         *topics.Subscription
	closed      bool
	// accumulated clouds, per octree frame, expressed in that frame.
	accumulated map[string]pointcloud.PointCloud

	problem problem.ProblemSolver
	bus     *topics.Bus
	logger  logging.Logger
}

// New returns a builder keeping every point until distance bounds or an object plane are set.
func New(ps problem.ProblemSolver, bus *topics.Bus, logger logging.Logger) *PointCloud {
	return &PointCloud{
		minDistance: 0,
		maxDistance: math.Inf(1),
		accumulated: map[string]pointcloud.PointCloud{},
		problem:     ps,
		bus:         bus,
		logger:      logger,
	}
}

// SetDistanceBounds keeps only the points whose distance to the sensor is in [min, max].
func (pc *PointCloud) SetDistanceBounds(min, max float64) error {
	if min < 0 || max < min {
		return errors.Errorf("invalid distance bounds [%g, %g]", min, max)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.minDistance, pc.maxDistance = min, max
	return nil
}

// DistanceBounds returns the distance bounds.
func (pc *PointCloud) DistanceBounds() (float64, float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.minDistance, pc.maxDistance
}

// SetObjectPlane drops the points that are closer than margin above the plane through point with the
// given normal, both expressed in frame. Points under the plane are dropped too.
func (pc *PointCloud) SetObjectPlane(frame string, point, normal r3.Vector, margin float64) error {
	if normal.Norm() == 0 {
		return errors.New("object plane normal must not be zero")
	}
	if !pc.problem.Robot().HasFrame(frame) {
		return errors.Wrap(errNoFrame(frame), "cannot set object plane")
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.plane = &objectPlane{frame: frame, point: point, normal: normal.Normalize(), margin: margin}
	return nil
}

// ResetObjectPlane removes the object plane.
func (pc *PointCloud) ResetObjectPlane() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.plane = nil
}

// SetDisplay sets whether built octrees are logged.
func (pc *PointCloud) SetDisplay(display bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.display = display
}

// BuildPointCloud waits for a point cloud on topic, expressed in sensorFrame, and turns it into an
// octree obstacle attached to octreeFrame. Frame poses are computed at configuration q. Unless
// newPointCloud is set, the points are added to the ones received earlier for octreeFrame.
func (pc *PointCloud) BuildPointCloud(
	ctx context.Context,
	octreeFrame, topic, sensorFrame string,
	resolution float64,
	q []float64,
	timeout time.Duration,
	newPointCloud bool,
) error {
	pc.buildMu.Lock()
	defer pc.buildMu.Unlock()

	robot := pc.problem.Robot()
	for _, name := range []string{octreeFrame, sensorFrame} {
		if !robot.HasFrame(name) {
			return errNoFrame(name)
		}
	}
	if resolution <= 0 {
		return errors.Errorf("invalid octree resolution %g", resolution)
	}
	sensorPose, err := robot.FramePose(sensorFrame, q)
	if sensorPose == nil {
		return err
	}
	octreePose, err := robot.FramePose(octreeFrame, q)
	if octreePose == nil {
		return err
	}

	raw, err := pc.waitForPointCloud(ctx, topic, timeout)
	if err != nil {
		return err
	}

	pc.mu.Lock()
	minDistance, maxDistance, plane, display := pc.minDistance, pc.maxDistance, pc.plane, pc.display
	pc.mu.Unlock()

	keep := func(p r3.Vector, _ pointcloud.Data) bool {
		d := p.Norm()
		return d >= minDistance && d <= maxDistance
	}
	if plane != nil {
		planePose, err := robot.FramePose(plane.frame, q)
		if planePose == nil {
			return err
		}
		// plane expressed in the sensor frame
		toSensor := spatialmath.PoseBetween(sensorPose, planePose)
		planePt := spatialmath.TransformPoint(toSensor, plane.point)
		planeNormal := spatialmath.RotateVector(toSensor.Orientation(), plane.normal)
		inBounds := keep
		keep = func(p r3.Vector, d pointcloud.Data) bool {
			return inBounds(p, d) && spatialmath.DistanceToPlane(p, planePt, planeNormal) >= plane.margin
		}
	}
	filtered, err := pointcloud.Filter(raw, keep)
	if err != nil {
		return err
	}
	moved, err := pointcloud.ApplyPose(filtered, spatialmath.PoseBetween(octreePose, sensorPose))
	if err != nil {
		return err
	}

	pc.mu.Lock()
	if prev, ok := pc.accumulated[octreeFrame]; ok && !newPointCloud {
		if err := pointcloud.MergePointClouds(prev, moved); err != nil {
			pc.mu.Unlock()
			return err
		}
		moved = prev
	}
	pc.accumulated[octreeFrame] = moved
	pc.mu.Unlock()

	octree, err := pointcloud.NewOctreeFromPointCloud(moved, resolution)
	if err != nil {
		return errors.Wrap(err, "cannot build octree")
	}
	leaves := octree.Leaves()
	name := ObstacleName(octreeFrame)
	if err := pc.problem.AddObstacle(name, octreeFrame, leaves); err != nil {
		return err
	}
	pc.logger.CDebugw(ctx, "built octree obstacle",
		"obstacle", name, "received", raw.Size(), "kept", filtered.Size(), "leaves", len(leaves))
	if display {
		meta := octree.MetaData()
		pc.logger.Infow("octree",
			"obstacle", name,
			"leaves", len(leaves),
			"resolution", resolution,
			"min", r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ},
			"max", r3.Vector{X: meta.MaxX, Y: meta.MaxY, Z: meta.MaxZ})
	}
	return nil
}

// waitForPointCloud subscribes to topic and returns the first cloud received within timeout.
func (pc *PointCloud) waitForPointCloud(ctx context.Context, topic string, timeout time.Duration) (pointcloud.PointCloud, error) {
	sub, err := pc.bus.Subscribe(topic, 1)
	if err != nil {
		return nil, err
	}
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		pc.bus.Unsubscribe(sub)
		return nil, ErrClosed
	}
	pc.sub = sub
	pc.mu.Unlock()
	defer func() {
		pc.mu.Lock()
		pc.sub = nil
		pc.mu.Unlock()
		pc.bus.Unsubscribe(sub)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer utils.SlowLogger(waitCtx, clock.New(), "waiting for a point cloud", "topic", topic, pc.logger)()
	msg, err := sub.Next(waitCtx)
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, NewTimeoutError(topic, timeout)
	case errors.Is(err, topics.ErrClosed):
		return nil, ErrClosed
	case err != nil:
		return nil, err
	}
	cloud, err := utils.AssertType[pointcloud.PointCloud](msg.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid message on topic %q", topic)
	}
	return cloud, nil
}

// Close stops waiting for point clouds. Later builds fail with ErrClosed.
func (pc *PointCloud) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return nil
	}
	pc.closed = true
	if pc.sub != nil {
		pc.bus.Unsubscribe(pc.sub)
	}
	return nil
}

func errNoFrame(name string) error {
	return errors.Errorf("frame %q does not exist in the robot", name)
}
