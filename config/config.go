// Package config defines the structures to configure an agimus planning session
// and the functions to read them from JSON files.
package config

import (
	"fmt"
	"net"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/agimus-project/agimus/fieldofview"
	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/problem"
	"github.com/agimus-project/agimus/referenceframe"
	"github.com/agimus-project/agimus/server"
	"github.com/agimus-project/agimus/spatialmath"
	"github.com/agimus-project/agimus/trajectory"
)

// Frame types of the robot section.
const (
	FrameTypeStatic    = "static"
	FrameTypeRevolute  = "revolute"
	FrameTypePrismatic = "prismatic"
)

// Config describes a planning session: the robot, its environment, the paths
// to replay and the services around them.
type Config struct {
	ConfigFilePath string `json:"-"`

	Robot         RobotConfig          `json:"robot"`
	Obstacles     []ObstacleConfig     `json:"obstacles,omitempty"`
	Paths         []PathConfig         `json:"paths,omitempty"`
	FeatureGroups []FeatureGroupConfig `json:"feature_groups,omitempty"`
	PointCloud    *PointCloudConfig    `json:"point_cloud,omitempty"`
	Publisher     PublisherConfig      `json:"publisher"`
	Network       NetworkConfig        `json:"network"`
	Debug         bool                 `json:"debug,omitempty"`
	LogFile       *LogFileConfig       `json:"log_file,omitempty"`
	Extra         AttributeMap         `json:"extra,omitempty"`
}

// Ensure validates the config and fills in defaults.
func (c *Config) Ensure() error {
	err := c.Robot.Validate("robot")
	for idx := range c.Obstacles {
		err = multierr.Append(err, c.Obstacles[idx].Validate(fmt.Sprintf("obstacles.%d", idx)))
	}
	for idx := range c.Paths {
		err = multierr.Append(err, c.Paths[idx].Validate(fmt.Sprintf("paths.%d", idx)))
	}
	if c.PointCloud != nil {
		err = multierr.Append(err, c.PointCloud.Validate("point_cloud"))
	}
	err = multierr.Append(err, c.Publisher.Validate("publisher"))
	err = multierr.Append(err, c.Network.Validate("network"))
	if c.LogFile != nil {
		err = multierr.Append(err, c.LogFile.Validate("log_file"))
		if !filepath.IsAbs(c.LogFile.Path) && c.ConfigFilePath != "" {
			c.LogFile.Path = filepath.Join(filepath.Dir(c.ConfigFilePath), c.LogFile.Path)
		}
	}
	return err
}

// Translation is a translation in millimeters.
type Translation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vector returns the translation as a vector.
func (t Translation) Vector() r3.Vector {
	return r3.Vector{X: t.X, Y: t.Y, Z: t.Z}
}

// RobotConfig describes the kinematic tree of the robot, either inline or as a URDF file.
type RobotConfig struct {
	Name string `json:"name"`
	// URDF is a path, relative to the config file, to a URDF description of the robot.
	URDF                 string        `json:"urdf,omitempty"`
	Frames               []FrameConfig `json:"frames,omitempty"`
	InitialConfiguration []float64     `json:"initial_configuration,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *RobotConfig) Validate(path string) error {
	if config.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.URDF == "" && len(config.Frames) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "frames")
	}
	if config.URDF != "" && len(config.Frames) != 0 {
		return goutils.NewConfigValidationError(path, errors.New("cannot set both urdf and frames"))
	}
	var err error
	for idx := range config.Frames {
		err = multierr.Append(err, config.Frames[idx].Validate(fmt.Sprintf("%s.frames.%d", path, idx)))
	}
	return err
}

// Model builds the robot model. A relative URDF path is resolved against dir.
func (config *RobotConfig) Model(dir string) (*referenceframe.Model, error) {
	if config.URDF != "" {
		urdf := config.URDF
		if !filepath.IsAbs(urdf) {
			urdf = filepath.Join(dir, urdf)
		}
		return referenceframe.ParseURDFFile(urdf, config.Name)
	}
	model := referenceframe.NewModel(config.Name)
	for _, fc := range config.Frames {
		frame, err := fc.Frame()
		if err != nil {
			return nil, err
		}
		if err := model.AddFrameWithPlacement(frame, fc.parent(), fc.Placement(), fc.Mass); err != nil {
			return nil, err
		}
	}
	return model, nil
}

// FrameConfig describes one frame of the robot, placed relative to its parent.
type FrameConfig struct {
	Name        string      `json:"name"`
	Parent      string      `json:"parent,omitempty"`
	Type        string      `json:"type,omitempty"`
	Translation Translation `json:"translation"`
	// Orientation is a quaternion [w, x, y, z].
	Orientation []float64   `json:"orientation,omitempty"`
	Axis        Translation `json:"axis"`
	Min         float64     `json:"min,omitempty"`
	Max         float64     `json:"max,omitempty"`
	Mass        float64     `json:"mass,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *FrameConfig) Validate(path string) error {
	if config.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.Orientation != nil && len(config.Orientation) != 4 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("orientation must have 4 components, got %d", len(config.Orientation)))
	}
	if config.Mass < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("negative mass %g", config.Mass))
	}
	switch config.Type {
	case "", FrameTypeStatic:
	case FrameTypeRevolute, FrameTypePrismatic:
		if config.Axis.Vector().Norm() == 0 {
			return goutils.NewConfigValidationFieldRequiredError(path, "axis")
		}
		if config.Min > config.Max {
			return goutils.NewConfigValidationError(path, errors.Errorf("min %g is greater than max %g", config.Min, config.Max))
		}
	default:
		return goutils.NewConfigValidationError(path, referenceframe.NewUnsupportedJointTypeError(config.Type))
	}
	return nil
}

func (config *FrameConfig) parent() string {
	if config.Parent == "" {
		return referenceframe.World
	}
	return config.Parent
}

// Placement returns the pose of the frame relative to its parent.
func (config *FrameConfig) Placement() spatialmath.Pose {
	if config.Orientation == nil {
		return spatialmath.NewPoseFromPoint(config.Translation.Vector())
	}
	return spatialmath.NewPose(config.Translation.Vector(), spatialmath.QuatFromSlice(config.Orientation))
}

// Frame builds the frame described by the config.
func (config *FrameConfig) Frame() (referenceframe.Frame, error) {
	limit := referenceframe.Limit{Min: config.Min, Max: config.Max}
	switch config.Type {
	case "", FrameTypeStatic:
		return referenceframe.NewZeroStaticFrame(config.Name), nil
	case FrameTypeRevolute:
		return referenceframe.NewRotationalFrame(config.Name, config.Axis.Vector(), limit)
	case FrameTypePrismatic:
		return referenceframe.NewTranslationalFrame(config.Name, config.Axis.Vector(), limit)
	default:
		return nil, referenceframe.NewUnsupportedJointTypeError(config.Type)
	}
}

// ObstacleConfig describes a box obstacle attached to a frame of the robot or to the world.
type ObstacleConfig struct {
	Name        string      `json:"name"`
	Frame       string      `json:"frame,omitempty"`
	Translation Translation `json:"translation"`
	Dims        Translation `json:"dims"`
}

// Validate ensures all parts of the config are valid.
func (config *ObstacleConfig) Validate(path string) error {
	if config.Name == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	d := config.Dims
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("invalid dims %v", d.Vector()))
	}
	return nil
}

// Box returns the geometry of the obstacle in the frame it is attached to.
func (config *ObstacleConfig) Box() (*spatialmath.Box, error) {
	return spatialmath.NewBox(spatialmath.NewPoseFromPoint(config.Translation.Vector()), config.Dims.Vector(), config.Name)
}

func (config *ObstacleConfig) frame() string {
	if config.Frame == "" {
		return referenceframe.World
	}
	return config.Frame
}

// PathConfig describes a piecewise linear path between configurations.
type PathConfig struct {
	Waypoints [][]float64 `json:"waypoints"`
	// Duration is the time, in seconds, to go through every waypoint.
	Duration float64 `json:"duration"`
}

// Validate ensures all parts of the config are valid.
func (config *PathConfig) Validate(path string) error {
	if len(config.Waypoints) == 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "waypoints")
	}
	if config.Duration < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("negative duration %g", config.Duration))
	}
	return nil
}

// FeatureConfig describes a visual feature.
type FeatureConfig struct {
	Name string  `json:"name"`
	Size float64 `json:"size"`
}

// FeatureGroupConfig describes a group of features that should stay visible.
type FeatureGroupConfig struct {
	VisibilityThreshold int             `json:"visibility_threshold"`
	DepthMargin         float64         `json:"depth_margin"`
	SizeMargin          float64         `json:"size_margin"`
	Features            []FeatureConfig `json:"features"`
}

// FeatureGroup builds the feature group.
func (config *FeatureGroupConfig) FeatureGroup() *fieldofview.FeatureGroup {
	g := fieldofview.NewFeatureGroup(config.VisibilityThreshold, config.DepthMargin, config.SizeMargin)
	for _, f := range config.Features {
		g.AddFeature(fieldofview.NewFeature(f.Name, f.Size))
	}
	return g
}

// ObjectPlaneConfig describes the plane below which points are dropped.
type ObjectPlaneConfig struct {
	Frame  string      `json:"frame"`
	Point  Translation `json:"point"`
	Normal Translation `json:"normal"`
	Margin float64     `json:"margin"`
}

// PointCloudConfig describes how octree obstacles are built from a point cloud topic.
type PointCloudConfig struct {
	Topic          string             `json:"topic"`
	SensorFrame    string             `json:"sensor_frame"`
	OctreeFrame    string             `json:"octree_frame"`
	Resolution     float64            `json:"resolution"`
	MinDistance    float64            `json:"min_distance,omitempty"`
	MaxDistance    float64            `json:"max_distance,omitempty"`
	TimeoutSeconds float64            `json:"timeout_seconds,omitempty"`
	ObjectPlane    *ObjectPlaneConfig `json:"object_plane,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *PointCloudConfig) Validate(path string) error {
	var err error
	if config.Topic == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "topic"))
	}
	if config.SensorFrame == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "sensor_frame"))
	}
	if config.OctreeFrame == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "octree_frame"))
	}
	if config.Resolution <= 0 {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "resolution"))
	}
	if config.MaxDistance != 0 && config.MaxDistance < config.MinDistance {
		err = multierr.Append(err, goutils.NewConfigValidationError(path,
			errors.Errorf("max_distance %g is lower than min_distance %g", config.MaxDistance, config.MinDistance)))
	}
	if config.ObjectPlane != nil && config.ObjectPlane.Frame == "" {
		err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path+".object_plane", "frame"))
	}
	return err
}

// PublisherConfig configures the trajectory publisher and the discretization topics.
type PublisherConfig struct {
	trajectory.Config
	TopicPrefix string `json:"topic_prefix,omitempty"`
	// OperationalFrames are published with both position and velocity.
	OperationalFrames []string `json:"operational_frames,omitempty"`
	JointNames        []string `json:"joint_names,omitempty"`
	CenterOfMass      bool     `json:"center_of_mass,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (config *PublisherConfig) Validate(path string) error {
	if err := config.Config.Validate(); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	return nil
}

// DefaultBindAddress is the default address that will be listened on.
const DefaultBindAddress = server.DefaultAddress

// NetworkConfig describes networking settings for the HTTP API.
type NetworkConfig struct {
	BindAddress string `json:"bind_address,omitempty"`
	CORS        bool   `json:"cors,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (nc *NetworkConfig) Validate(path string) error {
	if nc.BindAddress == "" {
		nc.BindAddress = DefaultBindAddress
	}
	if _, _, err := net.SplitHostPort(nc.BindAddress); err != nil {
		return goutils.NewConfigValidationError(path, errors.Wrap(err, "error validating bind_address"))
	}
	return nil
}

// Options returns the options of the HTTP API.
func (nc NetworkConfig) Options() server.Options {
	return server.Options{Address: nc.BindAddress, CORS: nc.CORS}
}

// defaultLogFileMaxSizeMB is the size a log file may reach before it is rotated.
const defaultLogFileMaxSizeMB = 100

// LogFileConfig describes a rotated log file written next to the console output.
type LogFileConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (lc *LogFileConfig) Validate(path string) error {
	if lc.Path == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if lc.MaxSizeMB < 0 || lc.MaxBackups < 0 || lc.MaxAgeDays < 0 {
		return goutils.NewConfigValidationError(path, errors.New("rotation limits must not be negative"))
	}
	if lc.MaxSizeMB == 0 {
		lc.MaxSizeMB = defaultLogFileMaxSizeMB
	}
	return nil
}

// Appender returns the logging appender writing to the file.
func (lc LogFileConfig) Appender() *logging.FileAppender {
	return logging.NewFileAppender(logging.FileAppenderConfig{
		Filename:   lc.Path,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	})
}

// NewSolver builds the robot, adds the obstacles and the paths and sets the
// initial configuration.
func (c *Config) NewSolver(logger logging.Logger) (*problem.Solver, error) {
	model, err := c.Robot.Model(filepath.Dir(c.ConfigFilePath))
	if err != nil {
		return nil, errors.Wrap(err, "cannot build robot")
	}
	ps, err := problem.NewSolver(model, logger)
	if err != nil {
		return nil, err
	}
	if q := c.Robot.InitialConfiguration; q != nil {
		if err := ps.SetCurrentConfiguration(q); err != nil {
			return nil, errors.Wrap(err, "invalid initial configuration")
		}
	}
	for _, oc := range c.Obstacles {
		box, err := oc.Box()
		if err != nil {
			return nil, err
		}
		if err := ps.AddObstacle(oc.Name, oc.frame(), []*spatialmath.Box{box}); err != nil {
			return nil, errors.Wrapf(err, "cannot add obstacle %q", oc.Name)
		}
	}
	for idx, pc := range c.Paths {
		p, err := problem.NewStraightPath(pc.Waypoints, pc.Duration)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid path %d", idx)
		}
		ps.AddPath(p)
	}
	return ps, nil
}

// NewFeatureGroups builds the feature groups of the config.
func (c *Config) NewFeatureGroups() []*fieldofview.FeatureGroup {
	return lo.Map(c.FeatureGroups, func(fg FeatureGroupConfig, _ int) *fieldofview.FeatureGroup {
		return fg.FeatureGroup()
	})
}
