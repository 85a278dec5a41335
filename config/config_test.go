package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/spatialmath"
)

const testURDF = `<?xml version="1.0"?>
<robot name="pointer">
  <link name="base"><inertial><mass value="2"/></inertial></link>
  <link name="upper"><inertial><mass value="1"/></inertial></link>
  <joint name="shoulder" type="revolute">
    <parent link="base"/>
    <child link="upper"/>
    <origin xyz="0 0 0.1" rpy="0 0 0"/>
    <axis xyz="0 0 1"/>
    <limit lower="-1.5" upper="1.5"/>
  </joint>
</robot>`

func TestRead(t *testing.T) {
	t.Setenv("AGIMUS_BIND_ADDRESS", "localhost:9999")
	cfg, err := Read("data/robot.json")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "data/robot.json")
	test.That(t, cfg.Network.BindAddress, test.ShouldEqual, "localhost:9999")
	test.That(t, cfg.Network.Options().CORS, test.ShouldBeTrue)
	test.That(t, cfg.Robot.Frames, test.ShouldHaveLength, 5)
	test.That(t, cfg.Publisher.Frequency, test.ShouldEqual, 100.)
	test.That(t, cfg.Publisher.QueueSize, test.ShouldEqual, 0)
	test.That(t, cfg.Publisher.TopicPrefix, test.ShouldEqual, "/agimus")
	test.That(t, cfg.PointCloud.Resolution, test.ShouldEqual, 10.)

	display, err := cfg.Display()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, display, test.ShouldResemble, DisplayConfig{PointCloud: true})

	t.Run("default bind address", func(t *testing.T) {
		t.Setenv("AGIMUS_BIND_ADDRESS", "")
		cfg, err := Read("data/robot.json")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Network.BindAddress, test.ShouldEqual, DefaultBindAddress)
	})

	_, err = Read("data/missing.json")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader("", strings.NewReader("{"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode Config from json")
}

func TestNewSolver(t *testing.T) {
	logger := logging.NewTestLogger(t)
	cfg, err := Read("data/robot.json")
	test.That(t, err, test.ShouldBeNil)

	ps, err := cfg.NewSolver(logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ps.Robot().Name(), test.ShouldEqual, "pointer")
	test.That(t, ps.Robot().JointNames(), test.ShouldResemble, []string{"j1", "j2"})
	test.That(t, ps.NumberPaths(), test.ShouldEqual, 1)
	test.That(t, ps.Obstacles(), test.ShouldResemble, []string{"held", "table"})

	tool, err := ps.Robot().FramePose("tool", ps.CurrentConfiguration())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.R3VectorAlmostEqual(tool.Point(), r3.Vector{X: 0, Y: 110, Z: 100}, 1e-6), test.ShouldBeTrue)

	held, err := ps.ObstacleGeometries("held")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, held, test.ShouldHaveLength, 1)
	test.That(t, spatialmath.R3VectorAlmostEqual(held[0].Pose().Point(), r3.Vector{X: 0, Y: 120, Z: 100}, 1e-6), test.ShouldBeTrue)

	p, err := ps.Path(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Length(), test.ShouldEqual, 0.5)

	groups := cfg.NewFeatureGroups()
	test.That(t, groups, test.ShouldHaveLength, 1)
	test.That(t, groups[0].VisibilityThreshold, test.ShouldEqual, 2)
	test.That(t, groups[0].Features(), test.ShouldHaveLength, 2)
	test.That(t, groups[0].Features()[1].Name(), test.ShouldEqual, "marker/1")
}

func TestRobotFromURDF(t *testing.T) {
	dir := t.TempDir()
	test.That(t, os.WriteFile(filepath.Join(dir, "pointer.urdf"), []byte(testURDF), 0o600), test.ShouldBeNil)
	cfgPath := filepath.Join(dir, "agimus.json")
	test.That(t, os.WriteFile(cfgPath, []byte(`{"robot": {"name": "urdf", "urdf": "pointer.urdf"}}`), 0o600), test.ShouldBeNil)

	cfg, err := Read(cfgPath)
	test.That(t, err, test.ShouldBeNil)
	ps, err := cfg.NewSolver(logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ps.Robot().Name(), test.ShouldEqual, "urdf")
	test.That(t, ps.Robot().JointNames(), test.ShouldResemble, []string{"shoulder"})
}

func TestValidate(t *testing.T) {
	t.Run("robot", func(t *testing.T) {
		rc := RobotConfig{}
		err := rc.Validate("robot")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, `"name" is required`)

		rc = RobotConfig{Name: "r"}
		err = rc.Validate("robot")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, `"frames" is required`)

		rc = RobotConfig{Name: "r", URDF: "r.urdf", Frames: []FrameConfig{{Name: "a"}}}
		test.That(t, rc.Validate("robot"), test.ShouldNotBeNil)
	})

	t.Run("frames", func(t *testing.T) {
		for _, tc := range []struct {
			name  string
			frame FrameConfig
			msg   string
		}{
			{"no name", FrameConfig{}, `"name" is required`},
			{"bad orientation", FrameConfig{Name: "a", Orientation: []float64{1, 0}}, "orientation must have 4 components"},
			{"negative mass", FrameConfig{Name: "a", Mass: -1}, "negative mass"},
			{"no axis", FrameConfig{Name: "a", Type: FrameTypeRevolute}, `"axis" is required`},
			{"bad limits", FrameConfig{Name: "a", Type: FrameTypePrismatic, Axis: Translation{X: 1}, Min: 1, Max: 0}, "is greater than max"},
			{"bad type", FrameConfig{Name: "a", Type: "planar"}, "planar"},
		} {
			t.Run(tc.name, func(t *testing.T) {
				err := tc.frame.Validate("robot.frames.0")
				test.That(t, err, test.ShouldNotBeNil)
				test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
			})
		}
		fc := FrameConfig{Name: "a", Type: FrameTypeRevolute, Axis: Translation{Z: 1}, Min: -1, Max: 1}
		test.That(t, fc.Validate("robot.frames.0"), test.ShouldBeNil)
	})

	t.Run("log file", func(t *testing.T) {
		lc := LogFileConfig{}
		err := lc.Validate("log_file")
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, `"path" is required`)

		lc = LogFileConfig{Path: "agimus.log", MaxBackups: -1}
		test.That(t, lc.Validate("log_file").Error(), test.ShouldContainSubstring, "must not be negative")

		cfg := Config{
			ConfigFilePath: filepath.Join("some", "dir", "robot.json"),
			Robot:          RobotConfig{Name: "r", Frames: []FrameConfig{{Name: "a"}}},
			LogFile:        &LogFileConfig{Path: "agimus.log"},
		}
		test.That(t, cfg.Ensure(), test.ShouldBeNil)
		test.That(t, cfg.LogFile.Path, test.ShouldEqual, filepath.Join("some", "dir", "agimus.log"))
		test.That(t, cfg.LogFile.MaxSizeMB, test.ShouldEqual, defaultLogFileMaxSizeMB)

		dir := t.TempDir()
		lc = LogFileConfig{Path: filepath.Join(dir, "agimus.log")}
		test.That(t, lc.Validate("log_file"), test.ShouldBeNil)
		appender := lc.Appender()
		logger := logging.NewBlankLogger("agimus")
		logger.AddAppender(appender)
		logger.Info("written to file")
		test.That(t, appender.Close(), test.ShouldBeNil)
		content, err := os.ReadFile(lc.Path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(content), test.ShouldContainSubstring, "written to file")
	})

	t.Run("collects every error", func(t *testing.T) {
		cfg := Config{
			Robot:      RobotConfig{Name: "r", Frames: []FrameConfig{{Name: "a"}}},
			Obstacles:  []ObstacleConfig{{Name: "o"}},
			Paths:      []PathConfig{{}},
			PointCloud: &PointCloudConfig{MinDistance: 10, MaxDistance: 1},
			Network:    NetworkConfig{BindAddress: "nope"},
		}
		cfg.Publisher.Frequency = -1
		err := cfg.Ensure()
		test.That(t, err, test.ShouldNotBeNil)
		for _, msg := range []string{
			"obstacles.0", "invalid dims",
			"paths.0", `"waypoints" is required`,
			`"topic" is required`, `"sensor_frame" is required`, `"octree_frame" is required`, `"resolution" is required`,
			"lower than min_distance",
			"invalid frequency",
			"error validating bind_address",
		} {
			test.That(t, err.Error(), test.ShouldContainSubstring, msg)
		}
	})
}

func TestAttributeMap(t *testing.T) {
	am := AttributeMap{
		"ok_boolean_true": true,
		"bad_boolean":     "true",
		"display":         map[string]interface{}{"field_of_view": true},
		"bad_display":     "yes",
	}
	test.That(t, am.Has("display"), test.ShouldBeTrue)
	test.That(t, am.Has("junk_key"), test.ShouldBeFalse)

	test.That(t, am.Bool("ok_boolean_true", false), test.ShouldBeTrue)
	test.That(t, am.Bool("junk_key", true), test.ShouldBeTrue)
	test.That(t, func() { am.Bool("bad_boolean", false) }, test.ShouldPanic)

	var dc DisplayConfig
	test.That(t, am.Decode("display", &dc), test.ShouldBeNil)
	test.That(t, dc, test.ShouldResemble, DisplayConfig{FieldOfView: true})
	test.That(t, am.Decode("bad_display", &dc), test.ShouldNotBeNil)

	dc = DisplayConfig{PointCloud: true}
	test.That(t, am.Decode("junk_key", &dc), test.ShouldBeNil)
	test.That(t, dc, test.ShouldResemble, DisplayConfig{PointCloud: true})

	cfg := Config{}
	dc, err := cfg.Display()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dc, test.ShouldResemble, DisplayConfig{})
}
