package main

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/agimus-project/agimus/config"
	"github.com/agimus-project/agimus/discretization"
	"github.com/agimus-project/agimus/fieldofview"
	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/perception"
	"github.com/agimus-project/agimus/server"
	"github.com/agimus-project/agimus/topics"
	"github.com/agimus-project/agimus/trajectory"
)

// session holds everything built from one configuration file.
type session struct {
	cfg     *config.Config
	c       server.Components
	plugin  *server.Plugin
	logFile *logging.FileAppender
}

// newLogger returns the command logger. When cfg names a log file, entries are also written
// there and the returned appender must be closed once the logger is no longer used.
func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, *logging.FileAppender) {
	var logger logging.Logger
	if c.Bool(flagDebug) || (cfg != nil && cfg.Debug) {
		logger = logging.NewDebugLogger("agimus")
	} else {
		logger = logging.NewLogger("agimus")
	}
	if cfg == nil || cfg.LogFile == nil {
		return logger, nil
	}
	appender := cfg.LogFile.Appender()
	logger.AddAppender(appender)
	return logger, appender
}

func newSession(cfg *config.Config, clk clock.Clock, logger logging.Logger) (_ *session, err error) {
	ps, err := cfg.NewSolver(logger.Sublogger("problem"))
	if err != nil {
		return nil, err
	}
	display, err := cfg.Display()
	if err != nil {
		return nil, errors.Wrap(err, "invalid display attributes")
	}

	bus := topics.NewBus(clk, logger.Sublogger("topics"))
	defer func() {
		if err != nil {
			err = multierr.Combine(err, bus.Close())
		}
	}()

	fov := fieldofview.New(ps, logger.Sublogger("fov"))
	fov.SetDisplay(display.FieldOfView)
	for _, g := range cfg.NewFeatureGroups() {
		fov.AddFeatureGroup(g)
	}

	disc := discretization.New(ps.Robot(), bus, logger.Sublogger("discretization"))
	if err := configureDiscretization(disc, cfg.Publisher); err != nil {
		return nil, err
	}

	pub, err := trajectory.NewPublisher(ps, disc, bus, cfg.Publisher.Config, clk, logger.Sublogger("publisher"))
	if err != nil {
		return nil, err
	}

	pc := perception.New(ps, bus, logger.Sublogger("point_cloud"))
	pc.SetDisplay(display.PointCloud)
	if pcc := cfg.PointCloud; pcc != nil {
		if err := configurePointCloud(pc, pcc); err != nil {
			return nil, multierr.Combine(err, pc.Close())
		}
	}

	s := &session{
		cfg: cfg,
		c: server.Components{
			Problem:        ps,
			Bus:            bus,
			FieldOfView:    fov,
			Discretization: disc,
			Publisher:      pub,
			PointCloud:     pc,
		},
	}
	s.plugin, err = server.NewPlugin(s.c, cfg.Network.Options(), logger.Sublogger("server"))
	if err != nil {
		return nil, multierr.Combine(err, pc.Close())
	}
	return s, nil
}

func configureDiscretization(disc *discretization.Discretization, pc config.PublisherConfig) error {
	if pc.TopicPrefix != "" {
		disc.SetTopicPrefix(pc.TopicPrefix)
	}
	if err := disc.SetJointNames(pc.JointNames); err != nil {
		return err
	}
	for _, name := range pc.OperationalFrames {
		if !disc.AddOperationalFrame(name, discretization.PositionAndDerivative) {
			return errors.Errorf("could not add operational frame %q", name)
		}
	}
	if pc.CenterOfMass && !disc.AddCenterOfMass("", nil, discretization.PositionAndDerivative) {
		return errors.New("could not add the center of mass")
	}
	return nil
}

func configurePointCloud(pc *perception.PointCloud, pcc *config.PointCloudConfig) error {
	if pcc.MinDistance != 0 || pcc.MaxDistance != 0 {
		maxDistance := pcc.MaxDistance
		if maxDistance == 0 {
			_, maxDistance = pc.DistanceBounds()
		}
		if err := pc.SetDistanceBounds(pcc.MinDistance, maxDistance); err != nil {
			return err
		}
	}
	if plane := pcc.ObjectPlane; plane != nil {
		return pc.SetObjectPlane(plane.Frame, plane.Point.Vector(), plane.Normal.Vector(), plane.Margin)
	}
	return nil
}

// Close stops the servants, closes the bus and then the log file.
func (s *session) Close() error {
	err := multierr.Combine(s.plugin.Close(), s.c.Bus.Close())
	if s.logFile != nil {
		err = multierr.Combine(err, s.logFile.Close())
	}
	return err
}

// closeLogFile closes logFile, when there is one, after a session could not be built.
func closeLogFile(err error, logFile *logging.FileAppender) error {
	if logFile == nil {
		return err
	}
	return multierr.Combine(err, logFile.Close())
}
