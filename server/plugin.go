// Package server exposes the agimus services to the outside: a plugin handing out servants, as
// the planner host expects, and an HTTP JSON API standing in for the ROS services and topics the
// controller calls.
package server

import (
	"github.com/pkg/errors"

	"github.com/agimus-project/agimus/discretization"
	"github.com/agimus-project/agimus/fieldofview"
	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/perception"
	"github.com/agimus-project/agimus/problem"
	"github.com/agimus-project/agimus/topics"
	"github.com/agimus-project/agimus/trajectory"
)

const (
	// PluginName is the name the plugin is registered under.
	PluginName = "agimus"
	// ServantName is the name of the only servant of the plugin.
	ServantName = "server"
)

// Components are the services the server exposes. Problem and Bus are required, the others are
// created from them when nil.
type Components struct {
	Problem        problem.ProblemSolver
	Bus            *topics.Bus
	FieldOfView    *fieldofview.FieldOfView
	Discretization *discretization.Discretization
	Publisher      *trajectory.Publisher
	PointCloud     *perception.PointCloud
}

// Plugin hands out the servants of agimus.
type Plugin struct {
	server *Server
	logger logging.Logger
}

// NewPlugin returns a plugin serving c.
func NewPlugin(c Components, opts Options, logger logging.Logger) (*Plugin, error) {
	if c.Problem == nil {
		return nil, errors.New("server needs a problem")
	}
	if c.Bus == nil {
		return nil, errors.New("server needs a topic bus")
	}
	if c.FieldOfView == nil {
		c.FieldOfView = fieldofview.New(c.Problem, logger.Sublogger("fov"))
	}
	if c.Discretization == nil {
		c.Discretization = discretization.New(c.Problem.Robot(), c.Bus, logger.Sublogger("discretization"))
	}
	if c.Publisher == nil {
		pub, err := trajectory.NewPublisher(c.Problem, c.Discretization, c.Bus, trajectory.Config{}, nil, logger.Sublogger("publisher"))
		if err != nil {
			return nil, err
		}
		c.Publisher = pub
	}
	if c.PointCloud == nil {
		c.PointCloud = perception.New(c.Problem, c.Bus, logger.Sublogger("point_cloud"))
	}
	p := &Plugin{logger: logger}
	p.server = newServer(c, opts, logger)
	return p, nil
}

// Name returns the name of the plugin.
func (p *Plugin) Name() string {
	return PluginName
}

// Servant returns the servant with the given name.
func (p *Plugin) Servant(name string) (*Server, error) {
	if name == ServantName {
		return p.server, nil
	}
	return nil, errors.Errorf("No servant %s", name)
}

// Close stops the background jobs of the servants.
func (p *Plugin) Close() error {
	return p.server.Close()
}
