package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/agimus-project/agimus/config"
	"github.com/agimus-project/agimus/fieldofview"
	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/server"
)

// ServeAction serves the services built from the configuration until interrupted.
func ServeAction(c *cli.Context) (err error) {
	cfgPath := c.String(flagConfig)
	cfg, err := config.Read(cfgPath)
	if err != nil {
		return err
	}
	logger, logFile := newLogger(c, cfg)
	s, err := newSession(cfg, clock.New(), logger)
	if err != nil {
		return closeLogFile(err, logFile)
	}
	s.logFile = logFile
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			logger.Errorw("error closing", "error", closeErr)
		}
	}()
	srv, err := s.plugin.Servant(server.ServantName)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		return srv.Serve(ctx)
	})
	if c.Bool(flagWatch) {
		g.Go(func() error {
			return watchFeatureGroups(ctx, cfgPath, s.c.FieldOfView, logger.Sublogger("watcher"))
		})
	}
	return g.Wait()
}

// reloadDelay is how long the configuration file must stay untouched before it is reloaded.
const reloadDelay = 50 * time.Millisecond

// watchFeatureGroups reloads the feature groups of fov every time the file at cfgPath is written.
// The parent directory is watched so that editors replacing the file are noticed.
func watchFeatureGroups(ctx context.Context, cfgPath string, fov *fieldofview.FieldOfView, logger logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Debugw("error closing watcher", "error", err)
		}
	}()

	cfgPath = filepath.Clean(cfgPath)
	if err := watcher.Add(filepath.Dir(cfgPath)); err != nil {
		return errors.Wrapf(err, "cannot watch %s", cfgPath)
	}
	logger.Infow("watching configuration", "path", cfgPath)

	debounced := debounce.New(reloadDelay)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		if err := reloadFeatureGroups(cfgPath, fov); err != nil {
			logger.Warnw("keeping previous feature groups", "error", err)
			return
		}
		logger.Infow("reloaded feature groups", "count", len(fov.FeatureGroups()))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != cfgPath || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounced(reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Errorw("watcher error", "error", err)
		}
	}
}

// reloadFeatureGroups replaces the feature groups of fov with the ones of the file at cfgPath.
func reloadFeatureGroups(cfgPath string, fov *fieldofview.FieldOfView) error {
	cfg, err := config.Read(cfgPath)
	if err != nil {
		return err
	}
	fov.ResetFeatureGroups()
	for _, g := range cfg.NewFeatureGroups() {
		fov.AddFeatureGroup(g)
	}
	return nil
}
