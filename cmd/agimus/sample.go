package main

import (
	"encoding/json"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/agimus-project/agimus/config"
)

// sampleLine is one message of a sampled path.
type sampleLine struct {
	Time    float64 `json:"time"`
	Topic   string  `json:"topic"`
	Payload any     `json:"payload"`
}

// SampleAction prints the messages of a configured path every dt seconds, ending on the path end.
func SampleAction(c *cli.Context) (err error) {
	dt := c.Float64(flagDT)
	if dt <= 0 {
		return errors.Errorf("invalid sampling period %g", dt)
	}
	cfg, err := config.Read(c.String(flagConfig))
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
		err = multierr.Combine(err, s.Close())
	}()

	path, err := s.c.Problem.Path(c.Int(flagPath))
	if err != nil {
		return err
	}
	disc := s.c.Discretization
	disc.SetPath(path)

	enc := json.NewEncoder(c.App.Writer)
	length := path.Length()
	n := int(math.Ceil(length/dt - 1e-9))
	for i := 0; i <= n; i++ {
		t := math.Min(float64(i)*dt, length)
		msgs, err := disc.Sample(t)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			if err := enc.Encode(sampleLine{Time: t, Topic: msg.Topic, Payload: msg.Payload}); err != nil {
				return err
			}
		}
	}
	return nil
}
