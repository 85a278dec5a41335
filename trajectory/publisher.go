// Package trajectory samples planned paths into a bounded queue and streams the samples to the
// controller at the control frequency.
package trajectory

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"

	"github.com/agimus-project/agimus/discretization"
	"github.com/agimus-project/agimus/logging"
	"github.com/agimus-project/agimus/problem"
	"github.com/agimus-project/agimus/topics"
)

const (
	// DefaultQueueSize is the number of samples the queue holds.
	DefaultQueueSize = 1024
	// DefaultFrequency is the control frequency in Hz.
	DefaultFrequency = 1000.

	// ReadPathDoneTopic receives the id of a path once it is sampled.
	ReadPathDoneTopic = "read_path_done"
	// PublishDoneTopic receives an empty message once the queue is published.
	PublishDoneTopic = "publish_done"

	// publishAdvance is how far ahead of time samples are sent.
	publishAdvance = 150 * time.Millisecond
	publishPeriod  = 100 * time.Millisecond
	firstTimeout   = time.Second
)

// ErrFirstNotReady is returned by PublishFirst when no path was read.
var ErrFirstNotReady = errors.New("First message not ready yet. Did you call read_path ?")

// Config configures a Publisher.
type Config struct {
	// Frequency is the sampling and publishing frequency in Hz.
	Frequency float64 `json:"frequency"`
	QueueSize int     `json:"queue_size"`
}

// Validate returns an error when the configuration is unusable.
func (c Config) Validate() error {
	var err error
	if c.Frequency < 0 || math.IsNaN(c.Frequency) || math.IsInf(c.Frequency, 0) {
		err = multierr.Append(err, errors.Errorf("invalid frequency %g", c.Frequency))
	}
	if c.QueueSize < 0 {
		err = multierr.Append(err, errors.Errorf("invalid queue size %d", c.QueueSize))
	}
	return err
}

func (c Config) withDefaults() Config {
	if c.Frequency == 0 {
		c.Frequency = DefaultFrequency
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Publisher reads paths into a queue of samples and publishes them.
type Publisher struct {
	mu         sync.Mutex
	queue      chan []topics.Message
	firstMsgs  []topics.Message
	firstReady chan struct{}
	reading    atomic.Bool

	cfg     Config
	problem problem.ProblemSolver
	disc    *discretization.Discretization
	bus     *topics.Bus
	clock   clock.Clock
	logger  logging.Logger
}

// NewPublisher returns a publisher of the paths of ps. Samples are turned into messages by disc. A nil
// clock means the wall clock.
func NewPublisher(
	ps problem.ProblemSolver,
	disc *discretization.Discretization,
	bus *topics.Bus,
	cfg Config,
	clk clock.Clock,
	logger logging.Logger,
) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.New()
	}
	return &Publisher{
		queue:      make(chan []topics.Message, cfg.QueueSize),
		firstReady: make(chan struct{}),
		cfg:        cfg,
		problem:    ps,
		disc:       disc,
		bus:        bus,
		clock:      clk,
		logger:     logger,
	}, nil
}

// Frequency returns the publishing frequency in Hz.
func (p *Publisher) Frequency() float64 {
	return p.cfg.Frequency
}

// QueueSize returns the number of samples waiting to be published.
func (p *Publisher) QueueSize() int {
	return len(p.currentQueue())
}

// Reading returns whether a path is being read.
func (p *Publisher) Reading() bool {
	return p.reading.Load()
}

func (p *Publisher) currentQueue() chan []topics.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue
}

// Read samples the whole path pathID into the queue.
func (p *Publisher) Read(ctx context.Context, pathID int) error {
	path, err := p.problem.Path(pathID)
	if err != nil {
		return err
	}
	return p.read(ctx, pathID, path, 0, path.Length())
}

// ReadSub samples the part of path pathID that starts at start and lasts length into the queue. A
// negative length reads the path backwards.
func (p *Publisher) ReadSub(ctx context.Context, pathID int, start, length float64) error {
	path, err := p.problem.Path(pathID)
	if err != nil {
		return err
	}
	sub, err := problem.NewSubPath(path, start, length)
	if err != nil {
		return err
	}
	return p.read(ctx, pathID, sub, start, length)
}

// read samples path at N+1 times, N = ceil(|length| * frequency). The last sample is at the end of the
// path. It blocks while the queue is full.
func (p *Publisher) read(ctx context.Context, pathID int, path problem.Path, start, length float64) error {
	if !p.reading.CompareAndSwap(false, true) {
		return errors.New("a path is already being read")
	}
	defer p.reading.Store(false)

	n := int(math.Ceil(math.Abs(length) * p.cfg.Frequency))
	p.logger.CInfof(ctx, "Start reading path %d (t in [ %g, %g ]) into %d points", pathID, start, start+length, n+1)

	queue := make(chan []topics.Message, p.cfg.QueueSize)
	p.mu.Lock()
	p.queue = queue
	p.firstMsgs = nil
	p.firstReady = make(chan struct{})
	firstReady := p.firstReady
	p.mu.Unlock()

	pathLength := path.Length()
	for i := 0; i <= n; i++ {
		t := float64(i) / p.cfg.Frequency
		if i == n {
			t = pathLength
		}
		msgs, err := p.readAt(path, t)
		if err != nil {
			return err
		}
		if i == 0 {
			p.mu.Lock()
			p.firstMsgs = msgs
			p.mu.Unlock()
			close(firstReady)
		}
		select {
		case queue <- msgs:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := p.bus.Publish(p.disc.TopicPrefix()+ReadPathDoneTopic, pathID); err != nil {
		return err
	}
	p.logger.CInfof(ctx, "Finish reading path %d", pathID)
	return nil
}

// readAt returns the messages of the sample at time t. The velocity is the finite difference with the
// next sample, or with the end of the path for the last ones.
func (p *Publisher) readAt(path problem.Path, t float64) ([]topics.Message, error) {
	q, err := path.Eval(t)
	if err != nil {
		return nil, errors.Wrap(err, "could not evaluate the path")
	}
	dt := 1 / p.cfg.Frequency
	next := t + dt
	if next > path.Length() {
		next = path.Length()
		dt = next - t
	}
	v := make([]float64, len(q))
	if dt > 0 {
		qNext, err := path.Eval(next)
		if err != nil {
			return nil, errors.Wrap(err, "could not evaluate the path")
		}
		if v, err = p.problem.Robot().Difference(qNext, q); err != nil {
			return nil, err
		}
		floats.Scale(1/dt, v)
	}
	return p.disc.Messages(q, v)
}

func (p *Publisher) publishMessages(msgs []topics.Message) error {
	var err error
	for _, msg := range msgs {
		err = multierr.Append(err, p.bus.Publish(msg.Topic, msg.Payload))
	}
	return err
}

// Publish sends the queued samples, starting with 150ms of advance and then keeping pace with the
// frequency on a 10Hz tick. It returns once the queue is empty and no path is being read.
func (p *Publisher) Publish(ctx context.Context) error {
	p.logger.CInfof(ctx, "Start publishing queue (size is %d)", p.QueueSize())
	advance := publishAdvance.Seconds() * p.cfg.Frequency
	start := p.clock.Now()
	ticker := p.clock.Ticker(publishPeriod)
	defer ticker.Stop()

	n := 0
	for {
		queue := p.currentQueue()
		if len(queue) == 0 && !p.reading.Load() {
			break
		}
		target := advance + p.clock.Since(start).Seconds()*p.cfg.Frequency
	drain:
		for float64(n) < target {
			select {
			case msgs := <-queue:
				if err := p.publishMessages(msgs); err != nil {
					return err
				}
				n++
			default:
				break drain
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := p.bus.Publish(p.disc.TopicPrefix()+PublishDoneTopic, struct{}{}); err != nil {
		return err
	}
	p.logger.CInfof(ctx, "Finish publishing queue (%d)", n)
	return nil
}

// PublishFirst publishes the first sample of the last read path. It waits up to one second for it to
// be ready. The first sample can be published only once per read.
func (p *Publisher) PublishFirst(ctx context.Context) error {
	p.mu.Lock()
	ready := p.firstReady
	pending := p.firstMsgs == nil
	p.mu.Unlock()
	if pending {
		p.logger.CWarnf(ctx, "First message not ready yet. Keep trying during one second.")
		select {
		case <-ready:
		case <-p.clock.After(firstTimeout):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	msgs := p.firstMsgs
	p.firstMsgs = nil
	p.mu.Unlock()
	if msgs == nil {
		p.logger.CErrorf(ctx, "Could not publish first message")
		return ErrFirstNotReady
	}
	return p.publishMessages(msgs)
}
