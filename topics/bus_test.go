package topics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"github.com/agimus-project/agimus/logging"
)

func TestPublishSubscribe(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Unix(100, 0))
	bus := NewBus(clk, logging.NewTestLogger(t))
	defer bus.Close()

	sub, err := bus.Subscribe("position", 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sub.Topic(), test.ShouldEqual, "position")
	test.That(t, sub.ID(), test.ShouldNotBeEmpty)

	other, err := bus.Subscribe("position", 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, other.ID(), test.ShouldNotEqual, sub.ID())

	test.That(t, bus.Publish("position", []float64{1, 2}), test.ShouldBeNil)
	test.That(t, bus.Publish("velocity", []float64{0, 0}), test.ShouldBeNil)

	want := Message{Topic: "position", Stamp: time.Unix(100, 0), Payload: []float64{1, 2}}
	for _, s := range []*Subscription{sub, other} {
		msg, err := s.Next(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cmp.Diff(want, msg), test.ShouldBeEmpty)
	}

	latest, ok := bus.Latest("velocity")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, latest.Payload, test.ShouldResemble, []float64{0, 0})
	_, ok = bus.Latest("nothing")
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, bus.PublishedCount("position"), test.ShouldEqual, int64(1))
	test.That(t, bus.Topics(), test.ShouldResemble, []string{"position", "velocity"})
}

func TestDropWhenFull(t *testing.T) {
	logger, observed := logging.NewObservedTestLogger(t)
	bus := NewBus(nil, logger)
	defer bus.Close()

	sub, err := bus.Subscribe("events", 2)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 5; i++ {
		test.That(t, bus.Publish("events", i), test.ShouldBeNil)
	}
	test.That(t, sub.Dropped(), test.ShouldEqual, int64(3))
	test.That(t, observed.FilterMessage("dropping messages, subscriber queue full").Len(), test.ShouldEqual, 1)

	msg, err := sub.Next(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.Payload, test.ShouldEqual, 0)
	msg, err = sub.Next(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, msg.Payload, test.ShouldEqual, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	test.That(t, err, test.ShouldBeError, context.DeadlineExceeded)
}

func TestUnsubscribeAndClose(t *testing.T) {
	bus := NewBus(nil, logging.NewTestLogger(t))

	_, err := bus.Subscribe("", 1)
	test.That(t, err, test.ShouldNotBeNil)

	sub, err := bus.Subscribe("a", 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cap(sub.ch), test.ShouldEqual, DefaultQueueSize)

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	_, err = sub.Next(context.Background())
	test.That(t, err, test.ShouldBeError, ErrClosed)
	test.That(t, bus.Topics(), test.ShouldBeEmpty)

	kept, err := bus.Subscribe("b", 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bus.Close(), test.ShouldBeNil)
	test.That(t, bus.Close(), test.ShouldBeNil)
	_, ok := <-kept.C()
	test.That(t, ok, test.ShouldBeFalse)

	test.That(t, bus.Publish("b", 1), test.ShouldBeError, ErrClosed)
	_, err = bus.Subscribe("b", 1)
	test.That(t, err, test.ShouldBeError, ErrClosed)
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus(nil, logging.NewTestLogger(t))
	defer bus.Close()
	sub, err := bus.Subscribe("c", 1000)
	test.That(t, err, test.ShouldBeNil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				test.That(t, bus.Publish("c", j), test.ShouldBeNil)
			}
		}()
	}
	wg.Wait()
	test.That(t, len(sub.C()), test.ShouldEqual, 500)
	test.That(t, bus.PublishedCount("c"), test.ShouldEqual, int64(500))
}
