package utils

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/agimus-project/agimus/logging"
)

func TestSlowLogger(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	clk := clock.NewMock()

	stop := SlowLogger(context.Background(), clk, "still waiting", "topic", "/points", logger)
	clk.Add(time.Second)
	test.That(t, logs.FilterMessage("still waiting").Len(), test.ShouldEqual, 0)

	clk.Add(time.Second)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, logs.FilterMessage("still waiting").Len(), test.ShouldEqual, 1)
	})
	entry := logs.FilterMessage("still waiting").All()[0]
	test.That(t, entry.ContextMap()["topic"], test.ShouldEqual, "/points")
	test.That(t, entry.ContextMap()["time_elapsed"], test.ShouldEqual, "2s")
	stop()

	clk.Add(time.Minute)
	test.That(t, logs.FilterMessage("still waiting").Len(), test.ShouldEqual, 1)

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		stop := SlowLogger(ctx, clk, "never", "topic", "/points", logger)
		cancel()
		stop()
		test.That(t, logs.FilterMessage("never").Len(), test.ShouldEqual, 0)
	})
}
