package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func newBufferLogger(name string, level Level) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return newImpl(name, level, true, NewWriterAppender(buf)), buf
}

// readLogLine splits the next log line into its tab separated parts.
func readLogLine(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(line, "\n"), "\t")
}

func TestConsoleOutput(t *testing.T) {
	logger, buf := newBufferLogger("agimus", DEBUG)

	logger.Info("robot", " ready")
	parts := readLogLine(t, buf)
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, len(parts[0]), test.ShouldEqual, len("2024-01-01T00:00:00.000Z"))
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "agimus")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "robot ready")

	logger.Warnf("%d groups", 3)
	parts = readLogLine(t, buf)
	test.That(t, parts[1], test.ShouldEqual, "WARN")
	test.That(t, parts[4], test.ShouldEqual, "3 groups")

	logger.Debugw("octree built", "leaves", 12, "frame", "camera")
	parts = readLogLine(t, buf)
	test.That(t, parts, test.ShouldHaveLength, 6)
	fields := map[string]interface{}{}
	test.That(t, json.Unmarshal([]byte(parts[5]), &fields), test.ShouldBeNil)
	test.That(t, fields, test.ShouldResemble, map[string]interface{}{"leaves": 12.0, "frame": "camera"})

	logger.Errorw("unpaired", "key")
	parts = readLogLine(t, buf)
	test.That(t, parts[5], test.ShouldContainSubstring, "unpaired log key")
}

func TestLevels(t *testing.T) {
	logger, buf := newBufferLogger("", INFO)

	logger.Debug("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.CDebugw(EnableDebugMode(context.Background(), "req-1"), "shown")
	parts := readLogLine(t, buf)
	test.That(t, parts[4], test.ShouldEqual, "shown")
	test.That(t, parts[5], test.ShouldEqual, `{"debug_key":"req-1"}`)

	logger.CDebugf(context.Background(), "hidden %d", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
	logger.Warn("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	sub := logger.Sublogger("fov")
	sub.SetLevel(INFO)
	sub.Info("from sub")
	parts = readLogLine(t, buf)
	test.That(t, parts[2], test.ShouldEqual, "fov")
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
}

func TestSubloggerNames(t *testing.T) {
	logger, buf := newBufferLogger("agimus", INFO)
	logger.Sublogger("server").Sublogger("jobs").Info("x")
	parts := readLogLine(t, buf)
	test.That(t, parts[2], test.ShouldEqual, "agimus.server.jobs")
}

func TestDebugMode(t *testing.T) {
	ctx := context.Background()
	test.That(t, IsDebugMode(ctx), test.ShouldBeFalse)
	test.That(t, DebugKey(ctx), test.ShouldEqual, "")

	ctx = EnableDebugMode(ctx, "")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	test.That(t, DebugKey(ctx), test.ShouldHaveLength, 8)
	test.That(t, DebugKey(EnableDebugMode(ctx, "other")), test.ShouldEqual, "other")
}

func TestLevelFromString(t *testing.T) {
	for input, expected := range map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"Warning": WARN,
		"error":   ERROR,
	} {
		level, err := LevelFromString(input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, expected)
	}

	_, err := LevelFromString("verbose")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	out, err := json.Marshal(ERROR)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"error"`)
	test.That(t, WARN.String(), test.ShouldEqual, "Warn")
	test.That(t, ERROR.AsZap(), test.ShouldEqual, zapcore.ErrorLevel)
}

func TestObservedLogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Sublogger("discretization").Infow("published", "topic", "/hpp/target/position")

	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "discretization")
	test.That(t, entries[0].Message, test.ShouldEqual, "published")
	test.That(t, entries[0].ContextMap()["topic"], test.ShouldEqual, "/hpp/target/position")
	test.That(t, logger.Sync(), test.ShouldBeNil)
}
