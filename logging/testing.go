package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// tbAppender logs through tb.Log so that lines are attributed to the test that emitted them.
type tbAppender struct {
	tb testing.TB
}

// NewTestAppender returns an Appender writing console lines to tb.
func NewTestAppender(tb testing.TB) Appender {
	return tbAppender{tb}
}

func (a tbAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	a.tb.Helper()
	line, err := formatLine(entry, fields)
	a.tb.Log(line)
	return err
}

func (a tbAppender) Sync() error {
	return nil
}
