package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the time layout of console log lines.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender receives every entry a Logger emits. It is the write half of a zapcore.Core, so
// zap cores such as the test observer can be used directly.
type Appender interface {
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync flushes buffered entries.
	Sync() error
}

// ConsoleAppender writes one tab separated line per entry: time, level, logger name, caller,
// message and, when present, the fields as a JSON object.
type ConsoleAppender struct {
	io.Writer
}

// NewStdoutAppender returns a ConsoleAppender writing to stdout.
func NewStdoutAppender() ConsoleAppender {
	return ConsoleAppender{os.Stdout}
}

// NewWriterAppender returns a ConsoleAppender writing to w.
func NewWriterAppender(w io.Writer) ConsoleAppender {
	return ConsoleAppender{w}
}

// Write implements Appender.
func (a ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatLine(entry, fields)
	fmt.Fprintln(a.Writer, line)
	return err
}

// Sync implements Appender.
func (a ConsoleAppender) Sync() error {
	return nil
}

// formatLine renders entry as a console line. The fields are encoded in order by zap's JSON
// encoder; when that fails the line is returned without them along with the error.
func formatLine(entry zapcore.Entry, fields []zapcore.Field) (string, error) {
	parts := []string{
		entry.Time.Format(DefaultTimeFormatStr),
		strings.ToUpper(entry.Level.String()),
		entry.LoggerName,
	}
	if entry.Caller.Defined {
		parts = append(parts, entry.Caller.TrimmedPath())
	}
	parts = append(parts, entry.Message)
	if len(fields) > 0 {
		enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
		buf, err := enc.EncodeEntry(zapcore.Entry{}, fields)
		if err != nil {
			return strings.Join(parts, "\t"), err
		}
		parts = append(parts, buf.String())
		buf.Free()
	}
	return strings.Join(parts, "\t"), nil
}
