package logging

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// noCtx is used by the methods that take no context.
var noCtx = context.Background()

// callerDepth is the number of frames between emit and the code calling the logger.
const callerDepth = 2

// sink holds the appenders shared by a logger and its subloggers.
type sink struct {
	mu        sync.RWMutex
	appenders []Appender
}

func newSink(appenders ...Appender) *sink {
	return &sink{appenders: appenders}
}

func (s *sink) add(appender Appender) {
	s.mu.Lock()
	s.appenders = append(s.appenders, appender)
	s.mu.Unlock()
}

func (s *sink) write(entry zapcore.Entry, fields []zapcore.Field) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, appender := range s.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintf(os.Stderr, "cannot write log entry: %v\n", err)
		}
	}
}

func (s *sink) sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var err error
	for _, appender := range s.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool
	sink  *sink
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{name: name, level: NewAtomicLevelAt(level), inUTC: inUTC, sink: newSink(appenders...)}
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{name: name, level: NewAtomicLevelAt(imp.level.Get()), inUTC: imp.inUTC, sink: imp.sink}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.sink.add(appender)
}

func (imp *impl) Sync() error {
	return imp.sink.sync()
}

func (imp *impl) enabled(ctx context.Context, level Level) bool {
	return level >= imp.level.Get() || IsDebugMode(ctx)
}

// emit must be called directly by the exported logging methods for the caller to be right.
func (imp *impl) emit(ctx context.Context, level Level, msg string, fields []zapcore.Field) {
	now := time.Now()
	if imp.inUTC {
		now = now.UTC()
	}
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       now,
		LoggerName: imp.name,
		Message:    msg,
	}
	entry.Caller = zapcore.NewEntryCaller(runtime.Caller(callerDepth))
	if key := DebugKey(ctx); key != "" {
		fields = append(fields, zap.String("debug_key", key))
	}
	imp.sink.write(entry, fields)
}

// toFields pairs up keysAndValues. A trailing key without a value is kept under
// "unpaired log key".
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any("unpaired log key", keysAndValues[i]))
			break
		}
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (imp *impl) Debug(args ...interface{}) {
	if imp.enabled(noCtx, DEBUG) {
		imp.emit(noCtx, DEBUG, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.enabled(noCtx, DEBUG) {
		imp.emit(noCtx, DEBUG, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(noCtx, DEBUG) {
		imp.emit(noCtx, DEBUG, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.enabled(noCtx, INFO) {
		imp.emit(noCtx, INFO, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.enabled(noCtx, INFO) {
		imp.emit(noCtx, INFO, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.enabled(noCtx, INFO) {
		imp.emit(noCtx, INFO, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.enabled(noCtx, WARN) {
		imp.emit(noCtx, WARN, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.enabled(noCtx, WARN) {
		imp.emit(noCtx, WARN, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(noCtx, WARN) {
		imp.emit(noCtx, WARN, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.enabled(noCtx, ERROR) {
		imp.emit(noCtx, ERROR, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.enabled(noCtx, ERROR) {
		imp.emit(noCtx, ERROR, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.enabled(noCtx, ERROR) {
		imp.emit(noCtx, ERROR, msg, toFields(keysAndValues))
	}
}

func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(noCtx, ERROR, fmt.Sprint(args...), nil)
	//nolint:errcheck
	imp.Sync()
	os.Exit(1)
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	if imp.enabled(ctx, DEBUG) {
		imp.emit(ctx, DEBUG, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.enabled(ctx, DEBUG) {
		imp.emit(ctx, DEBUG, msg, toFields(keysAndValues))
	}
}

func (imp *impl) CInfof(ctx context.Context, template string, args ...interface{}) {
	if imp.enabled(ctx, INFO) {
		imp.emit(ctx, INFO, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) CInfow(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.enabled(ctx, INFO) {
		imp.emit(ctx, INFO, msg, toFields(keysAndValues))
	}
}

func (imp *impl) CWarnf(ctx context.Context, template string, args ...interface{}) {
	if imp.enabled(ctx, WARN) {
		imp.emit(ctx, WARN, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) CWarnw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.enabled(ctx, WARN) {
		imp.emit(ctx, WARN, msg, toFields(keysAndValues))
	}
}

func (imp *impl) CErrorf(ctx context.Context, template string, args ...interface{}) {
	if imp.enabled(ctx, ERROR) {
		imp.emit(ctx, ERROR, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) CErrorw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	if imp.enabled(ctx, ERROR) {
		imp.emit(ctx, ERROR, msg, toFields(keysAndValues))
	}
}
