package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

// Level is the severity of a log entry.
type Level int8

// Levels, from the most to the least verbose.
const (
	DEBUG Level = iota - 1
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "debug",
	INFO:  "info",
	WARN:  "warn",
	ERROR: "error",
}

func (level Level) String() string {
	if name, ok := levelNames[level]; ok {
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return fmt.Sprintf("Level(%d)", level)
}

// AsZap returns the zap level of the same severity. The constants share their numeric values
// with zap's.
func (level Level) AsZap() zapcore.Level {
	return zapcore.Level(level)
}

// LevelFromString parses debug, info, warn (or warning) and error, ignoring case.
func LevelFromString(s string) (Level, error) {
	lower := strings.ToLower(s)
	if lower == "warning" {
		return WARN, nil
	}
	for level, name := range levelNames {
		if name == lower {
			return level, nil
		}
	}
	return DEBUG, errors.Errorf("unknown log level: %q", s)
}

// MarshalJSON encodes the level as its lower case name.
func (level Level) MarshalJSON() ([]byte, error) {
	name, ok := levelNames[level]
	if !ok {
		return nil, errors.Errorf("unknown log level: %d", level)
	}
	return json.Marshal(name)
}

// UnmarshalJSON accepts any name LevelFromString does.
func (level *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := LevelFromString(s)
	if err != nil {
		return err
	}
	*level = parsed
	return nil
}

// AtomicLevel is a Level safe for concurrent use. Copies share the same value.
type AtomicLevel struct {
	val *atomic.Int32
}

// NewAtomicLevelAt returns an AtomicLevel set to level.
func NewAtomicLevelAt(level Level) AtomicLevel {
	l := AtomicLevel{val: new(atomic.Int32)}
	l.Set(level)
	return l
}

// Set changes the level.
func (l AtomicLevel) Set(level Level) {
	l.val.Store(int32(level))
}

// Get returns the level.
func (l AtomicLevel) Get() Level {
	return Level(l.val.Load())
}
