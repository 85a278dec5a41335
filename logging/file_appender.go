package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppender is a ConsoleAppender writing to a file that is rotated once it grows past
// MaxSize megabytes.
type FileAppender struct {
	ConsoleAppender
	file *lumberjack.Logger
}

// FileAppenderConfig describes where and how log files are kept.
type FileAppenderConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileAppender opens (lazily, on first write) the log file described by cfg.
func NewFileAppender(cfg FileAppenderConfig) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(file), file: file}
}

// Rotate closes the current file and starts a new one.
func (a *FileAppender) Rotate() error {
	return a.file.Rotate()
}

// Close closes the underlying file.
func (a *FileAppender) Close() error {
	return a.file.Close()
}
