package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// TaskStatus is the lifecycle state of a task within one run.
type TaskStatus string

const (
	// TaskPending indicates the task is waiting for its dependencies.
	TaskPending TaskStatus = "pending"
	// TaskRunning indicates the task is being validated or executed.
	TaskRunning TaskStatus = "running"
	// TaskCompleted indicates the task was executed successfully.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed indicates the task execution failed.
	TaskFailed TaskStatus = "failed"
	// TaskCached indicates the previous result was reused without executing the task.
	TaskCached TaskStatus = "cached"
)

// IsTerminal reports whether the task has finished, one way or another.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCached:
		return true
	default:
		return false
	}
}

// LogLevel represents the severity of a log message, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLogLevel converts a level name such as "debug" or "WARN" to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, zerr.With(zerr.New("unknown log level"), "level", s)
	}
}
