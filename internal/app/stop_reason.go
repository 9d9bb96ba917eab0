package app

import (
	"context"
	"errors"
)

// StopReason classifies how a run ended.
type StopReason int

const (
	StopCompleted StopReason = iota
	StopStartup
	StopFetchFailed
	StopCanceled
	StopFatalError
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopStartup:
		return "startup"
	case StopFetchFailed:
		return "fetch_failed"
	case StopCanceled:
		return "canceled"
	case StopFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// ExitCode is the process status for r: 0 success, 1 config/startup,
// 2 run failure.
func (r StopReason) ExitCode() int {
	switch r {
	case StopCompleted:
		return 0
	case StopStartup:
		return 1
	default:
		return 2
	}
}

// ReasonOf maps a Run error to its StopReason.
func ReasonOf(err error) StopReason {
	switch {
	case err == nil:
		return StopCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StopCanceled
	case errors.Is(err, ErrFetch):
		return StopFetchFailed
	default:
		return StopFatalError
	}
}
