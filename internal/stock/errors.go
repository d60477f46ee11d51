package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoAdapter indicates no adapter handles the target host.
	ErrNoAdapter = errors.New("no adapter for target host")
	// ErrPoolClosed indicates a submission raced with, or followed, pool shutdown.
	ErrPoolClosed = errors.New("pool closed")
	// ErrPoolUnavailable indicates no live pool or browser is available to run tasks.
	ErrPoolUnavailable = errors.New("pool unavailable")
)

// Kind classifies task failures.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindNavigationTimeout
	KindNavigation
	KindAdapter
	KindPoolSubmission
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindNavigationTimeout:
		return "navigation_timeout"
	case KindNavigation:
		return "navigation_error"
	case KindAdapter:
		return "adapter_error"
	case KindPoolSubmission:
		return "pool_submission_error"
	case KindNotification:
		return "notification_error"
	default:
		return "unknown"
	}
}

// Navigational reports whether the kind describes a page-load failure.
func (k Kind) Navigational() bool {
	return k == KindNavigationTimeout || k == KindNavigation
}

// TaskError carries the classification of a failed check.
type TaskError struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *TaskError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// NewTaskError wraps err with kind, keeping an existing classification intact.
func NewTaskError(kind Kind, target Target, err error) error {
	if err == nil {
		return nil
	}
	var te *TaskError
	if errors.As(err, &te) {
		return err
	}
	return &TaskError{Kind: kind, URL: target.URL(), Err: err}
}

// NavigationFailure tags a page-load error as a timeout or a generic navigation failure.
func NavigationFailure(target Target, err error) error {
	if err == nil {
		return nil
	}
	return NewTaskError(ClassifyNavigation(err), target, err)
}

// AdapterFailure tags an extraction error.
func AdapterFailure(target Target, err error) error {
	return NewTaskError(KindAdapter, target, err)
}

// KindOf returns the kind of err. Unclassified errors are classified by message.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, ErrPoolClosed) || errors.Is(err, ErrPoolUnavailable) {
		return KindPoolSubmission
	}
	if isTimeout(err) {
		return KindNavigationTimeout
	}
	return KindUnknown
}

// ClassifyNavigation decides whether a page-load error is a timeout.
func ClassifyNavigation(err error) Kind {
	if isTimeout(err) {
		return KindNavigationTimeout
	}
	return KindNavigation
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded")
}
