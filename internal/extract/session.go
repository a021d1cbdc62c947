package extract

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWaitTimeout is returned by Session.WaitFor when the marker never appears.
	ErrWaitTimeout = errors.New("timed out waiting for content")
	// ErrNotFound signals that the root organization page could not be rendered.
	ErrNotFound = errors.New("organization not found")
	// ErrExtraction wraps navigation and rendering failures for child kinds.
	ErrExtraction = errors.New("extraction failed")
)

// Credentials authenticate a session against the source.
type Credentials struct {
	Email    string
	Password string
}

// Configured reports whether both fields are present.
func (c Credentials) Configured() bool {
	return c.Email != "" && c.Password != ""
}

// Session is one browser-automation session. It is not safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector matches or timeout elapses (ErrWaitTimeout).
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	ScrollHeight(ctx context.Context) (int64, error)
	ScrollToBottom(ctx context.Context) error
	Click(ctx context.Context, selector string) error
	SignIn(ctx context.Context, creds Credentials) error
	Close() error
}

// Browser opens sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}
