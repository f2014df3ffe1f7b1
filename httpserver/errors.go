package httpserver

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRequest indicates the request line lacks a method/path pair.
	ErrMalformedRequest = errors.New("malformed request line")
	// ErrServerRunning is returned by Start when the accept loop is already active.
	ErrServerRunning = errors.New("server already running")
)

// BindError reports that the listening socket could not be opened.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ApplicationError wraps a fault raised by a Handler, including recovered panics.
type ApplicationError struct {
	Request Request
	Err     error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("handler %s %s: %v", e.Request.Method, e.Request.Path, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}
