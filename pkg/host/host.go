// Package host defines the boundary to the drawing host application and a
// COMMS request/reply bridge implementation of it.
package host

import (
	"context"
	"errors"
	"fmt"
)

// Host operations carried on the bridge subjects.
const (
	OpAttach  = "attach"
	OpLaunch  = "launch"
	OpProbe   = "probe"
	OpSubmit  = "submit"
	OpBusy    = "busy"
	OpBlock   = "block"
	OpBlocks  = "blocks"
	OpRelease = "release"
)

// Error codes returned by a host bridge.
const (
	CodeNotRunning   = "NOT_RUNNING"
	CodeStaleSession = "STALE_SESSION"
	CodeRejected     = "REJECTED"
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnavailable  = "UNAVAILABLE"
)

// ErrNotRunning is matched by errors.Is when no host instance is running.
var ErrNotRunning = errors.New("host: no running instance")

// Host attaches to a running drawing host or launches a new one.
type Host interface {
	Attach(ctx context.Context) (Document, error)
	Launch(ctx context.Context) (Document, error)
}

// Document is the active drawing document of an attached host instance.
type Document interface {
	// Name returns the active document name. It doubles as the health probe.
	Name(ctx context.Context) (string, error)
	// Version returns the host application version string.
	Version(ctx context.Context) (string, error)
	// Submit sends one command payload to the host command line.
	Submit(ctx context.Context, payload string) error
	// Busy reports whether the host is still executing a command.
	Busy(ctx context.Context) (bool, error)
	// HasBlock reports whether a named block definition exists.
	HasBlock(ctx context.Context, name string) (bool, error)
	// Blocks lists the block definitions of the document.
	Blocks(ctx context.Context) ([]string, error)
	// Release drops the handle. The host instance keeps running.
	Release(ctx context.Context) error
}

// Request is the bridge request envelope.
type Request struct {
	Session string `json:"session,omitempty"`
	Payload string `json:"payload,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Reply is the bridge reply envelope.
type Reply struct {
	OK       bool     `json:"ok"`
	Code     string   `json:"code,omitempty"`
	Error    string   `json:"error,omitempty"`
	Session  string   `json:"session,omitempty"`
	Document string   `json:"document,omitempty"`
	Version  string   `json:"version,omitempty"`
	Busy     bool     `json:"busy,omitempty"`
	Found    bool     `json:"found,omitempty"`
	Blocks   []string `json:"blocks,omitempty"`
}

// Error is a failure reported by the host side of the bridge.
type Error struct {
	Op      string
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("host %s failed: %s: %s", e.Op, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNotRunning) match NOT_RUNNING replies.
func (e *Error) Is(target error) bool {
	return target == ErrNotRunning && e.Code == CodeNotRunning
}

func replyError(op string, r *Reply) error {
	if r.OK {
		return nil
	}
	code := r.Code
	if code == "" {
		code = CodeRejected
	}
	return &Error{Op: op, Code: code, Message: r.Error}
}
