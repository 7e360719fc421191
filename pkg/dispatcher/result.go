package dispatcher

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/morezero/autodraw-agent/pkg/spec"
)

// Result error codes.
const (
	CodeInvalidSpecification = "INVALID_SPECIFICATION"
	CodeTransportFailure     = "TRANSPORT_FAILURE"
)

// Result is the outcome of one dispatch. It is not modified after Dispatch returns.
type Result struct {
	ID            string              `json:"id"`
	Success       bool                `json:"success"`
	Command       string              `json:"command"`
	Specification *spec.Specification `json:"specification,omitempty"`
	Summary       string              `json:"summary,omitempty"`
	Error         string              `json:"error,omitempty"`
	ErrorCode     string              `json:"error_code,omitempty"`
	Warnings      []string            `json:"warnings"`
	TimedOut      bool                `json:"timed_out"`
	Placeholder   bool                `json:"placeholder"`
	FallbackUsed  bool                `json:"fallback_used"`
	Timestamp     string              `json:"timestamp"`
}

func newResult(command string) *Result {
	return &Result{
		ID:        newID(),
		Command:   command,
		Warnings:  []string{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *Result) fail(code, msg string) {
	r.Success = false
	r.ErrorCode = code
	r.Error = msg
}

func newID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
