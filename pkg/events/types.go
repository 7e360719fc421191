// Package events defines the dispatch event type and its publishers.
package events

// DispatchCompletedEvent is emitted after every dispatch, successful or not.
// It carries no specification content.
type DispatchCompletedEvent struct {
	ID          string   `json:"id"`
	Command     string   `json:"command"`
	Class       string   `json:"class"`
	Success     bool     `json:"success"`
	TimedOut    bool     `json:"timedOut"`
	Placeholder bool     `json:"placeholder"`
	Reconnects  int      `json:"reconnects"`
	Warnings    int      `json:"warnings"`
	Error       string   `json:"error,omitempty"`
	DurationMs  int64    `json:"durationMs"`
	Timestamp   string   `json:"timestamp"`
	Tags        []string `json:"tags,omitempty"`
}
