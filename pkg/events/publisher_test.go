package events

import (
	"context"
	"testing"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishDispatched(context.Background(), &DispatchCompletedEvent{
		ID:      "01J0000000000000000000000",
		Command: "circle",
		Success: true,
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *DispatchCompletedEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *DispatchCompletedEvent) error {
		captured = event
		return nil
	})

	event := &DispatchCompletedEvent{
		ID:          "01J0000000000000000000001",
		Command:     "block",
		Class:       "block",
		Success:     true,
		Placeholder: true,
		Warnings:    1,
		Timestamp:   "2025-01-01T00:00:00Z",
	}

	if err := pub.PublishDispatched(context.Background(), event); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if captured == nil {
		t.Fatal("expected callback to be called")
	}
	if captured.Command != "block" {
		t.Errorf("expected command block, got %s", captured.Command)
	}
	if !captured.Placeholder {
		t.Errorf("expected placeholder flag to be carried")
	}
}
