// Package normalizer turns free text or partially filled input into one
// canonical drawing Specification. It never fails: when the completion
// service cannot be used, it returns the fixed default specification.
package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/llm"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const logPrefix = "normalizer:normalizer"

// DefaultCommand is used for structured input that names neither a command
// nor a known lighting system.
const DefaultCommand = "linear_light"

// Source records where a Specification came from.
type Source string

const (
	SourceText       Source = "text"
	SourceStructured Source = "structured"
	SourceDefault    Source = "default"
)

// Fallback reasons.
const (
	ReasonEmptyInput        = "empty_input"
	ReasonCollaboratorError = "collaborator_error"
	ReasonParseFailure      = "parse_failure"
	ReasonShapeMismatch     = "shape_mismatch"
)

// Outcome is the normalizer's result.
type Outcome struct {
	Specification  *spec.Specification `json:"specification"`
	Source         Source              `json:"source"`
	FallbackUsed   bool                `json:"fallback_used"`
	FallbackReason string              `json:"fallback_reason,omitempty"`
}

// RawInput is one unnormalized request. Structured wins when both are set.
type RawInput struct {
	Text       string              `json:"text,omitempty"`
	Structured *spec.Specification `json:"specifications,omitempty"`
}

// Options configures completion requests.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Normalizer builds Specifications. It is safe for concurrent use when the
// underlying llm.Client is.
type Normalizer struct {
	registry *capability.Registry
	client   llm.Client
	opts     Options
	prompt   string
}

// New creates a Normalizer. A nil client behaves as an unconfigured service,
// so every free-text request falls back to the default specification.
func New(registry *capability.Registry, client llm.Client, opts Options) *Normalizer {
	if client == nil {
		client = llm.Unconfigured{}
	}
	return &Normalizer{
		registry: registry,
		client:   client,
		opts:     opts,
		prompt:   BuildPrompt(registry),
	}
}

// Prompt returns the prompt sent to the completion service.
func (n *Normalizer) Prompt() string { return n.prompt }

// Normalize routes a RawInput to FromStructured or FromText.
func (n *Normalizer) Normalize(ctx context.Context, in RawInput) Outcome {
	if in.Structured != nil {
		return n.FromStructured(in.Structured)
	}
	return n.FromText(ctx, in.Text)
}

// FromText asks the completion service to translate text into a Specification.
func (n *Normalizer) FromText(ctx context.Context, text string) Outcome {
	if strings.TrimSpace(text) == "" {
		return n.fallback(ReasonEmptyInput, nil)
	}

	resp, err := n.client.Chat(ctx, llm.ChatRequest{
		Model: n.opts.Model,
		Messages: []llm.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: UserMessage(n.prompt, text)},
		},
		Temperature: n.opts.Temperature,
		MaxTokens:   n.opts.MaxTokens,
	})
	if err != nil {
		return n.fallback(ReasonCollaboratorError, err)
	}

	raw, err := llm.ExtractJSONObject(resp.Content)
	if err != nil {
		return n.fallback(ReasonParseFailure, err)
	}

	var s spec.Specification
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return n.fallback(ReasonParseFailure, err)
	}
	if s.Command == "" {
		return n.fallback(ReasonShapeMismatch, fmt.Errorf("reply has no command"))
	}

	slog.Debug(fmt.Sprintf("%s - Normalized text into command %s", logPrefix, s.Command))
	return Outcome{Specification: &s, Source: SourceText}
}

// FromStructured copies present fields verbatim and leaves the rest absent.
// A missing command is taken from the lighting system, else DefaultCommand.
func (n *Normalizer) FromStructured(in *spec.Specification) Outcome {
	s := in.Clone()
	if s == nil {
		s = &spec.Specification{}
	}
	s.Command = strings.TrimSpace(s.Command)
	s.LightingSystem = strings.TrimSpace(s.LightingSystem)
	if s.Command == "" {
		s.Command = DefaultCommand
		if ls, ok := n.registry.LightingSystem(s.LightingSystem); ok {
			s.Command = ls.Command
		}
	}
	return Outcome{Specification: s, Source: SourceStructured}
}

func (n *Normalizer) fallback(reason string, cause error) Outcome {
	if cause != nil {
		slog.Warn(fmt.Sprintf("%s - Falling back to default specification (%s): %v", logPrefix, reason, cause))
	} else {
		slog.Warn(fmt.Sprintf("%s - Falling back to default specification (%s)", logPrefix, reason))
	}
	return Outcome{
		Specification:  DefaultSpecification(),
		Source:         SourceDefault,
		FallbackUsed:   true,
		FallbackReason: reason,
	}
}

// DefaultSpecification returns a fresh copy of the fixed fallback: one
// 10 x 4 x 4 linear light from (0,0) to (10,0) at 50W, 4000k.
func DefaultSpecification() *spec.Specification {
	return &spec.Specification{
		Command:        "linear_light",
		LightingSystem: "ls",
		Dimensions: spec.Dimensions{
			spec.DimLength: 10,
			spec.DimWidth:  4,
			spec.DimHeight: 4,
		},
		Position: spec.Position{
			StartPoint:  spec.Pt(0, 0, 0),
			EndPoint:    spec.Pt(10, 0, 0),
			Orientation: spec.OrientationHorizontal,
		},
		Attributes: spec.Values{
			"wattage":           50.0,
			"color_temperature": "4000k",
			"lens_type":         "clear",
			"mounting_type":     "ceiling_mount",
			"driver_type":       "standard",
			"quantity":          1.0,
		},
		Extras: spec.Values{},
	}
}
