// Package dispatcher turns a validated Specification into host commands:
// it picks the handler family by capability class, renders the payload,
// sends it through the session and reports a Result.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/db"
	"github.com/morezero/autodraw-agent/pkg/events"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/metrics"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/session"
	"github.com/morezero/autodraw-agent/pkg/spec"
	"github.com/morezero/autodraw-agent/pkg/validator"
)

const logPrefix = "dispatcher:dispatch"

var tracer = otel.Tracer("autodraw-agent/dispatcher")

// Options tunes payload rendering and waiting.
type Options struct {
	Invocation Invocation
	Wait       session.WaitOptions
}

// Dispatcher sends specifications to the host through one session.
type Dispatcher struct {
	registry  *capability.Registry
	validator *validator.Validator
	session   *session.Session
	builder   *PayloadBuilder
	publisher events.EventPublisher
	journal   db.Journal
	metrics   *metrics.DispatchMetrics
	opts      Options
}

// NewDispatcherParams holds parameters for NewDispatcher. Publisher, Journal
// and Metrics are optional.
type NewDispatcherParams struct {
	Registry  *capability.Registry
	Validator *validator.Validator
	Session   *session.Session
	Publisher events.EventPublisher
	Journal   db.Journal
	Metrics   *metrics.DispatchMetrics
	Options   Options
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	publisher := params.Publisher
	if publisher == nil {
		publisher = &events.NoOpPublisher{}
	}
	journal := params.Journal
	if journal == nil {
		journal = db.NopJournal{}
	}
	v := params.Validator
	if v == nil {
		v = validator.New(params.Registry, validator.Options{})
	}
	return &Dispatcher{
		registry:  params.Registry,
		validator: v,
		session:   params.Session,
		builder:   NewPayloadBuilder(params.Options.Invocation),
		publisher: publisher,
		journal:   journal,
		metrics:   params.Metrics,
		opts:      params.Options,
	}
}

// Session returns the session owned by this dispatcher.
func (d *Dispatcher) Session() *session.Session { return d.session }

// Dispatch validates s and draws it. The returned error is non-nil only for
// a fatal session error; every other failure is reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, s *spec.Specification) (*Result, error) {
	return d.dispatch(ctx, s, "")
}

// DispatchOutcome dispatches a normalizer outcome and flags fallback use.
func (d *Dispatcher) DispatchOutcome(ctx context.Context, out normalizer.Outcome) (*Result, error) {
	reason := ""
	if out.FallbackUsed {
		reason = out.FallbackReason
		if reason == "" {
			reason = "unknown"
		}
	}
	return d.dispatch(ctx, out.Specification, reason)
}

func (d *Dispatcher) dispatch(ctx context.Context, s *spec.Specification, fallbackReason string) (*Result, error) {
	start := time.Now()
	if s == nil {
		s = &spec.Specification{}
	}
	ctx, span := tracer.Start(ctx, "dispatcher.dispatch", trace.WithAttributes(attribute.String("command", s.Command)))
	defer span.End()

	echo := s.Clone()
	res := newResult(echo.Command)
	res.Specification = echo
	if fallbackReason != "" {
		res.FallbackUsed = true
		res.warn(fmt.Sprintf("request could not be interpreted (%s), drew the default specification", fallbackReason))
	}

	class := ""
	reconnects := d.session.Reconnects()
	defer func() {
		d.finish(ctx, span, res, class, d.session.Reconnects()-reconnects, time.Since(start))
	}()

	if err := d.validator.Validate(echo); err != nil {
		res.fail(CodeInvalidSpecification, "invalid specification: "+err.Error())
		return res, nil
	}

	entry, err := d.registry.Lookup(echo.Command)
	if err != nil {
		res.fail(CodeInvalidSpecification, "invalid specification: "+err.Error())
		return res, nil
	}
	class = string(entry.Class)
	fam, err := familyFor(entry.Class)
	if err != nil {
		res.fail(CodeInvalidSpecification, err.Error())
		return res, nil
	}

	doc, err := d.session.Acquire(ctx)
	if err != nil {
		code := session.CodeOf(err)
		if code == "" {
			code = session.CodeSessionUnavailable
		}
		res.fail(code, err.Error())
		return res, err
	}
	r := &run{entry: entry, spec: echo, doc: doc, result: res}
	if d.session.Reconnects() > reconnects {
		r.reconnected = true
		d.metrics.RecordReconnect(ctx)
		res.warn("host session was reconnected before this command")
	}

	if err := fam.apply(ctx, d, r); err != nil {
		res.fail(CodeTransportFailure, err.Error())
		return res, nil
	}

	res.Success = true
	res.Summary = Summary(echo)
	d.applyExtras(ctx, r)
	return res, nil
}

// sendPrimary renders the entry and sends it.
func (d *Dispatcher) sendPrimary(ctx context.Context, r *run) error {
	payload := d.builder.Build(r.entry, r.spec)
	for _, w := range payload.Warnings {
		r.result.warn(w)
	}
	return d.send(ctx, r, r.doc, payload.Text)
}

// send submits one payload and records a soft timeout on the result.
func (d *Dispatcher) send(ctx context.Context, r *run, doc host.Document, payload string) error {
	slog.Info(fmt.Sprintf("%s - Executing host command: %s", logPrefix, strings.TrimSpace(payload)))
	out, err := d.session.SendOn(ctx, doc, payload, d.opts.Wait)
	if err != nil {
		return err
	}
	if out.TimedOut {
		r.result.TimedOut = true
		r.result.warn(fmt.Sprintf("%s still running when the wait timed out", commandWord(payload)))
	}
	return nil
}

func commandWord(payload string) string {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return "command"
	}
	return fields[0]
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, res *Result, class string, reconnects int, elapsed time.Duration) {
	span.SetAttributes(
		attribute.String("class", class),
		attribute.Bool("success", res.Success),
		attribute.Bool("timed_out", res.TimedOut),
		attribute.Bool("placeholder", res.Placeholder),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}

	d.metrics.RecordDispatch(ctx, metrics.DispatchOutcome{
		Command:     res.Command,
		Class:       class,
		Success:     res.Success,
		TimedOut:    res.TimedOut,
		Placeholder: res.Placeholder,
		Duration:    elapsed,
	})

	event := &events.DispatchCompletedEvent{
		ID:          res.ID,
		Command:     res.Command,
		Class:       class,
		Success:     res.Success,
		TimedOut:    res.TimedOut,
		Placeholder: res.Placeholder,
		Reconnects:  reconnects,
		Warnings:    len(res.Warnings),
		Error:       res.Error,
		DurationMs:  elapsed.Milliseconds(),
		Timestamp:   res.Timestamp,
	}
	if err := d.publisher.PublishDispatched(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - Failed to publish dispatch event: %v", logPrefix, err))
	}

	entry := db.Entry{
		ID:          res.ID,
		Command:     res.Command,
		Class:       class,
		Success:     res.Success,
		TimedOut:    res.TimedOut,
		Placeholder: res.Placeholder,
		Reconnects:  reconnects,
		Error:       res.Error,
		DurationMs:  elapsed.Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.journal.Record(ctx, entry); err != nil {
		slog.Warn(fmt.Sprintf("%s - Failed to record journal entry: %v", logPrefix, err))
	}

	if res.Success {
		slog.Info(fmt.Sprintf("%s - %s dispatched in %s (warnings=%d)", logPrefix, res.Command, elapsed.Round(time.Millisecond), len(res.Warnings)))
	} else {
		slog.Warn(fmt.Sprintf("%s - %s failed: %s", logPrefix, res.Command, res.Error))
	}
}

// Blocks lists the block definitions of the active document.
func (d *Dispatcher) Blocks(ctx context.Context) ([]string, error) {
	doc, err := d.session.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	blocks, err := doc.Blocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s - list blocks: %w", logPrefix, err)
	}
	return blocks, nil
}
