package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/session"
	"github.com/morezero/autodraw-agent/pkg/spec"
	"github.com/morezero/autodraw-agent/pkg/validator"
)

const routerLogPrefix = "dispatcher:router"

// Executor runs drawing work. *Dispatcher and the worker pool implement it.
type Executor interface {
	DispatchOutcome(ctx context.Context, out normalizer.Outcome) (*Result, error)
	Blocks(ctx context.Context) ([]string, error)
}

// Router routes COMMS envelopes to the normalizer, validator and executor.
type Router struct {
	registry   *capability.Registry
	validator  *validator.Validator
	normalizer *normalizer.Normalizer
	executor   Executor
}

// NewRouterParams holds parameters for NewRouter.
type NewRouterParams struct {
	Registry   *capability.Registry
	Validator  *validator.Validator
	Normalizer *normalizer.Normalizer
	Executor   Executor
}

// NewRouter creates a new Router.
func NewRouter(params NewRouterParams) *Router {
	return &Router{
		registry:   params.Registry,
		validator:  params.Validator,
		normalizer: params.Normalizer,
		executor:   params.Executor,
	}
}

// ValidateParams is the params shape of the validate method.
type ValidateParams struct {
	Specification *spec.Specification `json:"specifications"`
}

// ValidateResult reports the validator verdict.
type ValidateResult struct {
	Valid bool                  `json:"valid"`
	Error *spec.ValidationError `json:"error,omitempty"`
}

// HealthResult is the result of the health method.
type HealthResult struct {
	Status        string `json:"status"`
	Catalog       string `json:"catalog"`
	SchemaVersion string `json:"schemaVersion"`
	Commands      int    `json:"commands"`
	Strict        bool   `json:"strict"`
}

// Route handles one request envelope and returns its response.
func (rt *Router) Route(ctx context.Context, req *Request) *Response {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", routerLogPrefix, req.Method, req.ID))

	switch req.Method {
	case "draw":
		return rt.handleDraw(ctx, req)
	case "validate":
		return rt.handleValidate(req)
	case "normalize":
		return rt.handleNormalize(ctx, req)
	case "commands":
		return &Response{ID: req.ID, Ok: true, Result: rt.registry.List()}
	case "blocks":
		return rt.handleBlocks(ctx, req)
	case "health":
		return &Response{ID: req.ID, Ok: true, Result: rt.Health()}
	default:
		return errorResponse(req.ID, "METHOD_NOT_FOUND", fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

// Health reports the catalog in use.
func (rt *Router) Health() HealthResult {
	return HealthResult{
		Status:        "ok",
		Catalog:       rt.registry.Name(),
		SchemaVersion: rt.registry.SchemaVersion(),
		Commands:      len(rt.registry.List()),
		Strict:        rt.validator.Strict(),
	}
}

func (rt *Router) handleDraw(ctx context.Context, req *Request) *Response {
	var input normalizer.RawInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse draw params", false)
	}

	res, err := rt.executor.DispatchOutcome(ctx, rt.normalizer.Normalize(ctx, input))
	return resultResponse(req.ID, res, err)
}

func (rt *Router) handleValidate(req *Request) *Response {
	var input ValidateParams
	if err := decodeParams(req.Params, &input); err != nil || input.Specification == nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse validate params", false)
	}
	return &Response{ID: req.ID, Ok: true, Result: rt.Validate(input.Specification)}
}

// Validate runs the validator and shapes its verdict.
func (rt *Router) Validate(s *spec.Specification) ValidateResult {
	err := rt.validator.Validate(s)
	if err == nil {
		return ValidateResult{Valid: true}
	}
	verr, ok := spec.AsValidationError(err)
	if !ok {
		verr = &spec.ValidationError{Kind: spec.KindStructural, Message: err.Error()}
	}
	return ValidateResult{Valid: false, Error: verr}
}

func (rt *Router) handleNormalize(ctx context.Context, req *Request) *Response {
	var input normalizer.RawInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse normalize params", false)
	}
	return &Response{ID: req.ID, Ok: true, Result: rt.normalizer.Normalize(ctx, input)}
}

func (rt *Router) handleBlocks(ctx context.Context, req *Request) *Response {
	blocks, err := rt.executor.Blocks(ctx)
	if err != nil {
		return sessionErrorResponse(req.ID, err)
	}
	return &Response{ID: req.ID, Ok: true, Result: blocks}
}

// --- helpers ---

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func errorResponse(id, code, message string, retryable bool) *Response {
	return &Response{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

// resultResponse wraps a dispatch result. Failed results carry an error
// detail as well as the result itself.
func resultResponse(id string, res *Result, err error) *Response {
	if res == nil {
		return sessionErrorResponse(id, err)
	}
	if res.Success {
		return &Response{ID: id, Ok: true, Result: res}
	}
	detail := ErrorFor(res)
	if err != nil {
		detail.Retryable = retryableSession(err)
	}
	return &Response{ID: id, Ok: false, Result: res, Error: detail}
}

// ErrorFor builds the error detail of a failed result.
func ErrorFor(res *Result) *ErrorDetail {
	code := res.ErrorCode
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	return &ErrorDetail{
		Code:      code,
		Message:   res.Error,
		Details:   res.Warnings,
		Retryable: code == CodeTransportFailure,
	}
}

func sessionErrorResponse(id string, err error) *Response {
	if err == nil {
		return errorResponse(id, "INTERNAL_ERROR", "no result", true)
	}
	code := session.CodeOf(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	return errorResponse(id, code, err.Error(), retryableSession(err))
}

func retryableSession(err error) bool {
	switch session.CodeOf(err) {
	case session.CodeSessionUnavailable, session.CodeSessionExhausted:
		return true
	}
	return false
}
