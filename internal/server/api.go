package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/morezero/autodraw-agent/pkg/batch"
	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/session"
)

const apiLogPrefix = "server:api"

// APIParams holds parameters for NewAPI.
type APIParams struct {
	Pipeline *Pipeline
	Executor dispatcher.Executor
	// BatchDelay is the pause between batch items. Zero or negative means none.
	BatchDelay         time.Duration
	RequestTimeout     time.Duration
	HealthCheckTimeout time.Duration
	// Ready reports whether the agent can serve draws. Nil means always ready.
	Ready func(ctx context.Context) error
	// Tokens, when set, protects every /api/v1 route.
	Tokens *TokenManager
}

// API is the HTTP surface of the agent.
type API struct {
	pipeline       *Pipeline
	executor       dispatcher.Executor
	router         *dispatcher.Router
	batchDelay     time.Duration
	requestTimeout time.Duration
	healthTimeout  time.Duration
	ready          func(ctx context.Context) error
	tokens         *TokenManager
	home           []byte
}

// BatchRequest is the body of POST /api/v1/batch and the first websocket
// message of the batch stream.
type BatchRequest struct {
	Requests []normalizer.RawInput `json:"requests"`
}

// BatchResponse carries the report of a batch and, when it stopped early, why.
type BatchResponse struct {
	Report *batch.Report           `json:"report"`
	Error  *dispatcher.ErrorDetail `json:"error,omitempty"`
}

// NewAPI creates the HTTP API.
func NewAPI(params APIParams) (*API, error) {
	requestTimeout := params.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	healthTimeout := params.HealthCheckTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}
	home, err := RenderCatalogPage(params.Pipeline.Registry)
	if err != nil {
		return nil, err
	}
	return &API{
		pipeline:       params.Pipeline,
		executor:       params.Executor,
		router:         params.Pipeline.Router(params.Executor),
		batchDelay:     params.BatchDelay,
		requestTimeout: requestTimeout,
		healthTimeout:  healthTimeout,
		ready:          params.Ready,
		tokens:         params.Tokens,
		home:           home,
	}, nil
}

// Handler builds the gin engine.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware(), loggingMiddleware())

	r.GET("/", a.handleHome)
	r.GET("/health", a.handleHealth)
	r.GET("/ready", a.handleReady)

	v1 := r.Group("/api/v1")
	if a.tokens != nil {
		v1.Use(RequireAuth(a.tokens))
	}
	v1.POST("/draw", a.handleDraw)
	v1.POST("/validate", a.routed("validate"))
	v1.POST("/normalize", a.routed("normalize"))
	v1.POST("/batch", a.handleBatch)
	v1.GET("/batch/stream", a.handleBatchStream)
	v1.GET("/blocks", a.routed("blocks"))
	v1.GET("/commands", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.pipeline.Registry.List())
	})
	v1.GET("/lighting-systems", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.pipeline.Registry.LightingSystems())
	})
	v1.GET("/vocabulary", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.pipeline.Registry.Vocabulary())
	})
	v1.GET("/status", a.handleStatus)
	v1.GET("/config", a.handleConfig)
	return r
}

// StatusResult is the body of GET /api/v1/status.
type StatusResult struct {
	HostConnected        bool   `json:"host_connected"`
	HostError            string `json:"host_error,omitempty"`
	CompletionConfigured bool   `json:"completion_configured"`
	Catalog              string `json:"catalog"`
}

// ConfigResult is the body of GET /api/v1/config.
type ConfigResult struct {
	Settings
	Vocabulary capability.Vocabulary `json:"vocabulary"`
}

// handleStatus always answers 200; the body says what is unavailable.
func (a *API) handleStatus(c *gin.Context) {
	status := StatusResult{
		HostConnected:        true,
		CompletionConfigured: a.pipeline.Settings.CompletionConfigured,
		Catalog:              a.pipeline.Registry.Name(),
	}
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), a.healthTimeout)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			status.HostConnected = false
			status.HostError = err.Error()
		}
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, ConfigResult{
		Settings:   a.pipeline.Settings,
		Vocabulary: a.pipeline.Registry.Vocabulary(),
	})
}

func (a *API) handleHome(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", a.home)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, a.router.Health())
}

func (a *API) handleReady(c *gin.Context) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), a.healthTimeout)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleDraw answers with the Result itself whenever the dispatcher produced one.
func (a *API) handleDraw(c *gin.Context) {
	resp, ok := a.route(c, "draw", true)
	if !ok {
		return
	}
	if res, isResult := resp.Result.(*dispatcher.Result); isResult {
		c.JSON(StatusFor(resp), res)
		return
	}
	c.JSON(StatusFor(resp), gin.H{"error": resp.Error})
}

// routed serves a router method and answers with its result or error.
func (a *API) routed(method string) gin.HandlerFunc {
	needsBody := method == "validate" || method == "normalize"
	return func(c *gin.Context) {
		resp, ok := a.route(c, method, needsBody)
		if !ok {
			return
		}
		if !resp.Ok {
			c.JSON(StatusFor(resp), gin.H{"error": resp.Error})
			return
		}
		c.JSON(http.StatusOK, resp.Result)
	}
}

func (a *API) route(c *gin.Context, method string, needsBody bool) (*dispatcher.Response, bool) {
	raw, err := c.GetRawData()
	if err != nil || (needsBody && len(raw) == 0) {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "A JSON request body is required"))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), a.requestTimeout)
	defer cancel()
	return a.router.Route(ctx, &dispatcher.Request{
		ID:     c.GetString("request_id"),
		Method: method,
		Params: raw,
	}), true
}

func (a *API) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Requests) == 0 {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ARGUMENT", "Body must be {\"requests\": [...]} with at least one request"))
		return
	}

	report, err := a.coordinator(nil).Run(c.Request.Context(), req.Requests)
	if err != nil {
		detail := SessionErrorDetail(err)
		c.JSON(statusForCode(detail.Code), BatchResponse{Report: report, Error: detail})
		return
	}
	c.JSON(http.StatusOK, BatchResponse{Report: report})
}

func (a *API) coordinator(onResult func(int, *dispatcher.Result)) *batch.Coordinator {
	delay := a.batchDelay
	if delay == 0 {
		delay = -1
	}
	return batch.NewCoordinator(batch.NewCoordinatorParams{
		Normalizer: a.pipeline.Normalizer,
		Executor:   a.executor,
		Delay:      delay,
		OnResult:   onResult,
	})
}

// StatusFor maps a router response onto an HTTP status.
func StatusFor(resp *dispatcher.Response) int {
	if resp.Ok {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	return statusForCode(resp.Error.Code)
}

func statusForCode(code string) int {
	switch code {
	case "INVALID_ARGUMENT", "INVALID_REQUEST":
		return http.StatusBadRequest
	case "METHOD_NOT_FOUND":
		return http.StatusNotFound
	case dispatcher.CodeInvalidSpecification:
		return http.StatusUnprocessableEntity
	case dispatcher.CodeTransportFailure:
		return http.StatusBadGateway
	case session.CodeSessionExhausted, session.CodeSessionUnavailable,
		session.CodeSessionClosed, session.CodeHostIncompatible:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// SessionErrorDetail describes an error returned next to a dispatch result.
func SessionErrorDetail(err error) *dispatcher.ErrorDetail {
	code := session.CodeOf(err)
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	return &dispatcher.ErrorDetail{
		Code:      code,
		Message:   err.Error(),
		Retryable: code == session.CodeSessionExhausted || code == session.CodeSessionUnavailable,
	}
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": &dispatcher.ErrorDetail{Code: code, Message: message}}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info(fmt.Sprintf("%s - %s %s %d %s request_id=%s", apiLogPrefix,
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(),
			time.Since(start).Round(time.Millisecond), c.GetString("request_id")))
	}
}
