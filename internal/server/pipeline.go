package server

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/autodraw-agent/internal/config"
	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/db"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/events"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/llm"
	"github.com/morezero/autodraw-agent/pkg/metrics"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/session"
	"github.com/morezero/autodraw-agent/pkg/validator"
	"github.com/morezero/autodraw-agent/pkg/worker"
)

const pipelineLogPrefix = "server:pipeline"

// SetupLogging installs the default slog handler at the LOG_LEVEL level.
func SetupLogging(level string) {
	SetupLoggingTo(level, os.Stdout)
}

// SetupLoggingTo is SetupLogging with another destination. The CLI and the
// MCP server log to stderr because stdout carries their output.
func SetupLoggingTo(level string, w io.Writer) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// Pipeline holds the stages that need no host: catalog, validator and normalizer.
// The agent server, the CLI and the MCP server all start from one.
type Pipeline struct {
	Registry   *capability.Registry
	Validator  *validator.Validator
	Normalizer *normalizer.Normalizer
	Settings   Settings
}

// Settings is the effective runtime configuration reported by the service.
// It never carries secrets.
type Settings struct {
	CompletionConfigured bool    `json:"completion_configured"`
	Model                string  `json:"model"`
	Temperature          float32 `json:"temperature"`
	MaxTokens            int     `json:"max_tokens"`
	InvocationMode       string  `json:"invocation_mode"`
	ValidationStrict     bool    `json:"validation_strict"`
	CommandTimeout       string  `json:"command_timeout"`
	PollInterval         string  `json:"poll_interval"`
	BatchDelay           string  `json:"batch_delay"`
	Workers              int     `json:"workers"`
}

// NewPipeline loads the catalog and builds the validator and normalizer.
func NewPipeline(cfg *config.Config) (*Pipeline, error) {
	cat, err := capability.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load catalog: %w", pipelineLogPrefix, err)
	}
	reg, err := capability.New(cat)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid catalog: %w", pipelineLogPrefix, err)
	}

	var client llm.Client = llm.Unconfigured{}
	if cfg.LLMConfigured() {
		client = llm.NewOpenAIClient(llm.OpenAIClientParams{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		})
	} else {
		slog.Info(fmt.Sprintf("%s - No completion service configured; free-text requests use the default specification", pipelineLogPrefix))
	}

	return &Pipeline{
		Registry:  reg,
		Validator: validator.New(reg, validator.Options{Strict: cfg.ValidationStrict}),
		Normalizer: normalizer.New(reg, client, normalizer.Options{
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		}),
		Settings: Settings{
			CompletionConfigured: cfg.LLMConfigured(),
			Model:                cfg.LLMModel,
			Temperature:          cfg.LLMTemperature,
			MaxTokens:            cfg.LLMMaxTokens,
			InvocationMode:       string(cfg.Invocation()),
			ValidationStrict:     cfg.ValidationStrict,
			CommandTimeout:       cfg.CommandTimeout.String(),
			PollInterval:         cfg.PollInterval.String(),
			BatchDelay:           cfg.BatchDelay.String(),
			Workers:              cfg.Workers,
		},
	}, nil
}

// WorkersParams holds parameters for NewWorkers. Publisher, Journal and
// Metrics are optional.
type WorkersParams struct {
	Conn      *comms.Conn
	Publisher events.EventPublisher
	Journal   db.Journal
	Metrics   *metrics.DispatchMetrics
}

// NewWorkers builds a pool of cfg.Workers dispatchers. Every worker owns its
// own host session on cfg.HostInstance.
func (p *Pipeline) NewWorkers(cfg *config.Config, params WorkersParams) (*worker.Pool, error) {
	versionRange := cfg.HostVersionRange
	if versionRange == "" {
		versionRange = p.Registry.HostVersionRange()
	}
	opts := dispatcher.Options{Invocation: cfg.Invocation(), Wait: cfg.WaitOptions()}

	return worker.NewPool(worker.NewPoolParams{
		Size: cfg.Workers,
		Factory: func(id int) (*dispatcher.Dispatcher, error) {
			if params.Conn == nil {
				return nil, fmt.Errorf("%s - worker %d has no COMMS connection", pipelineLogPrefix, id)
			}
			h := host.NewCommsHost(host.NewCommsHostParams{
				Conn:        params.Conn,
				Instance:    cfg.HostInstance,
				CallTimeout: cfg.HostRequestTimeout,
			})
			return dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
				Registry:  p.Registry,
				Validator: p.Validator,
				Session:   session.New(session.NewParams{Host: h, HostVersionRange: versionRange}),
				Publisher: params.Publisher,
				Journal:   params.Journal,
				Metrics:   params.Metrics,
				Options:   opts,
			}), nil
		},
	})
}

// Router builds the COMMS envelope router on top of an executor.
func (p *Pipeline) Router(exec dispatcher.Executor) *dispatcher.Router {
	return dispatcher.NewRouter(dispatcher.NewRouterParams{
		Registry:   p.Registry,
		Validator:  p.Validator,
		Normalizer: p.Normalizer,
		Executor:   exec,
	})
}
