package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/morezero/autodraw-agent/internal/config"
	"github.com/morezero/autodraw-agent/internal/server"
	"github.com/morezero/autodraw-agent/pkg/batch"
	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/normalizer"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

// cliEnv carries the configuration, the streams and the host connector of
// one CLI run.
type cliEnv struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	open   func(*config.Config) (*server.Local, error)
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *cliEnv) *cli.App {
	app := &cli.App{
		Name:      "autodraw",
		Usage:     "Draw lighting layouts and primitives in the host CAD application",
		Version:   Version,
		Reader:    env.stdin,
		Writer:    env.stdout,
		ErrWriter: env.stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Debug logging on stderr"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: outputText, Usage: "Output format: json|text"},
		},
		Before: func(c *cli.Context) error {
			switch c.String("output") {
			case outputJSON, outputText:
			default:
				return usageError(fmt.Errorf("--output must be json or text, got %q", c.String("output")))
			}
			if c.Bool("verbose") {
				server.SetupLoggingTo("debug", env.stderr)
			}
			return nil
		},
		OnUsageError: onUsageError,
		Commands: []*cli.Command{
			drawCmd(env),
			validateCmd(env),
			commandsCmd(env),
			systemsCmd(env),
			promptCmd(env),
			blocksCmd(env),
		},
	}
	// Exit codes are applied by main, which keeps Run testable.
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func onUsageError(_ *cli.Context, err error, _ bool) error {
	return usageError(err)
}

func usageError(err error) error {
	return cli.Exit(err.Error(), exitUsage)
}

// failed reports that at least one request did not succeed. Its details
// were already printed.
func failed() error {
	return cli.Exit("", exitFailed)
}

// drawCmd creates the draw command.
func drawCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "draw",
		Usage:        "Draw from free text, a batch file or structured flags",
		Flags:        drawFlags(),
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			inputs, err := drawInputs(c)
			if err != nil {
				return usageError(err)
			}
			out := newPrinter(env.stdout, c.String("output"))

			if c.Bool("dry-run") {
				pipe, err := server.NewPipeline(env.cfg)
				if err != nil {
					return cli.Exit(err.Error(), exitFailed)
				}
				if !dryRun(c.Context, pipe, env.cfg, inputs, out) {
					return failed()
				}
				return nil
			}

			local, err := env.open(env.cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			defer local.Close(context.Background())

			if len(inputs) == 1 {
				res, err := local.Pool.DispatchOutcome(c.Context, local.Normalizer.Normalize(c.Context, inputs[0]))
				if res != nil {
					out.result(res)
				}
				if err != nil || res == nil || !res.Success {
					return failed()
				}
				return nil
			}

			delay := env.cfg.BatchDelay
			if delay == 0 {
				delay = -1
			}
			report, err := batch.NewCoordinator(batch.NewCoordinatorParams{
				Normalizer: local.Normalizer,
				Executor:   local.Pool,
				Delay:      delay,
			}).Run(c.Context, inputs)
			if report != nil {
				out.report(report)
			}
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			if !report.AllSucceeded() {
				return failed()
			}
			return nil
		},
	}
}

// drawInputs collects the requests of one draw invocation. Exactly one of
// --natural, --batch-file or the structured flags must be used.
func drawInputs(c *cli.Context) ([]normalizer.RawInput, error) {
	structured, hasStructured, err := specFromFlags(c)
	if err != nil {
		return nil, err
	}

	sources := 0
	for _, used := range []bool{c.IsSet("natural"), c.IsSet("batch-file"), hasStructured} {
		if used {
			sources++
		}
	}
	switch {
	case sources == 0:
		return nil, errors.New("one of --natural, --batch-file or structured flags (--command, --system, ...) is required")
	case sources > 1:
		return nil, errors.New("--natural, --batch-file and structured flags cannot be combined")
	}

	switch {
	case c.IsSet("natural"):
		return []normalizer.RawInput{{Text: c.String("natural")}}, nil
	case c.IsSet("batch-file"):
		inputs, err := batch.LoadBatchFile(c.String("batch-file"))
		if err != nil {
			return nil, err
		}
		if len(inputs) == 0 {
			return nil, fmt.Errorf("batch file %s has no requests", c.String("batch-file"))
		}
		return inputs, nil
	}
	return []normalizer.RawInput{{Structured: structured}}, nil
}

// DryRunResult is what draw --dry-run reports per request.
type DryRunResult struct {
	Index         int                   `json:"index"`
	Specification *spec.Specification   `json:"specification"`
	FallbackUsed  bool                  `json:"fallback_used"`
	Valid         bool                  `json:"valid"`
	Error         *spec.ValidationError `json:"error,omitempty"`
	Payload       string                `json:"payload,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
}

// dryRun normalizes and validates every input and renders the primary
// host command without sending it. It reports whether all were valid.
func dryRun(ctx context.Context, pipe *server.Pipeline, cfg *config.Config, inputs []normalizer.RawInput, out *printer) bool {
	builder := dispatcher.NewPayloadBuilder(cfg.Invocation())
	allValid := true
	for i, in := range inputs {
		o := pipe.Normalizer.Normalize(ctx, in)
		r := DryRunResult{Index: i, Specification: o.Specification, FallbackUsed: o.FallbackUsed, Valid: true}
		if err := pipe.Validator.Validate(o.Specification); err != nil {
			r.Valid = false
			if verr, ok := spec.AsValidationError(err); ok {
				r.Error = verr
			} else {
				r.Error = &spec.ValidationError{Kind: spec.KindStructural, Message: err.Error()}
			}
		} else if entry, err := pipe.Registry.Lookup(o.Specification.Command); err == nil {
			p := builder.Build(entry, o.Specification.Clone())
			r.Payload = p.Text
			r.Warnings = p.Warnings
		}
		allValid = allValid && r.Valid
		out.dryRun(r)
	}
	return allValid
}

// validateCmd creates the validate command.
func validateCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "validate",
		Usage:        "Validate specifications from a JSON file (object or array); - reads stdin",
		ArgsUsage:    "FILE|-",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return usageError(errors.New("validate takes exactly one FILE argument (- for stdin)"))
			}
			data, err := readInput(c.Args().First(), env.stdin)
			if err != nil {
				return usageError(err)
			}
			specs, err := parseSpecifications(data)
			if err != nil {
				return usageError(err)
			}

			pipe, err := server.NewPipeline(env.cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			rt := pipe.Router(nil)
			out := newPrinter(env.stdout, c.String("output"))
			allValid := true
			for i, s := range specs {
				v := rt.Validate(s)
				allValid = allValid && v.Valid
				out.validation(i, s, v)
			}
			if !allValid {
				return failed()
			}
			return nil
		},
	}
}

// readInput reads a whole file, or stdin for "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// parseSpecifications accepts one specification object or an array of them.
func parseSpecifications(data []byte) ([]*spec.Specification, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, errors.New("no specification given")
	}
	if strings.HasPrefix(trimmed, "[") {
		var specs []*spec.Specification
		if err := json.Unmarshal([]byte(trimmed), &specs); err != nil {
			return nil, fmt.Errorf("parse specifications: %w", err)
		}
		return specs, nil
	}
	var s spec.Specification
	if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
		return nil, fmt.Errorf("parse specification: %w", err)
	}
	return []*spec.Specification{&s}, nil
}

// commandsCmd creates the commands command.
func commandsCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "commands",
		Usage:        "List catalog commands",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "class", Usage: "Only list commands of this class"},
		},
		Action: func(c *cli.Context) error {
			pipe, err := server.NewPipeline(env.cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			entries := pipe.Registry.List()
			if class := c.String("class"); class != "" {
				filtered := entries[:0:0]
				for _, e := range entries {
					if string(e.Class) == class {
						filtered = append(filtered, e)
					}
				}
				if len(filtered) == 0 && !knownClass(class) {
					return usageError(fmt.Errorf("unknown class %q", class))
				}
				entries = filtered
			}
			return newPrinter(env.stdout, c.String("output")).commands(entries)
		},
	}
}

func knownClass(name string) bool {
	for _, c := range capability.Classes {
		if string(c) == name {
			return true
		}
	}
	return false
}

// systemsCmd creates the systems command.
func systemsCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "systems",
		Usage:        "List lighting systems",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			pipe, err := server.NewPipeline(env.cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			return newPrinter(env.stdout, c.String("output")).systems(pipe.Registry.LightingSystems())
		},
	}
}

// promptCmd creates the prompt command.
func promptCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "prompt",
		Usage:        "Print the instruction prompt sent to the completion service",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			pipe, err := server.NewPipeline(env.cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			_, err = fmt.Fprintln(env.stdout, pipe.Normalizer.Prompt())
			return err
		},
	}
}

// blocksCmd creates the blocks command.
func blocksCmd(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "blocks",
		Usage:        "List block definitions in the host's active document",
		OnUsageError: onUsageError,
		Action: func(c *cli.Context) error {
			local, err := env.open(env.cfg)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			defer local.Close(context.Background())

			blocks, err := local.Pool.Blocks(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), exitFailed)
			}
			return newPrinter(env.stdout, c.String("output")).blocks(blocks)
		},
	}
}
