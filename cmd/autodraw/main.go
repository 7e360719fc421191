// Package main is the autodraw command line: draw, validate and inspect
// drawing requests against the host.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/morezero/autodraw-agent/internal/config"
	"github.com/morezero/autodraw-agent/internal/server"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "autodraw: load config: %v\n", err)
		os.Exit(exitUsage)
	}
	server.SetupLoggingTo(cfg.LogLevel, os.Stderr)

	app := newCLIApp(&cliEnv{
		cfg:    cfg,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		open:   server.OpenLocal,
	})
	err = app.Run(os.Args)
	if err != nil && err.Error() != "" {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps an app error to the process exit status. Errors that carry
// no code come from flag parsing and count as usage errors.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitUsage
}
