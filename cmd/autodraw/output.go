package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/morezero/autodraw-agent/pkg/batch"
	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

// Output formats.
const (
	outputJSON = "json"
	outputText = "text"
)

// printer writes command output as indented JSON or as plain text.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, json: format == outputJSON}
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) result(res *dispatcher.Result) {
	if p.json {
		_ = p.encode(res)
		return
	}
	p.resultLine("", res)
}

func (p *printer) resultLine(prefix string, res *dispatcher.Result) {
	if res.Success {
		fmt.Fprintf(p.w, "%sOK    %s: %s\n", prefix, res.Command, res.Summary)
	} else {
		fmt.Fprintf(p.w, "%sFAIL  %s [%s] %s\n", prefix, res.Command, res.ErrorCode, res.Error)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(p.w, "%s      warning: %s\n", prefix, w)
	}
}

func (p *printer) report(r *batch.Report) {
	if p.json {
		_ = p.encode(r)
		return
	}
	for i, res := range r.Results {
		p.resultLine(fmt.Sprintf("[%d] ", i+1), res)
	}
	fmt.Fprintf(p.w, "%d of %d succeeded, %d failed\n", r.Succeeded, r.Total, r.Failed)
}

func (p *printer) dryRun(r DryRunResult) {
	if p.json {
		_ = p.encode(r)
		return
	}
	command := ""
	if r.Specification != nil {
		command = r.Specification.Command
	}
	if !r.Valid {
		fmt.Fprintf(p.w, "[%d] INVALID %s [%s] %s\n", r.Index+1, command, r.Error.Code, r.Error.Message)
		return
	}
	fallback := ""
	if r.FallbackUsed {
		fallback = " (default specification)"
	}
	fmt.Fprintf(p.w, "[%d] VALID %s%s: %s", r.Index+1, command, fallback, r.Payload)
	if !strings.HasSuffix(r.Payload, "\n") {
		fmt.Fprintln(p.w)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(p.w, "      warning: %s\n", w)
	}
}

func (p *printer) validation(i int, s *spec.Specification, v dispatcher.ValidateResult) {
	if p.json {
		_ = p.encode(struct {
			Index int `json:"index"`
			dispatcher.ValidateResult
		}{i, v})
		return
	}
	if v.Valid {
		fmt.Fprintf(p.w, "[%d] VALID %s\n", i+1, s.Command)
		return
	}
	fmt.Fprintf(p.w, "[%d] INVALID %s [%s] %s\n", i+1, s.Command, v.Error.Code, v.Error.Message)
}

func (p *printer) commands(entries []capability.Entry) error {
	if p.json {
		return p.encode(entries)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tCLASS\tHOST\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Command, e.Class, e.External, e.Description)
	}
	return tw.Flush()
}

func (p *printer) systems(systems []capability.LightingSystem) error {
	if p.json {
		return p.encode(systems)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tCOMMAND\tWATTAGE\tSIZE")
	for _, ls := range systems {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%sW\t%s x %s\n", ls.Key, ls.Name, ls.Command,
			spec.FormatNumber(ls.DefaultWattage), spec.FormatNumber(ls.Length), spec.FormatNumber(ls.Width))
	}
	return tw.Flush()
}

func (p *printer) blocks(blocks []string) error {
	if p.json {
		return p.encode(blocks)
	}
	for _, b := range blocks {
		fmt.Fprintln(p.w, b)
	}
	return nil
}
