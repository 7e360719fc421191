package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const extrasLogPrefix = "dispatcher:extras"

// applyExtras runs the best-effort follow-up commands for the extras keys
// the primary command did not consume. Failures only add warnings.
func (d *Dispatcher) applyExtras(ctx context.Context, r *run) {
	if len(r.spec.Extras) == 0 {
		return
	}
	for _, action := range d.registry.Extras() {
		val, ok := r.spec.Extras[action.Key]
		if !ok || r.entry.Consumes(capability.SectionExtras, action.Key) {
			continue
		}
		payload, err := renderExtra(action, val, r.spec.Extras)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Skipping extra %s: %v", extrasLogPrefix, action.Key, err))
			r.result.warn(fmt.Sprintf("extra %s skipped: %v", action.Key, err))
			continue
		}
		if payload == "" {
			continue
		}
		if err := d.send(ctx, r, r.doc, payload); err != nil {
			slog.Warn(fmt.Sprintf("%s - Extra %s failed: %v", extrasLogPrefix, action.Key, err))
			r.result.warn(fmt.Sprintf("extra %s failed: %v", action.Key, err))
		}
	}
}

// renderExtra renders one follow-up command. A false bool extra renders "".
func renderExtra(action capability.ExtraAction, val any, extras spec.Values) (string, error) {
	var value string
	switch action.Kind {
	case capability.KindBool:
		if !spec.Truthy(val) {
			return "", nil
		}
	case capability.KindNumber, capability.KindKelvin:
		n, ok := spec.ParseNumber(val)
		if !ok || !spec.IsFinite(n) {
			return "", fmt.Errorf("value %q is not a number", spec.FormatValue(val))
		}
		value = spec.FormatNumber(n)
	default:
		value = spec.FormatValue(val)
	}

	tokens := make([]string, 0, len(action.Args))
	for _, arg := range action.Args {
		tokens = append(tokens, expandArg(arg, value, extras))
	}
	if len(tokens) == 0 {
		return action.External + "\n", nil
	}
	return action.External + " " + strings.Join(tokens, " ") + "\n", nil
}

// expandArg replaces "{value}" and "{key|default}" templates.
func expandArg(arg, value string, extras spec.Values) string {
	if !strings.HasPrefix(arg, "{") || !strings.HasSuffix(arg, "}") {
		return arg
	}
	inner := arg[1 : len(arg)-1]
	if inner == "value" {
		return value
	}
	key, def, _ := strings.Cut(inner, "|")
	if v, ok := extras.String(key); ok && v != "" {
		return v
	}
	return def
}
