package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/autodraw-agent/pkg/spec"
)

const placeholderLogPrefix = "dispatcher:placeholder"

// drawPlaceholder draws a closed square sized by the scale factor and
// centred at the insertion point, plus a text label with the block name.
func (d *Dispatcher) drawPlaceholder(ctx context.Context, r *run, blockName string) error {
	center := spec.Point3{}
	if p := r.spec.Position.InsertionPoint; p != nil {
		center = *p
	}
	scale := 1.0
	if n, ok := r.spec.Extras.Number("scale_factor"); ok && spec.IsFinite(n) && n > 0 {
		scale = n
	}

	half := scale / 2
	lower := spec.Point3{X: center.X - half, Y: center.Y - half, Z: center.Z}
	upper := spec.Point3{X: center.X + half, Y: center.Y + half, Z: center.Z}
	textHeight := scale / 8

	slog.Info(fmt.Sprintf("%s - Block %s not available, drawing placeholder at %s", placeholderLogPrefix, blockName, center.String()))

	rect := fmt.Sprintf("_RECTANG %s %s\n", lower.String(), upper.String())
	if err := d.send(ctx, r, r.doc, rect); err != nil {
		return err
	}

	label := fmt.Sprintf("_TEXT %s %s 0 %s\n", lower.String(), spec.FormatNumber(textHeight), blockName)
	if err := d.send(ctx, r, r.doc, label); err != nil {
		r.result.warn(fmt.Sprintf("placeholder label failed: %v", err))
	}

	r.result.Placeholder = true
	r.result.warn(fmt.Sprintf("block %q not found, drew placeholder", blockName))
	return nil
}
