package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/host"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const familiesLogPrefix = "dispatcher:families"

// run is the state of one dispatch shared by the family handlers.
type run struct {
	entry       *capability.Entry
	spec        *spec.Specification
	doc         host.Document
	result      *Result
	reconnected bool
}

// family sends the primary command(s) of one capability class. The returned
// error is a transport failure of the primary command.
type family interface {
	apply(ctx context.Context, d *Dispatcher, r *run) error
}

var families = map[capability.Class]family{
	capability.ClassFixture:      fixtureFamily{},
	capability.ClassPrimitive:    primitiveFamily{},
	capability.ClassAnnotation:   annotationFamily{},
	capability.ClassBlock:        blockFamily{},
	capability.ClassModifier:     modifierFamily{},
	capability.ClassHousekeeping: housekeepingFamily{},
}

func familyFor(class capability.Class) (family, error) {
	f, ok := families[class]
	if !ok {
		return nil, fmt.Errorf("%s - no handler family for class %q", familiesLogPrefix, class)
	}
	return f, nil
}

// fixtureFamily fills length, width and wattage from the lighting system
// when the request leaves them out.
type fixtureFamily struct{}

func (fixtureFamily) apply(ctx context.Context, d *Dispatcher, r *run) error {
	sys, ok := d.registry.LightingSystem(r.spec.LightingSystem)
	if !ok {
		r.result.warn(fmt.Sprintf("unknown lighting system %q, using catalog defaults", r.spec.LightingSystem))
	} else {
		if r.spec.Dimensions == nil {
			r.spec.Dimensions = spec.Dimensions{}
		}
		if _, has := r.spec.Dimensions[spec.DimLength]; !has && sys.Length > 0 {
			r.spec.Dimensions[spec.DimLength] = sys.Length
		}
		if _, has := r.spec.Dimensions[spec.DimWidth]; !has && sys.Width > 0 {
			r.spec.Dimensions[spec.DimWidth] = sys.Width
		}
		if r.spec.Attributes == nil {
			r.spec.Attributes = spec.Values{}
		}
		if _, has := r.spec.Attributes["wattage"]; !has && sys.DefaultWattage > 0 {
			r.spec.Attributes["wattage"] = sys.DefaultWattage
		}
	}
	return d.sendPrimary(ctx, r)
}

// primitiveFamily derives a rectangle's opposite corner from length and
// width when only the start corner is given.
type primitiveFamily struct{}

func (primitiveFamily) apply(ctx context.Context, d *Dispatcher, r *run) error {
	if r.entry.Command == "rectangle" && r.spec.Position.EndPoint == nil {
		length, hasL := r.spec.Dimensions.Get(spec.DimLength)
		width, hasW := r.spec.Dimensions.Get(spec.DimWidth)
		if hasL && hasW {
			start := spec.Point3{}
			if r.spec.Position.StartPoint != nil {
				start = *r.spec.Position.StartPoint
			}
			r.spec.Position.EndPoint = spec.Pt(start.X+length, start.Y+width, start.Z)
		}
	}
	return d.sendPrimary(ctx, r)
}

type annotationFamily struct{}

func (annotationFamily) apply(ctx context.Context, d *Dispatcher, r *run) error {
	return d.sendPrimary(ctx, r)
}

// blockFamily probes the block table before inserting and draws a labelled
// placeholder when the block is missing.
type blockFamily struct{}

func (blockFamily) apply(ctx context.Context, d *Dispatcher, r *run) error {
	nameParam, ok := r.entry.Param("block_name")
	if !ok {
		return d.sendPrimary(ctx, r)
	}

	name := spec.FormatValue(nameParam.Default)
	if v, ok := r.spec.Attributes.String(nameParam.Name); ok && v != "" {
		name = v
	}

	found, err := r.doc.HasBlock(ctx, name)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Block probe for %s failed: %v", familiesLogPrefix, name, err))
		r.result.warn(fmt.Sprintf("block probe for %q failed: %v", name, err))
		found = false
	}
	if found {
		return d.sendPrimary(ctx, r)
	}
	return d.drawPlaceholder(ctx, r, name)
}

// modifierFamily acts on the last drawn object.
type modifierFamily struct{}

func (modifierFamily) apply(ctx context.Context, d *Dispatcher, r *run) error {
	if r.reconnected {
		r.result.warn(fmt.Sprintf("%s runs on the last object, but the host session was replaced before it", r.entry.Command))
	}
	return d.sendPrimary(ctx, r)
}

type housekeepingFamily struct{}

func (housekeepingFamily) apply(ctx context.Context, d *Dispatcher, r *run) error {
	return d.sendPrimary(ctx, r)
}
