// Package validator checks a normalized Specification against the
// capability registry before anything is sent to the drawing host.
package validator

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const logPrefix = "validator:validator"

// Options tunes validation. The zero value is the loose policy: only the
// structural minimum and non-finite numbers are rejected.
type Options struct {
	// Strict adds domain checks: negative dimensions and values outside the
	// lighting system, mounting, lens and color temperature vocabularies.
	Strict bool
}

// Validator validates specifications. It is safe for concurrent use.
type Validator struct {
	registry *capability.Registry
	opts     Options
}

// New creates a Validator backed by registry.
func New(registry *capability.Registry, opts Options) *Validator {
	return &Validator{registry: registry, opts: opts}
}

// Strict reports whether domain checks are enabled.
func (v *Validator) Strict() bool { return v.opts.Strict }

// Validate returns nil or a *spec.ValidationError describing the first failure.
func (v *Validator) Validate(s *spec.Specification) error {
	if s == nil || strings.TrimSpace(s.Command) == "" {
		return spec.Structural(spec.CodeMissingCommand, "command", "command is required")
	}

	entry, err := v.registry.Lookup(s.Command)
	if err != nil {
		return err
	}

	if entry.Class == capability.ClassFixture && strings.TrimSpace(s.LightingSystem) == "" {
		return spec.Structural(spec.CodeMissingLightingSystem, "lighting_system",
			"lighting_system is required for fixture command %q", s.Command)
	}

	for _, path := range entry.Required {
		if !s.Has(path) {
			return spec.Structural(spec.CodeMissingRequiredField, path,
				"%s is required for command %q", path, s.Command)
		}
	}

	if err := checkFinite(s); err != nil {
		return err
	}

	if v.opts.Strict {
		if err := v.checkDomain(s); err != nil {
			slog.Debug(fmt.Sprintf("%s - strict validation rejected %s: %v", logPrefix, s.Command, err))
			return err
		}
	}
	return nil
}

func checkFinite(s *spec.Specification) error {
	for _, k := range sortedDimensionKeys(s.Dimensions) {
		if !spec.IsFinite(s.Dimensions[k]) {
			return spec.Domain(spec.CodeNonFiniteValue, "dimensions."+k, "dimension %s must be finite", k)
		}
	}
	for _, key := range []string{spec.PosStartPoint, spec.PosEndPoint, spec.PosCenterPoint, spec.PosInsertionPoint} {
		if p := s.Position.Point(key); p != nil && !p.Finite() {
			return spec.Domain(spec.CodeNonFiniteValue, "position."+key, "point %s must be finite", key)
		}
	}
	for i, p := range s.Position.Points {
		if !p.Finite() {
			return spec.Domain(spec.CodeNonFiniteValue, "position.points", "point %d must be finite", i)
		}
	}
	for _, section := range []struct {
		name   string
		values spec.Values
	}{{"attributes", s.Attributes}, {"extras", s.Extras}} {
		for _, k := range section.values.Keys() {
			if spec.IsNonFinite(section.values[k]) {
				return spec.Domain(spec.CodeNonFiniteValue, section.name+"."+k, "%s must be finite", k)
			}
		}
	}
	return nil
}

func (v *Validator) checkDomain(s *spec.Specification) error {
	for _, k := range sortedDimensionKeys(s.Dimensions) {
		if s.Dimensions[k] < 0 {
			return spec.Domain(spec.CodeNegativeDimension, "dimensions."+k, "dimension %s must not be negative, got %s", k, spec.FormatNumber(s.Dimensions[k]))
		}
	}

	if s.LightingSystem != "" {
		if _, ok := v.registry.LightingSystem(s.LightingSystem); !ok {
			return spec.Domain(spec.CodeOutOfVocabulary, "lighting_system", "unknown lighting system %q", s.LightingSystem)
		}
	}

	vocab := v.registry.Vocabulary()
	checks := []struct {
		key     string
		allowed []string
	}{
		{"mounting_type", vocab.Mounting},
		{"lens_type", vocab.Lens},
		{"color_temperature", vocab.ColorTemperatures},
	}
	for _, c := range checks {
		val, ok := s.Attributes.String(c.key)
		if !ok {
			continue
		}
		if c.key == "color_temperature" {
			val = NormalizeKelvin(val)
		}
		if !contains(c.allowed, val) {
			return spec.Domain(spec.CodeOutOfVocabulary, "attributes."+c.key, "%s %q is not one of %s", c.key, val, strings.Join(c.allowed, ", "))
		}
	}
	return nil
}

// NormalizeKelvin renders a color temperature as "<n>k" ("4000", "4000K" and
// 4000 all become "4000k"). Unparsable values are returned lower-cased.
func NormalizeKelvin(val string) string {
	n, ok := spec.ParseNumber(val)
	if !ok {
		return strings.ToLower(strings.TrimSpace(val))
	}
	return spec.FormatNumber(n) + "k"
}

func contains(list []string, val string) bool {
	for _, s := range list {
		if strings.EqualFold(s, val) {
			return true
		}
	}
	return false
}

func sortedDimensionKeys(d spec.Dimensions) []string {
	var out []string
	for _, k := range spec.DimensionKeys {
		if _, ok := d[k]; ok {
			out = append(out, k)
		}
	}
	for k := range d {
		if !contains(spec.DimensionKeys, k) {
			out = append(out, k)
		}
	}
	return out
}
