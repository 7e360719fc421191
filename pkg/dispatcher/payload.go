package dispatcher

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const payloadLogPrefix = "dispatcher:payload"

// Invocation selects how a command is rendered for the host command line.
type Invocation string

const (
	// InvocationMacro renders "_EXTERNAL tok tok ...".
	InvocationMacro Invocation = "macro"
	// InvocationScript renders "(c:Fn arg arg ...)" for entries with a script function.
	InvocationScript Invocation = "script"
)

// ParseInvocation parses an INVOCATION_MODE value. Empty means macro.
func ParseInvocation(s string) (Invocation, error) {
	switch Invocation(strings.ToLower(strings.TrimSpace(s))) {
	case "", InvocationMacro:
		return InvocationMacro, nil
	case InvocationScript:
		return InvocationScript, nil
	}
	return "", fmt.Errorf("%s - unknown invocation mode %q (want macro or script)", payloadLogPrefix, s)
}

// Payload is one rendered host command.
type Payload struct {
	Text     string
	Mode     Invocation
	Warnings []string
}

// PayloadBuilder renders an entry's ordered parameters from a Specification.
type PayloadBuilder struct {
	mode Invocation
}

// NewPayloadBuilder creates a builder for the given invocation mode.
func NewPayloadBuilder(mode Invocation) *PayloadBuilder {
	if mode == "" {
		mode = InvocationMacro
	}
	return &PayloadBuilder{mode: mode}
}

// Mode returns the configured invocation mode.
func (b *PayloadBuilder) Mode() Invocation { return b.mode }

// argument is one resolved parameter value.
type argument struct {
	param   capability.Param
	present bool
	number  float64
	text    string
	point   spec.Point3
	points  []spec.Point3
	flag    bool
}

// Build renders the entry for s. Clamped numeric values are written back
// to s so the echo shows what was sent.
func (b *PayloadBuilder) Build(entry *capability.Entry, s *spec.Specification) *Payload {
	out := &Payload{Mode: b.mode}
	args := make([]argument, 0, len(entry.Params))
	for _, p := range entry.Params {
		arg, warnings := resolve(p, s)
		out.Warnings = append(out.Warnings, warnings...)
		args = append(args, arg)
	}

	if b.mode == InvocationScript && entry.Script != "" {
		out.Text = renderScript(entry.Script, args)
		return out
	}
	out.Mode = InvocationMacro
	out.Text = renderMacro(entry.External, args)
	return out
}

func resolve(p capability.Param, s *spec.Specification) (argument, []string) {
	arg := argument{param: p}
	if p.Kind == capability.KindLiteral {
		arg.present = true
		arg.text = spec.FormatValue(p.Default)
		return arg, nil
	}

	switch p.Kind {
	case capability.KindNumber, capability.KindKelvin:
		return resolveNumber(p, s)

	case capability.KindPoint:
		if pt := s.Position.Point(p.Name); pt != nil {
			arg.present, arg.point = true, *pt
			return arg, nil
		}
		if def, ok := p.Default.(string); ok {
			if pt, err := spec.ParsePoint3(def); err == nil {
				arg.present, arg.point = true, pt
			}
		}
		return arg, nil

	case capability.KindPoints:
		if len(s.Position.Points) > 0 {
			arg.present = true
			arg.points = append([]spec.Point3(nil), s.Position.Points...)
		}
		return arg, nil

	case capability.KindBool:
		if v, ok := sectionValues(p.Section, s)[p.Name]; ok {
			arg.present, arg.flag = true, spec.Truthy(v)
			return arg, nil
		}
		if p.Default != nil {
			arg.present, arg.flag = true, spec.Truthy(p.Default)
		}
		return arg, nil

	default:
		if p.Section == capability.SectionLightingSystem {
			if s.LightingSystem != "" {
				arg.present, arg.text = true, s.LightingSystem
			}
			return arg, nil
		}
		if v, ok := sectionValues(p.Section, s).String(p.Name); ok && v != "" {
			arg.present, arg.text = true, v
			return arg, nil
		}
		if p.Default != nil {
			arg.present, arg.text = true, spec.FormatValue(p.Default)
		}
		return arg, nil
	}
}

func resolveNumber(p capability.Param, s *spec.Specification) (argument, []string) {
	arg := argument{param: p}
	var warnings []string

	raw, fromSpec := lookupNumber(p, s)
	if fromSpec {
		n, ok := spec.ParseNumber(raw)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: ignoring non-numeric value %q", p.Path(), spec.FormatValue(raw)))
			fromSpec = false
		} else {
			arg.present, arg.number = true, n
		}
	}
	if !fromSpec {
		if n, ok := spec.ParseNumber(p.Default); ok {
			arg.present, arg.number = true, n
		}
		return arg, warnings
	}

	clamped := arg.number
	if p.Min != nil && clamped < *p.Min {
		clamped = *p.Min
	}
	if p.Max != nil && clamped > *p.Max {
		clamped = *p.Max
	}
	if clamped != arg.number {
		slog.Info(fmt.Sprintf("%s - Clamped %s from %s to %s", payloadLogPrefix, p.Path(), spec.FormatNumber(arg.number), spec.FormatNumber(clamped)))
		warnings = append(warnings, fmt.Sprintf("%s clamped from %s to %s", p.Path(), spec.FormatNumber(arg.number), spec.FormatNumber(clamped)))
		arg.number = clamped
		writeBack(p, s, clamped)
	}
	return arg, warnings
}

func lookupNumber(p capability.Param, s *spec.Specification) (any, bool) {
	if p.Section == capability.SectionDimensions {
		n, ok := s.Dimensions.Get(p.Name)
		return n, ok
	}
	v, ok := sectionValues(p.Section, s)[p.Name]
	return v, ok
}

func writeBack(p capability.Param, s *spec.Specification, n float64) {
	switch p.Section {
	case capability.SectionDimensions:
		s.Dimensions[p.Name] = n
	case capability.SectionAttributes, capability.SectionExtras:
		values := sectionValues(p.Section, s)
		if p.Kind == capability.KindKelvin {
			values[p.Name] = spec.FormatNumber(n) + "k"
			return
		}
		values[p.Name] = n
	}
}

func sectionValues(section capability.Section, s *spec.Specification) spec.Values {
	switch section {
	case capability.SectionAttributes:
		return s.Attributes
	case capability.SectionExtras:
		return s.Extras
	}
	return nil
}

// renderMacro renders "EXTERNAL tok tok ...\n". An absent value is an empty
// token, which the host reads as Enter.
func renderMacro(external string, args []argument) string {
	var tokens []string
	for _, a := range args {
		tokens = append(tokens, macroTokens(a)...)
	}
	if len(tokens) == 0 {
		return external + "\n"
	}
	return external + " " + strings.Join(tokens, " ") + "\n"
}

func macroTokens(a argument) []string {
	if !a.present {
		return []string{""}
	}
	switch a.param.Kind {
	case capability.KindNumber, capability.KindKelvin:
		return []string{spec.FormatNumber(a.number)}
	case capability.KindPoint:
		return []string{a.point.String()}
	case capability.KindPoints:
		out := make([]string, 0, len(a.points)+1)
		for _, p := range a.points {
			out = append(out, p.String())
		}
		return append(out, "")
	case capability.KindBool:
		if a.flag {
			return []string{"Y"}
		}
		return []string{"N"}
	}
	return []string{a.text}
}

// renderScript renders "(fn arg arg ...)\n". Literal keystrokes are not
// part of a function call and are skipped.
func renderScript(fn string, args []argument) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(fn)
	for _, a := range args {
		if a.param.Kind == capability.KindLiteral {
			continue
		}
		b.WriteString(" ")
		b.WriteString(scriptValue(a))
	}
	b.WriteString(")\n")
	return b.String()
}

func scriptValue(a argument) string {
	if !a.present {
		return "nil"
	}
	switch a.param.Kind {
	case capability.KindNumber, capability.KindKelvin:
		return lispReal(a.number)
	case capability.KindPoint:
		return lispReal(a.point.X) + " " + lispReal(a.point.Y)
	case capability.KindPoints:
		parts := make([]string, 0, len(a.points))
		for _, p := range a.points {
			parts = append(parts, "("+lispReal(p.X)+" "+lispReal(p.Y)+")")
		}
		return "'(" + strings.Join(parts, " ") + ")"
	case capability.KindBool:
		if a.flag {
			return "T"
		}
		return "nil"
	}
	return lispString(a.text)
}

// lispReal renders n so the host reads it as a real, e.g. 5 -> "5.0".
func lispReal(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', 1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func lispString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
