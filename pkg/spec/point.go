package spec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const pointLogPrefix = "spec:point"

// Point3 is a 3-component coordinate. Z defaults to 0.
type Point3 struct {
	X float64
	Y float64
	Z float64
}

// Pt builds a Point3.
func Pt(x, y, z float64) *Point3 {
	return &Point3{X: x, Y: y, Z: z}
}

// MarshalJSON encodes the point as [x, y, z].
func (p Point3) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]float64{p.X, p.Y, p.Z})
}

// UnmarshalJSON accepts [x,y], [x,y,z], "x,y[,z]" and {"x":..,"y":..,"z":..}.
// A malformed x or y is an error; a malformed z is coerced to 0 (see CoerceZ).
func (p *Point3) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case []any:
		return p.fromList(t)
	case string:
		parsed, err := ParsePoint3(t)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case map[string]any:
		x, okX := toFloat(t["x"])
		y, okY := toFloat(t["y"])
		if !okX || !okY {
			return fmt.Errorf("%s - point object requires numeric x and y", pointLogPrefix)
		}
		*p = Point3{X: x, Y: y, Z: CoerceZ(t["z"])}
		return nil
	}
	return fmt.Errorf("%s - unsupported point encoding %s", pointLogPrefix, trimmed)
}

func (p *Point3) fromList(items []any) error {
	if len(items) < 2 {
		return fmt.Errorf("%s - point requires at least 2 coordinates, got %d", pointLogPrefix, len(items))
	}
	x, okX := toFloat(items[0])
	y, okY := toFloat(items[1])
	if !okX || !okY {
		return fmt.Errorf("%s - point coordinates x and y must be numeric", pointLogPrefix)
	}
	var z float64
	if len(items) > 2 {
		z = CoerceZ(items[2])
	}
	*p = Point3{X: x, Y: y, Z: z}
	return nil
}

// ParsePoint3 parses "x,y" or "x,y,z". A malformed z yields 0.
func ParsePoint3(s string) (Point3, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 2 {
		return Point3{}, fmt.Errorf("%s - point %q must be \"x,y\" or \"x,y,z\"", pointLogPrefix, s)
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errX != nil || errY != nil {
		return Point3{}, fmt.Errorf("%s - point %q has non-numeric x or y", pointLogPrefix, s)
	}
	var z float64
	if len(parts) > 2 {
		z = CoerceZ(strings.TrimSpace(parts[2]))
	}
	return Point3{X: x, Y: y, Z: z}, nil
}

// ParsePoints parses "x1,y1;x2,y2;..." into an ordered point list.
func ParsePoints(s string) ([]Point3, error) {
	var out []Point3
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := ParsePoint3(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s - no points in %q", pointLogPrefix, s)
	}
	return out, nil
}

// CoerceZ is the documented z-coordinate fallback: a missing, null,
// non-numeric or non-finite z yields 0.0 instead of an error.
func CoerceZ(v any) float64 {
	z, ok := toFloat(v)
	if !ok || !IsFinite(z) {
		return 0
	}
	return z
}

// XY renders "x,y".
func (p Point3) XY() string {
	return FormatNumber(p.X) + "," + FormatNumber(p.Y)
}

// String renders "x,y" when z is 0, otherwise "x,y,z".
func (p Point3) String() string {
	if p.Z == 0 {
		return p.XY()
	}
	return p.XY() + "," + FormatNumber(p.Z)
}

// Finite reports whether all components are finite.
func (p Point3) Finite() bool {
	return IsFinite(p.X) && IsFinite(p.Y) && IsFinite(p.Z)
}

func (p *Point3) clone() *Point3 {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
