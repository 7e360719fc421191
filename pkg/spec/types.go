// Package spec defines the canonical drawing Specification shared by the
// normalizer, validator and dispatcher.
package spec

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const logPrefix = "spec:types"

// Dimension keys.
const (
	DimLength    = "length"
	DimWidth     = "width"
	DimHeight    = "height"
	DimRadius    = "radius"
	DimMajorAxis = "major_axis"
	DimMinorAxis = "minor_axis"
)

// DimensionKeys is the fixed dimension vocabulary.
var DimensionKeys = []string{DimLength, DimWidth, DimHeight, DimRadius, DimMajorAxis, DimMinorAxis}

// Orientation values.
const (
	OrientationHorizontal = "horizontal"
	OrientationVertical   = "vertical"
	OrientationAngled     = "angled"
)

// Position keys (used by field paths and capability params).
const (
	PosStartPoint     = "start_point"
	PosEndPoint       = "end_point"
	PosCenterPoint    = "center_point"
	PosInsertionPoint = "insertion_point"
	PosPoints         = "points"
	PosOrientation    = "orientation"
)

// Specification is the canonical in-memory representation of one drawing request.
type Specification struct {
	Command        string     `json:"command"`
	LightingSystem string     `json:"lighting_system,omitempty"`
	Dimensions     Dimensions `json:"dimensions,omitempty"`
	Position       Position   `json:"position"`
	Attributes     Values     `json:"attributes,omitempty"`
	Extras         Values     `json:"extras,omitempty"`
}

// Position holds the placement fields of a Specification. Nil points are unspecified.
type Position struct {
	StartPoint     *Point3  `json:"start_point,omitempty"`
	EndPoint       *Point3  `json:"end_point,omitempty"`
	CenterPoint    *Point3  `json:"center_point,omitempty"`
	InsertionPoint *Point3  `json:"insertion_point,omitempty"`
	Points         []Point3 `json:"points,omitempty"`
	Orientation    string   `json:"orientation,omitempty"`
}

// wireSpecification accepts both the canonical keys and the legacy
// "specifications"/"additional_parameters" keys emitted by older prompts.
type wireSpecification struct {
	Command              *string    `json:"command"`
	LightingSystem       *string    `json:"lighting_system"`
	Dimensions           Dimensions `json:"dimensions"`
	Position             *Position  `json:"position"`
	Attributes           Values     `json:"attributes"`
	Specifications       Values     `json:"specifications"`
	Extras               Values     `json:"extras"`
	AdditionalParameters Values     `json:"additional_parameters"`
}

// UnmarshalJSON decodes a Specification, folding legacy section names into
// attributes and extras. Canonical keys win on conflict.
func (s *Specification) UnmarshalJSON(data []byte) error {
	var w wireSpecification
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Specification{}
	if w.Command != nil {
		out.Command = strings.TrimSpace(*w.Command)
	}
	if w.LightingSystem != nil {
		out.LightingSystem = strings.TrimSpace(*w.LightingSystem)
	}
	if len(w.Dimensions) > 0 {
		out.Dimensions = w.Dimensions
	}
	if w.Position != nil {
		out.Position = *w.Position
	}
	out.Attributes = mergeValues(w.Specifications, w.Attributes)
	out.Extras = mergeValues(w.AdditionalParameters, w.Extras)
	*s = out
	return nil
}

func mergeValues(base, override Values) Values {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(Values, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (s *Specification) Clone() *Specification {
	if s == nil {
		return nil
	}
	out := &Specification{
		Command:        s.Command,
		LightingSystem: s.LightingSystem,
		Dimensions:     s.Dimensions.clone(),
		Position:       s.Position.clone(),
		Attributes:     s.Attributes.clone(),
		Extras:         s.Extras.clone(),
	}
	return out
}

// Has reports whether the dotted field path (e.g. "lighting_system",
// "dimensions.radius", "attributes.block_name") is present.
func (s *Specification) Has(path string) bool {
	section, key, _ := strings.Cut(path, ".")
	switch section {
	case "command":
		return s.Command != ""
	case "lighting_system":
		return s.LightingSystem != ""
	case "dimensions":
		_, ok := s.Dimensions[key]
		return ok
	case "position":
		return s.Position.has(key)
	case "attributes":
		_, ok := s.Attributes[key]
		return ok
	case "extras":
		_, ok := s.Extras[key]
		return ok
	}
	return false
}

func (p Position) has(key string) bool {
	switch key {
	case PosStartPoint:
		return p.StartPoint != nil
	case PosEndPoint:
		return p.EndPoint != nil
	case PosCenterPoint:
		return p.CenterPoint != nil
	case PosInsertionPoint:
		return p.InsertionPoint != nil
	case PosPoints:
		return len(p.Points) > 0
	case PosOrientation:
		return p.Orientation != ""
	}
	return false
}

// Point returns the named single point, or nil.
func (p Position) Point(key string) *Point3 {
	switch key {
	case PosStartPoint:
		return p.StartPoint
	case PosEndPoint:
		return p.EndPoint
	case PosCenterPoint:
		return p.CenterPoint
	case PosInsertionPoint:
		return p.InsertionPoint
	}
	return nil
}

// IsZero reports whether no position field is set.
func (p Position) IsZero() bool {
	return p.StartPoint == nil && p.EndPoint == nil && p.CenterPoint == nil &&
		p.InsertionPoint == nil && len(p.Points) == 0 && p.Orientation == ""
}

func (p Position) clone() Position {
	out := Position{Orientation: p.Orientation}
	out.StartPoint = p.StartPoint.clone()
	out.EndPoint = p.EndPoint.clone()
	out.CenterPoint = p.CenterPoint.clone()
	out.InsertionPoint = p.InsertionPoint.clone()
	if p.Points != nil {
		out.Points = append([]Point3(nil), p.Points...)
	}
	return out
}

// Dimensions maps dimension keys to values. Absent keys are unspecified, never zero.
type Dimensions map[string]float64

// UnmarshalJSON drops nulls and non-numeric values instead of zeroing them.
// Numeric strings ("10") are accepted.
func (d *Dimensions) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*d = nil
		return nil
	}
	out := make(Dimensions, len(raw))
	for k, v := range raw {
		if n, ok := toFloat(v); ok {
			out[k] = n
		}
	}
	*d = out
	return nil
}

// MarshalJSON omits non-finite values, which JSON cannot encode.
func (d Dimensions) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	out := make(map[string]float64, len(d))
	for k, v := range d {
		if IsFinite(v) {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// Get returns the dimension value and whether it was specified.
func (d Dimensions) Get(key string) (float64, bool) {
	v, ok := d[key]
	return v, ok
}

func (d Dimensions) clone() Dimensions {
	if d == nil {
		return nil
	}
	out := make(Dimensions, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Values maps attribute or extras keys to scalar values (float64, string, bool).
type Values map[string]any

// UnmarshalJSON keeps scalar values only; nulls and nested structures are dropped.
func (v *Values) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = nil
		return nil
	}
	out := make(Values, len(raw))
	for k, val := range raw {
		switch val.(type) {
		case float64, string, bool:
			out[k] = val
		}
	}
	*v = out
	return nil
}

// MarshalJSON omits non-finite numbers, which JSON cannot encode.
func (v Values) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		if n, ok := val.(float64); ok && !IsFinite(n) {
			continue
		}
		out[k] = val
	}
	return json.Marshal(out)
}

// Number returns a numeric view of key. Numeric strings and a trailing
// unit letter ("4000k") are accepted.
func (v Values) Number(key string) (float64, bool) {
	val, ok := v[key]
	if !ok {
		return 0, false
	}
	return toFloat(val)
}

// String returns a string view of key. Numbers and bools are formatted.
func (v Values) String(key string) (string, bool) {
	val, ok := v[key]
	if !ok {
		return "", false
	}
	return FormatValue(val), true
}

// Bool returns a boolean view of key ("true"/"yes"/"1" and non-zero numbers are true).
func (v Values) Bool(key string) (bool, bool) {
	val, ok := v[key]
	if !ok {
		return false, false
	}
	return Truthy(val), true
}

// Keys returns the keys in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Values) clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Truthy interprets a scalar as a boolean flag.
func Truthy(val any) bool {
	switch t := val.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "on":
			return true
		}
	}
	return false
}

// FormatValue renders a scalar the way it is sent to the drawing host.
func FormatValue(val any) string {
	switch t := val.(type) {
	case float64:
		return FormatNumber(t)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(val)
}

// FormatNumber renders a number without trailing zeros.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// toFloat converts JSON scalars to float64. Strings may carry a single
// trailing unit letter (e.g. "4000k", "50W"). Non-finite results ("NaN",
// "Inf") are rejected like non-numeric text.
func toFloat(val any) (float64, bool) {
	n, ok := parseScalar(val)
	if !ok || !IsFinite(n) {
		return 0, false
	}
	return n, true
}

func parseScalar(val any) (float64, bool) {
	switch t := val.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n, true
		}
		last := s[len(s)-1]
		if (last >= 'a' && last <= 'z') || (last >= 'A' && last <= 'Z') {
			if n, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// IsNonFinite reports whether a scalar is, or spells, NaN or an infinity.
func IsNonFinite(val any) bool {
	n, ok := parseScalar(val)
	return ok && !IsFinite(n)
}

// ParseNumber is the exported form of the scalar-to-number coercion.
func ParseNumber(val any) (float64, bool) {
	return toFloat(val)
}

// IsFinite reports whether n is neither NaN nor infinite.
func IsFinite(n float64) bool {
	return !math.IsNaN(n) && !math.IsInf(n, 0)
}
