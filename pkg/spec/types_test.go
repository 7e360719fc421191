package spec

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

const typesTestPrefix = "spec:types_test"

func TestSpecification_UnmarshalCanonical(t *testing.T) {
	raw := `{
		"command": "linear_light",
		"lighting_system": "ls",
		"dimensions": {"length": 10, "width": 4, "height": null, "radius": "2"},
		"position": {"start_point": [5, 5, 0], "end_point": [15, 5], "orientation": "horizontal"},
		"attributes": {"wattage": 50, "color_temperature": "4000k", "driver_type": null},
		"extras": {"emergency_backup": true, "nested": {"a": 1}}
	}`
	var s Specification
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("%s - unmarshal failed: %v", typesTestPrefix, err)
	}
	if s.Command != "linear_light" || s.LightingSystem != "ls" {
		t.Errorf("%s - command/system = %q/%q", typesTestPrefix, s.Command, s.LightingSystem)
	}
	if _, ok := s.Dimensions[DimHeight]; ok {
		t.Errorf("%s - null height should be absent, not zero", typesTestPrefix)
	}
	if v, _ := s.Dimensions.Get(DimRadius); v != 2 {
		t.Errorf("%s - radius = %v, want 2 from numeric string", typesTestPrefix, v)
	}
	if s.Position.EndPoint == nil || *s.Position.EndPoint != (Point3{X: 15, Y: 5}) {
		t.Errorf("%s - end point = %+v", typesTestPrefix, s.Position.EndPoint)
	}
	if _, ok := s.Attributes["driver_type"]; ok {
		t.Errorf("%s - null attribute should be dropped", typesTestPrefix)
	}
	if _, ok := s.Extras["nested"]; ok {
		t.Errorf("%s - nested extras should be dropped", typesTestPrefix)
	}
	if w, _ := s.Attributes.Number("wattage"); w != 50 {
		t.Errorf("%s - wattage = %v, want 50", typesTestPrefix, w)
	}
	if ct, _ := s.Attributes.Number("color_temperature"); ct != 4000 {
		t.Errorf("%s - color temperature number = %v, want 4000", typesTestPrefix, ct)
	}
}

func TestSpecification_NonFiniteStrings(t *testing.T) {
	var s Specification
	raw := `{"command":"circle","dimensions":{"radius":"NaN","length":"Infinity","width":"-Inf","height":"3"}}`
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("%s - unmarshal failed: %v", typesTestPrefix, err)
	}
	if len(s.Dimensions) != 1 || s.Dimensions[DimHeight] != 3 {
		t.Errorf("%s - dimensions = %v, want only height", typesTestPrefix, s.Dimensions)
	}
	for _, in := range []string{"NaN", "Infinity", "+Inf", "-inf"} {
		if _, ok := ParseNumber(in); ok {
			t.Errorf("%s - ParseNumber(%q) should fail", typesTestPrefix, in)
		}
		if !IsNonFinite(in) {
			t.Errorf("%s - IsNonFinite(%q) = false", typesTestPrefix, in)
		}
	}
	if IsNonFinite("4000k") || IsNonFinite("clear") || IsNonFinite(true) {
		t.Errorf("%s - finite or non-numeric scalars reported as non-finite", typesTestPrefix)
	}
}

func TestSpecification_MarshalOmitsNonFinite(t *testing.T) {
	s := Specification{
		Command:    "circle",
		Dimensions: Dimensions{DimRadius: math.NaN(), DimLength: 2},
		Attributes: Values{"wattage": math.Inf(1), "lens_type": "clear"},
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("%s - marshal failed: %v", typesTestPrefix, err)
	}
	var back Specification
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("%s - unmarshal failed: %v", typesTestPrefix, err)
	}
	if _, ok := back.Dimensions[DimRadius]; ok || back.Dimensions[DimLength] != 2 {
		t.Errorf("%s - dimensions = %v", typesTestPrefix, back.Dimensions)
	}
	if _, ok := back.Attributes["wattage"]; ok || back.Attributes["lens_type"] != "clear" {
		t.Errorf("%s - attributes = %v", typesTestPrefix, back.Attributes)
	}
}

func TestSpecification_UnmarshalLegacySections(t *testing.T) {
	raw := `{
		"command": "rush_light",
		"lighting_system": "rush",
		"specifications": {"wattage": 75, "lens_type": "frosted"},
		"attributes": {"lens_type": "clear"},
		"additional_parameters": {"voltage": 277}
	}`
	var s Specification
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		t.Fatalf("%s - unmarshal failed: %v", typesTestPrefix, err)
	}
	if lens, _ := s.Attributes.String("lens_type"); lens != "clear" {
		t.Errorf("%s - canonical attributes should win, lens = %q", typesTestPrefix, lens)
	}
	if w, _ := s.Attributes.Number("wattage"); w != 75 {
		t.Errorf("%s - legacy wattage = %v, want 75", typesTestPrefix, w)
	}
	if v, _ := s.Extras.Number("voltage"); v != 277 {
		t.Errorf("%s - legacy voltage = %v, want 277", typesTestPrefix, v)
	}
}

func TestSpecification_UnmarshalRejectsBadPoint(t *testing.T) {
	var s Specification
	err := json.Unmarshal([]byte(`{"command":"circle","position":{"center_point":["x","y"]}}`), &s)
	if err == nil {
		t.Fatalf("%s - expected error for malformed center point", typesTestPrefix)
	}
}

func TestSpecification_Clone(t *testing.T) {
	orig := &Specification{
		Command:    "circle",
		Dimensions: Dimensions{DimRadius: 2},
		Position:   Position{CenterPoint: Pt(1, 1, 0), Points: []Point3{{X: 1}}},
		Attributes: Values{"text_content": "A"},
	}
	c := orig.Clone()
	if !reflect.DeepEqual(orig, c) {
		t.Fatalf("%s - clone differs from original", typesTestPrefix)
	}
	c.Dimensions[DimRadius] = 9
	c.Position.CenterPoint.X = 9
	c.Attributes["text_content"] = "B"
	c.Position.Points[0].X = 9
	if orig.Dimensions[DimRadius] != 2 || orig.Position.CenterPoint.X != 1 ||
		orig.Attributes["text_content"] != "A" || orig.Position.Points[0].X != 1 {
		t.Errorf("%s - mutating clone changed original", typesTestPrefix)
	}
}

func TestSpecification_Has(t *testing.T) {
	s := &Specification{
		Command:        "block",
		LightingSystem: "ls",
		Dimensions:     Dimensions{DimLength: 1},
		Position:       Position{InsertionPoint: Pt(0, 0, 0)},
		Attributes:     Values{"block_name": "X"},
		Extras:         Values{"rotation_angle": 45.0},
	}
	for _, path := range []string{"command", "lighting_system", "dimensions.length", "position.insertion_point", "attributes.block_name", "extras.rotation_angle"} {
		if !s.Has(path) {
			t.Errorf("%s - Has(%q) = false, want true", typesTestPrefix, path)
		}
	}
	for _, path := range []string{"dimensions.width", "position.points", "attributes.wattage", "extras.spacing", "unknown"} {
		if s.Has(path) {
			t.Errorf("%s - Has(%q) = true, want false", typesTestPrefix, path)
		}
	}
}

func TestValues_Views(t *testing.T) {
	v := Values{"a": 2.0, "b": "true", "c": "50W", "d": false, "e": "clear"}
	if n, ok := v.Number("c"); !ok || n != 50 {
		t.Errorf("%s - Number(c) = %v,%v", typesTestPrefix, n, ok)
	}
	if _, ok := v.Number("e"); ok {
		t.Errorf("%s - Number(e) should fail for a word", typesTestPrefix)
	}
	if b, _ := v.Bool("b"); !b {
		t.Errorf("%s - Bool(b) = false, want true", typesTestPrefix)
	}
	if b, _ := v.Bool("d"); b {
		t.Errorf("%s - Bool(d) = true, want false", typesTestPrefix)
	}
	if s, _ := v.String("a"); s != "2" {
		t.Errorf("%s - String(a) = %q, want 2", typesTestPrefix, s)
	}
	keys := v.Keys()
	if len(keys) != 5 || keys[0] != "a" || keys[4] != "e" {
		t.Errorf("%s - Keys() = %v", typesTestPrefix, keys)
	}
}
