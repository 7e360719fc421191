package validator

import (
	"math"
	"testing"

	"github.com/morezero/autodraw-agent/pkg/capability"
	"github.com/morezero/autodraw-agent/pkg/spec"
)

const testPrefix = "validator:validator_test"

func wantCode(t *testing.T, err error, kind spec.ErrorKind, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s - expected %s error, got nil", testPrefix, code)
	}
	ve, ok := spec.AsValidationError(err)
	if !ok {
		t.Fatalf("%s - expected ValidationError, got %T: %v", testPrefix, err, err)
	}
	if ve.Code != code || ve.Kind != kind {
		t.Errorf("%s - got %s/%s, want %s/%s", testPrefix, ve.Kind, ve.Code, kind, code)
	}
}

func TestValidate_Structural(t *testing.T) {
	v := New(capability.MustDefaultRegistry(), Options{})

	wantCode(t, v.Validate(nil), spec.KindStructural, spec.CodeMissingCommand)
	wantCode(t, v.Validate(&spec.Specification{LightingSystem: "ls"}), spec.KindStructural, spec.CodeMissingCommand)
	wantCode(t, v.Validate(&spec.Specification{Command: "teleport"}), spec.KindStructural, spec.CodeUnknownCommand)
	wantCode(t, v.Validate(&spec.Specification{Command: "linear_light"}), spec.KindStructural, spec.CodeMissingLightingSystem)
	wantCode(t, v.Validate(&spec.Specification{Command: "polyline"}), spec.KindStructural, spec.CodeMissingRequiredField)
}

func TestValidate_FixtureNeedsLightingSystemOnly(t *testing.T) {
	reg := capability.MustDefaultRegistry()
	v := New(reg, Options{})

	for _, e := range reg.List() {
		s := &spec.Specification{Command: e.Command}
		for _, path := range e.Required {
			switch path {
			case "position.points":
				s.Position.Points = []spec.Point3{{X: 0, Y: 0}, {X: 1, Y: 1}}
			case "position.start_point":
				s.Position.StartPoint = spec.Pt(0, 0, 0)
			case "position.end_point":
				s.Position.EndPoint = spec.Pt(1, 0, 0)
			}
		}
		err := v.Validate(s)
		if e.Class == capability.ClassFixture {
			wantCode(t, err, spec.KindStructural, spec.CodeMissingLightingSystem)
			s.LightingSystem = "ls"
			if err := v.Validate(s); err != nil {
				t.Errorf("%s - %s with lighting system should validate, got %v", testPrefix, e.Command, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s - non-fixture %s should validate without lighting system, got %v", testPrefix, e.Command, err)
		}
		s.LightingSystem = "ls"
		if err := v.Validate(s); err != nil {
			t.Errorf("%s - non-fixture %s should validate with lighting system, got %v", testPrefix, e.Command, err)
		}
	}
}

func TestValidate_ScenarioA(t *testing.T) {
	v := New(capability.MustDefaultRegistry(), Options{Strict: true})
	s := &spec.Specification{
		Command:        "linear_light",
		LightingSystem: "ls",
		Dimensions:     spec.Dimensions{spec.DimLength: 10, spec.DimWidth: 4},
		Position:       spec.Position{StartPoint: spec.Pt(5, 5, 0), EndPoint: spec.Pt(15, 5, 0)},
		Attributes:     spec.Values{"wattage": 50.0, "color_temperature": "4000k"},
	}
	if err := v.Validate(s); err != nil {
		t.Fatalf("%s - scenario A should validate, got %v", testPrefix, err)
	}
}

func TestValidate_NonFinite(t *testing.T) {
	v := New(capability.MustDefaultRegistry(), Options{})
	tests := []struct {
		name string
		s    *spec.Specification
	}{
		{"dimension", &spec.Specification{Command: "circle", Dimensions: spec.Dimensions{spec.DimRadius: math.Inf(1)}}},
		{"point", &spec.Specification{Command: "circle", Position: spec.Position{CenterPoint: spec.Pt(math.NaN(), 0, 0)}}},
		{"points", &spec.Specification{Command: "polyline", Position: spec.Position{Points: []spec.Point3{{X: 1}, {Y: math.Inf(-1)}}}}},
		{"attribute", &spec.Specification{Command: "text", Attributes: spec.Values{"text_height": math.NaN()}}},
		{"extra", &spec.Specification{Command: "rotate", Extras: spec.Values{"angle": math.Inf(1)}}},
		{"infinity string", &spec.Specification{Command: "linear_light", LightingSystem: "ls", Attributes: spec.Values{"wattage": "Infinity"}}},
		{"nan string", &spec.Specification{Command: "linear_light", LightingSystem: "ls", Attributes: spec.Values{"quantity": "NaN"}}},
		{"inf extra string", &spec.Specification{Command: "circle", Extras: spec.Values{"rotation": "-Inf"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, v.Validate(tt.s), spec.KindDomain, spec.CodeNonFiniteValue)
		})
	}
}

func TestValidate_LooseAcceptsDomainOddities(t *testing.T) {
	v := New(capability.MustDefaultRegistry(), Options{})
	s := &spec.Specification{
		Command:        "linear_light",
		LightingSystem: "unknown_system",
		Dimensions:     spec.Dimensions{spec.DimLength: -5},
		Attributes:     spec.Values{"mounting_type": "ceiling_glue", "color_temperature": "9000k"},
	}
	if err := v.Validate(s); err != nil {
		t.Errorf("%s - loose validation should accept domain oddities, got %v", testPrefix, err)
	}
}

func TestValidate_Strict(t *testing.T) {
	v := New(capability.MustDefaultRegistry(), Options{Strict: true})
	base := func() *spec.Specification {
		return &spec.Specification{Command: "linear_light", LightingSystem: "ls"}
	}

	s := base()
	s.Dimensions = spec.Dimensions{spec.DimLength: -5}
	wantCode(t, v.Validate(s), spec.KindDomain, spec.CodeNegativeDimension)

	s = base()
	s.LightingSystem = "laser"
	wantCode(t, v.Validate(s), spec.KindDomain, spec.CodeOutOfVocabulary)

	s = base()
	s.Attributes = spec.Values{"lens_type": "fisheye"}
	wantCode(t, v.Validate(s), spec.KindDomain, spec.CodeOutOfVocabulary)

	s = base()
	s.Attributes = spec.Values{"color_temperature": 4000.0, "mounting_type": "Pendant"}
	if err := v.Validate(s); err != nil {
		t.Errorf("%s - numeric kelvin and case-insensitive mounting should pass, got %v", testPrefix, err)
	}
}

func TestNormalizeKelvin(t *testing.T) {
	tests := map[string]string{"4000": "4000k", "4000K": "4000k", " 3500k ": "3500k", "warm": "warm"}
	for in, want := range tests {
		if got := NormalizeKelvin(in); got != want {
			t.Errorf("%s - NormalizeKelvin(%q) = %q, want %q", testPrefix, in, got, want)
		}
	}
}
