// Package capability provides the static command catalog: which drawing
// commands exist, how they are invoked on the host, and the ordered
// parameter shape each one expects.
package capability

// Class is the handler family a command belongs to.
type Class string

const (
	ClassFixture      Class = "fixture"
	ClassPrimitive    Class = "primitive"
	ClassAnnotation   Class = "annotation"
	ClassBlock        Class = "block"
	ClassModifier     Class = "modifier"
	ClassHousekeeping Class = "housekeeping"
)

// Classes lists every class in display order.
var Classes = []Class{ClassFixture, ClassPrimitive, ClassAnnotation, ClassBlock, ClassModifier, ClassHousekeeping}

// Valid reports whether c is a known class.
func (c Class) Valid() bool {
	for _, k := range Classes {
		if k == c {
			return true
		}
	}
	return false
}

// Section names the part of a Specification a parameter is read from.
type Section string

const (
	SectionDimensions     Section = "dimensions"
	SectionPosition       Section = "position"
	SectionAttributes     Section = "attributes"
	SectionExtras         Section = "extras"
	SectionLightingSystem Section = "lighting_system"
)

// Kind controls how a parameter value is rendered into a payload token.
type Kind string

const (
	KindNumber  Kind = "number"
	KindKelvin  Kind = "kelvin"
	KindPoint   Kind = "point"
	KindPoints  Kind = "points"
	KindString  Kind = "string"
	KindText    Kind = "text"
	KindBool    Kind = "bool"
	KindLiteral Kind = "literal"
)

// Param is one positional argument of a host command.
type Param struct {
	Name    string   `json:"name"`
	Section Section  `json:"section"`
	Kind    Kind     `json:"kind"`
	Default any      `json:"default,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
}

// Path returns the dotted field path of the parameter, e.g. "attributes.wattage".
func (p Param) Path() string {
	if p.Section == SectionLightingSystem {
		return string(SectionLightingSystem)
	}
	return string(p.Section) + "." + p.Name
}

// Numeric reports whether the parameter is clamped and rendered as a number.
func (p Param) Numeric() bool {
	return p.Kind == KindNumber || p.Kind == KindKelvin
}

// Entry is one command of the catalog.
type Entry struct {
	Command     string   `json:"command"`
	External    string   `json:"external"`
	Script      string   `json:"script,omitempty"`
	Class       Class    `json:"class"`
	Required    []string `json:"required,omitempty"`
	ParamSet    string   `json:"paramSet,omitempty"`
	Params      []Param  `json:"params,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Param returns the parameter with the given name.
func (e *Entry) Param(name string) (Param, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Consumes reports whether the entry's payload reads the given extras key.
func (e *Entry) Consumes(section Section, name string) bool {
	for _, p := range e.Params {
		if p.Section == section && p.Name == name {
			return true
		}
	}
	return false
}

func (e Entry) clone() Entry {
	out := e
	out.Required = append([]string(nil), e.Required...)
	out.Params = append([]Param(nil), e.Params...)
	return out
}

// LightingSystem is a fixture family with its own default sizing.
type LightingSystem struct {
	Key            string  `json:"key"`
	Name           string  `json:"name"`
	Command        string  `json:"command"`
	DefaultWattage float64 `json:"defaultWattage"`
	Length         float64 `json:"length"`
	Width          float64 `json:"width"`
	Description    string  `json:"description,omitempty"`
}

// Vocabulary lists the accepted values of the enumerated attributes.
type Vocabulary struct {
	Mounting          []string `json:"mounting"`
	Lens              []string `json:"lens"`
	ColorTemperatures []string `json:"colorTemperatures"`
}

// ExtraAction is a best-effort follow-up command triggered by an extras key
// after the primary command succeeded.
//
// Args are templates: "{value}" is the extras value itself and
// "{key|default}" reads another extras key with a fallback.
type ExtraAction struct {
	Key         string   `json:"key"`
	External    string   `json:"external"`
	Args        []string `json:"args,omitempty"`
	Kind        Kind     `json:"kind"`
	Description string   `json:"description,omitempty"`
}

// Catalog is the file form of the registry. Entries naming a ParamSet take
// their parameter list from ParamSets.
type Catalog struct {
	Name             string             `json:"name"`
	SchemaVersion    string             `json:"schemaVersion"`
	Description      string             `json:"description,omitempty"`
	HostVersionRange string             `json:"hostVersionRange,omitempty"`
	ParamSets        map[string][]Param `json:"paramSets,omitempty"`
	Commands         []Entry            `json:"commands"`
	LightingSystems  []LightingSystem   `json:"lightingSystems"`
	Vocabulary       Vocabulary         `json:"vocabulary"`
	Defaults         map[string]any     `json:"defaults,omitempty"`
	Extras           []ExtraAction      `json:"extras,omitempty"`
}
