package capability

import (
	"fmt"
	"sort"

	"github.com/morezero/autodraw-agent/pkg/spec"
)

const registryLogPrefix = "capability:registry"

// Registry is the read-only, resolved form of a Catalog. It is built once
// and never mutated, so concurrent reads need no locking.
type Registry struct {
	name             string
	schemaVersion    string
	hostVersionRange string
	entries          map[string]*Entry
	ordered          []Entry
	systems          map[string]LightingSystem
	systemKeys       []string
	vocabulary       Vocabulary
	defaults         spec.Values
	extras           []ExtraAction
}

// New resolves param sets, checks the catalog for consistency and builds a Registry.
func New(cat *Catalog) (*Registry, error) {
	if cat == nil {
		return nil, fmt.Errorf("%s - nil catalog", registryLogPrefix)
	}
	r := &Registry{
		name:             cat.Name,
		schemaVersion:    cat.SchemaVersion,
		hostVersionRange: cat.HostVersionRange,
		entries:          make(map[string]*Entry, len(cat.Commands)),
		systems:          make(map[string]LightingSystem, len(cat.LightingSystems)),
		vocabulary: Vocabulary{
			Mounting:          append([]string(nil), cat.Vocabulary.Mounting...),
			Lens:              append([]string(nil), cat.Vocabulary.Lens...),
			ColorTemperatures: append([]string(nil), cat.Vocabulary.ColorTemperatures...),
		},
		defaults: make(spec.Values, len(cat.Defaults)),
		extras:   append([]ExtraAction(nil), cat.Extras...),
	}

	for _, raw := range cat.Commands {
		e := raw.clone()
		if e.Command == "" || e.External == "" {
			return nil, fmt.Errorf("%s - command entry requires command and external, got %q/%q", registryLogPrefix, e.Command, e.External)
		}
		if _, dup := r.entries[e.Command]; dup {
			return nil, fmt.Errorf("%s - duplicate command %q", registryLogPrefix, e.Command)
		}
		if !e.Class.Valid() {
			return nil, fmt.Errorf("%s - command %q has unknown class %q", registryLogPrefix, e.Command, e.Class)
		}
		if e.ParamSet != "" {
			set, ok := cat.ParamSets[e.ParamSet]
			if !ok {
				return nil, fmt.Errorf("%s - command %q references unknown param set %q", registryLogPrefix, e.Command, e.ParamSet)
			}
			e.Params = append(append([]Param(nil), set...), e.Params...)
		}
		for _, p := range e.Params {
			if err := checkParam(e.Command, p); err != nil {
				return nil, err
			}
		}
		r.entries[e.Command] = &e
		r.ordered = append(r.ordered, e)
	}

	sort.SliceStable(r.ordered, func(i, j int) bool {
		ci, cj := classRank(r.ordered[i].Class), classRank(r.ordered[j].Class)
		if ci != cj {
			return ci < cj
		}
		return r.ordered[i].Command < r.ordered[j].Command
	})

	for _, ls := range cat.LightingSystems {
		e, ok := r.entries[ls.Command]
		if !ok {
			return nil, fmt.Errorf("%s - lighting system %q references unknown command %q", registryLogPrefix, ls.Key, ls.Command)
		}
		if e.Class != ClassFixture {
			return nil, fmt.Errorf("%s - lighting system %q must map to a fixture command, %q is %s", registryLogPrefix, ls.Key, ls.Command, e.Class)
		}
		r.systems[ls.Key] = ls
		r.systemKeys = append(r.systemKeys, ls.Key)
	}

	for k, v := range cat.Defaults {
		switch v.(type) {
		case float64, string, bool:
			r.defaults[k] = v
		}
	}
	return r, nil
}

func checkParam(command string, p Param) error {
	if p.Name == "" {
		return fmt.Errorf("%s - command %q has a parameter without a name", registryLogPrefix, command)
	}
	switch p.Kind {
	case KindNumber, KindKelvin, KindPoint, KindPoints, KindString, KindText, KindBool:
	case KindLiteral:
		if _, ok := p.Default.(string); !ok {
			return fmt.Errorf("%s - literal parameter %s.%s needs a string default", registryLogPrefix, command, p.Name)
		}
	default:
		return fmt.Errorf("%s - parameter %s.%s has unknown kind %q", registryLogPrefix, command, p.Name, p.Kind)
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("%s - parameter %s.%s has min > max", registryLogPrefix, command, p.Name)
	}
	return nil
}

func classRank(c Class) int {
	for i, k := range Classes {
		if k == c {
			return i
		}
	}
	return len(Classes)
}

// Name returns the catalog name.
func (r *Registry) Name() string { return r.name }

// SchemaVersion returns the catalog schema version.
func (r *Registry) SchemaVersion() string { return r.schemaVersion }

// HostVersionRange returns the host version range declared by the catalog, if any.
func (r *Registry) HostVersionRange() string { return r.hostVersionRange }

// Lookup returns a copy of the entry for command. Unknown commands yield a
// structural *spec.ValidationError with code UNKNOWN_COMMAND.
func (r *Registry) Lookup(command string) (*Entry, error) {
	e, ok := r.entries[command]
	if !ok {
		return nil, spec.Structural(spec.CodeUnknownCommand, "command", "unknown command %q", command)
	}
	c := e.clone()
	return &c, nil
}

// ClassOf returns the class of command.
func (r *Registry) ClassOf(command string) (Class, bool) {
	e, ok := r.entries[command]
	if !ok {
		return "", false
	}
	return e.Class, true
}

// Has reports whether command is in the catalog.
func (r *Registry) Has(command string) bool {
	_, ok := r.entries[command]
	return ok
}

// List returns every entry, sorted by class then command.
func (r *Registry) List() []Entry {
	out := make([]Entry, len(r.ordered))
	for i, e := range r.ordered {
		out[i] = e.clone()
	}
	return out
}

// Commands returns the sorted command names of one class.
func (r *Registry) Commands(class Class) []string {
	var out []string
	for _, e := range r.ordered {
		if e.Class == class {
			out = append(out, e.Command)
		}
	}
	return out
}

// LightingSystem returns the lighting system with the given key.
func (r *Registry) LightingSystem(key string) (LightingSystem, bool) {
	ls, ok := r.systems[key]
	return ls, ok
}

// LightingSystems returns every lighting system in catalog order.
func (r *Registry) LightingSystems() []LightingSystem {
	out := make([]LightingSystem, 0, len(r.systemKeys))
	for _, k := range r.systemKeys {
		out = append(out, r.systems[k])
	}
	return out
}

// Vocabulary returns a copy of the enumerated attribute vocabularies.
func (r *Registry) Vocabulary() Vocabulary {
	return Vocabulary{
		Mounting:          append([]string(nil), r.vocabulary.Mounting...),
		Lens:              append([]string(nil), r.vocabulary.Lens...),
		ColorTemperatures: append([]string(nil), r.vocabulary.ColorTemperatures...),
	}
}

// Defaults returns a copy of the default attribute set.
func (r *Registry) Defaults() spec.Values {
	out := make(spec.Values, len(r.defaults))
	for k, v := range r.defaults {
		out[k] = v
	}
	return out
}

// Extras returns the post-pass extras actions in catalog order.
func (r *Registry) Extras() []ExtraAction {
	out := make([]ExtraAction, len(r.extras))
	for i, a := range r.extras {
		a.Args = append([]string(nil), a.Args...)
		out[i] = a
	}
	return out
}
