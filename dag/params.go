package dag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/pipekit/errors"
)

// Param is a named input or output of a pipeline together with the node
// ports it stands for. An input bound to several nodes fans out; an output
// bound to several nodes aggregates their values in binding order.
type Param struct {
	Name     string
	Bindings []Binding
}

// Collection returns the collection part of a dotted name, or "".
func (p Param) Collection() string {
	c, _ := SplitName(p.Name)
	return c
}

// Entry returns the entry part of a dotted name, or the whole bare name.
func (p Param) Entry() string {
	_, e := SplitName(p.Name)
	return e
}

// Required reports whether any binding is a non-optional consumer.
func (p Param) Required() bool {
	for _, b := range p.Bindings {
		if !b.Optional {
			return true
		}
	}
	return false
}

func (p Param) clone() Param {
	return Param{Name: p.Name, Bindings: append([]Binding(nil), p.Bindings...)}
}

// matches reports whether name selects p: either its full name, or, for a
// bare name, the collection p belongs to.
func (p Param) matches(name string) bool {
	if p.Name == name {
		return true
	}
	return !strings.Contains(name, ".") && p.Collection() == name
}

// Params is an immutable, ordered set of parameters keyed by name.
type Params struct {
	params []Param
}

// NewParams builds a set. Params sharing a name are merged, bindings kept
// in argument order.
func NewParams(params ...Param) Params {
	var out Params
	for _, p := range params {
		out = out.with(p)
	}
	return out
}

func (ps Params) with(p Param) Params {
	out := ps.clone()
	for i := range out.params {
		if out.params[i].Name == p.Name {
			out.params[i].Bindings = appendBindings(out.params[i].Bindings, p.Bindings...)
			return out
		}
	}
	out.params = append(out.params, p.clone())
	return out
}

func appendBindings(dst []Binding, src ...Binding) []Binding {
	for _, b := range src {
		if !slices.Contains(dst, b) {
			dst = append(dst, b)
		}
	}
	return dst
}

func (ps Params) clone() Params {
	out := Params{params: make([]Param, len(ps.params))}
	for i, p := range ps.params {
		out.params[i] = p.clone()
	}
	return out
}

// Len returns the number of parameters.
func (ps Params) Len() int { return len(ps.params) }

// All returns a copy of the parameters in order.
func (ps Params) All() []Param {
	return ps.clone().params
}

// Names returns parameter names in order.
func (ps Params) Names() []string {
	names := make([]string, len(ps.params))
	for i, p := range ps.params {
		names[i] = p.Name
	}
	return names
}

// Get returns the parameter with the exact name.
func (ps Params) Get(name string) (Param, bool) {
	for _, p := range ps.params {
		if p.Name == name {
			return p.clone(), true
		}
	}
	return Param{}, false
}

// Has reports whether name selects any parameter (exact or collection).
func (ps Params) Has(name string) bool {
	for _, p := range ps.params {
		if p.matches(name) {
			return true
		}
	}
	return false
}

// Select returns the parameters selected by name: the exact parameter, or
// every entry of the collection.
func (ps Params) Select(name string) Params {
	var out Params
	for _, p := range ps.params {
		if p.matches(name) {
			out.params = append(out.params, p.clone())
		}
	}
	return out
}

// Collections maps each collection name to its entry names.
func (ps Params) Collections() map[string][]string {
	out := make(map[string][]string)
	for _, p := range ps.params {
		if c := p.Collection(); c != "" {
			out[c] = append(out[c], p.Entry())
		}
	}
	return out
}

// Collection returns the entries of the named collection.
func (ps Params) Collection(name string) Params {
	var out Params
	for _, p := range ps.params {
		if p.Collection() == name {
			out.params = append(out.params, p.clone())
		}
	}
	return out
}

// Bindings returns every binding of every parameter, in order.
func (ps Params) Bindings() []Binding {
	var out []Binding
	for _, p := range ps.params {
		out = append(out, p.Bindings...)
	}
	return out
}

// Union merges others into ps. Parameters with the same name merge their
// bindings in construction order.
func (ps Params) Union(others ...Params) Params {
	out := ps.clone()
	for _, o := range others {
		for _, p := range o.params {
			out = out.with(p)
		}
	}
	return out
}

// Without removes the parameters selected by names. A bare collection name
// removes the whole collection, a dotted name only that entry.
func (ps Params) Without(names ...string) Params {
	var out Params
	for _, p := range ps.params {
		if !p.matchesAny(names) {
			out.params = append(out.params, p.clone())
		}
	}
	return out
}

// Minus removes every parameter named in other.
func (ps Params) Minus(other Params) Params {
	return ps.Without(other.Names()...)
}

// Only keeps the parameters selected by names.
func (ps Params) Only(names ...string) Params {
	var out Params
	for _, p := range ps.params {
		if p.matchesAny(names) {
			out.params = append(out.params, p.clone())
		}
	}
	return out
}

// Intersect keeps the parameters also named in other.
func (ps Params) Intersect(other Params) Params {
	return ps.Only(other.Names()...)
}

func (p Param) matchesAny(names []string) bool {
	for _, n := range names {
		if p.matches(n) {
			return true
		}
	}
	return false
}

// Rename relabels parameters. Keys are old names (bare, dotted, or a
// collection name), values the new names; all renames apply at once.
// An unknown old name fails with NOT_FOUND, a resulting name collision
// with COMPOSITION_CONFLICT.
func (ps Params) Rename(mapping map[string]string) (Params, error) {
	out := ps.clone()
	renamed := make([]bool, len(out.params))
	for _, old := range sortedKeys(mapping) {
		newName := mapping[old]
		if newName == "" {
			return Params{}, errors.InvalidInput(old, "new name is empty")
		}
		exact := false
		for i, p := range ps.params {
			if p.Name == old {
				if renamed[i] {
					return Params{}, errors.CompositionConflict(fmt.Sprintf("parameter %q renamed twice", p.Name))
				}
				out.params[i].Name = newName
				renamed[i] = true
				exact = true
			}
		}
		if exact {
			continue
		}
		found := false
		for i, p := range ps.params {
			if strings.Contains(old, ".") || p.Collection() != old {
				continue
			}
			if strings.Contains(newName, ".") {
				return Params{}, errors.InvalidInput(old, fmt.Sprintf("collection cannot be renamed to entry name %q", newName))
			}
			if renamed[i] {
				return Params{}, errors.CompositionConflict(fmt.Sprintf("parameter %q renamed twice", p.Name))
			}
			out.params[i].Name = newName + "." + p.Entry()
			renamed[i] = true
			found = true
		}
		if !found {
			return Params{}, errors.NotFound("parameter", old, ps.Names()...)
		}
	}
	if err := out.Validate(); err != nil {
		return Params{}, err
	}
	return out, nil
}

// Validate checks that names are unique and that no bare name equals a
// collection name.
func (ps Params) Validate() error {
	seen := make(map[string]bool, len(ps.params))
	for _, p := range ps.params {
		if p.Name == "" {
			return errors.InvalidInput("", "parameter name is empty")
		}
		if seen[p.Name] {
			return errors.CompositionConflict(fmt.Sprintf("parameter %q defined twice", p.Name)).
				WithDetail("name", p.Name)
		}
		seen[p.Name] = true
	}
	for c := range ps.Collections() {
		if seen[c] {
			return errors.CompositionConflict(fmt.Sprintf("%q is both a parameter and a collection", c)).
				WithDetail("name", c)
		}
	}
	return nil
}

func (ps Params) String() string {
	return "{" + strings.Join(ps.Names(), ", ") + "}"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
