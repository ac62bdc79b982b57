package dag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbukum/pipekit/errors"
)

// DefinitionLoader loads pipeline definitions by name.
type DefinitionLoader interface {
	Load(name string) (*Definition, error)
}

// FileDefinitionLoader loads definitions from YAML files on disk.
type FileDefinitionLoader struct {
	dirs []string
}

// NewFileDefinitionLoader creates a loader that searches dirs (and their
// immediate subdirectories) for {name}.yaml or {name}.yml.
func NewFileDefinitionLoader(dirs ...string) *FileDefinitionLoader {
	return &FileDefinitionLoader{dirs: dirs}
}

// Load returns the first matching definition.
func (l *FileDefinitionLoader) Load(name string) (*Definition, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			candidates := []string{filepath.Join(dir, name+ext)}
			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			candidates = append(candidates, matches...)
			for _, path := range candidates {
				if _, err := os.Stat(path); err != nil {
					continue
				}
				return LoadDefinitionFile(path)
			}
		}
	}
	return nil, errors.NotFound("pipeline definition", name).WithDetail("dirs", l.dirs)
}

// Definitions is an in-memory DefinitionLoader.
type Definitions map[string]*Definition

// Load returns the definition registered under name.
func (d Definitions) Load(name string) (*Definition, error) {
	def, ok := d[name]
	if !ok {
		known := make([]string, 0, len(d))
		for k := range d {
			known = append(known, k)
		}
		return nil, errors.NotFound("pipeline definition", name, known...)
	}
	return def, nil
}

// Resolve builds the pipeline described by def. Included definitions are
// loaded through loader, resolved recursively, relabeled with their include
// name and combined with the tasks built from catalog.
func Resolve(def *Definition, catalog *Catalog, loader DefinitionLoader) (*Pipeline, error) {
	r := &resolver{catalog: catalog, loader: loader, stack: make(map[string]bool)}
	return r.resolve(def, nil)
}

type resolver struct {
	catalog *Catalog
	loader  DefinitionLoader
	stack   map[string]bool
}

func (r *resolver) resolve(def *Definition, path []string) (*Pipeline, error) {
	if r.stack[def.Name] {
		return nil, errors.CycleDetected(append(path, def.Name)).
			WithDetail("kind", "include")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	r.stack[def.Name] = true
	defer delete(r.stack, def.Name)
	path = append(path, def.Name)

	members := make(map[string]*Pipeline)
	var ordered []*Pipeline
	for _, t := range def.Tasks {
		p, err := r.catalog.Build(t.Component, t.Name)
		if err != nil {
			return nil, fmt.Errorf("dag: definition %s task %s: %w", def.Name, t.Name, err)
		}
		members[t.Name] = p
		ordered = append(ordered, p)
	}
	for _, include := range def.Includes {
		if r.loader == nil {
			return nil, errors.InvalidInput("includes", fmt.Sprintf("definition %q has includes but no loader", def.Name))
		}
		sub, err := r.loader.Load(include)
		if err != nil {
			return nil, fmt.Errorf("dag: loading include %q: %w", include, err)
		}
		p, err := r.resolve(sub, path)
		if err != nil {
			return nil, err
		}
		p = p.Relabel(include)
		members[include] = p
		ordered = append(ordered, p)
	}

	ref := func(s string, output bool) (PortRef, error) {
		member, port, _ := strings.Cut(s, ".")
		p, ok := members[member]
		if !ok {
			return PortRef{}, errors.NotFound("member", member, def.memberNames()...).
				WithDetail("definition", def.Name)
		}
		if output {
			return p.Out(port), nil
		}
		return p.In(port), nil
	}

	var opts []CombineOption
	for _, w := range def.Wiring {
		from, err := ref(w.From, true)
		if err != nil {
			return nil, err
		}
		to, err := ref(w.To, false)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDependencies(Wire(from, to)))
	}
	exposures := func(m map[string][]string, output bool) ([]Exposure, error) {
		var out []Exposure
		for _, name := range sortedExposureNames(m) {
			e := Exposure{Name: name}
			for _, s := range m[name] {
				pr, err := ref(s, output)
				if err != nil {
					return nil, err
				}
				e.Refs = append(e.Refs, pr)
			}
			out = append(out, e)
		}
		return out, nil
	}
	if len(def.Inputs) > 0 {
		exps, err := exposures(def.Inputs, false)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithInputs(exps...))
	}
	if len(def.Outputs) > 0 {
		exps, err := exposures(def.Outputs, true)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithOutputs(exps...))
	}
	return Combine(def.Name, ordered, opts...)
}
