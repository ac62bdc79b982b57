package dag

import (
	"fmt"
	"os"
	"slices"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/validation"
)

// Definition is a pipeline declared in YAML:
//
//	name: diamond
//	includes: [normalize]
//	tasks:
//	  - name: a
//	    component: split
//	  - name: d
//	    component: join
//	wiring:
//	  - from: a.z1
//	    to: normalize.x
//	  - from: normalize.z
//	    to: d.x1
//	outputs:
//	  total: [d.sum]
//
// Tasks and included definitions are the members of the resulting Combine;
// ports are referenced as member.port. Inputs and outputs, when given, are
// explicit exposures (several refs form a union).
type Definition struct {
	Name        string              `yaml:"name" validate:"required"`
	Description string              `yaml:"description,omitempty"`
	Includes    []string            `yaml:"includes,omitempty" validate:"unique,dive,required"`
	Tasks       []TaskDef           `yaml:"tasks,omitempty" validate:"dive"`
	Wiring      []WiringDef         `yaml:"wiring,omitempty" validate:"dive"`
	Inputs      map[string][]string `yaml:"inputs,omitempty" validate:"dive,keys,portname,endkeys,min=1,dive,portref"`
	Outputs     map[string][]string `yaml:"outputs,omitempty" validate:"dive,keys,portname,endkeys,min=1,dive,portref"`
}

// TaskDef declares one task built from a catalog component.
type TaskDef struct {
	Name      string `yaml:"name" validate:"required,excludesall=./"`
	Component string `yaml:"component" validate:"required"`
}

// WiringDef connects member.output to member.input.
type WiringDef struct {
	From string `yaml:"from" validate:"required,portref"`
	To   string `yaml:"to" validate:"required,portref"`
}

// ParseDefinition decodes and validates a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.InvalidInput("definition", err.Error()).WithCause(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks field formats and member name uniqueness.
func (d *Definition) Validate() error {
	if err := validation.Validate(d); err != nil {
		return err
	}
	if len(d.Tasks) == 0 && len(d.Includes) == 0 {
		return errors.InvalidInput("tasks", fmt.Sprintf("definition %q has no tasks or includes", d.Name))
	}
	members := make(map[string]bool)
	for _, name := range d.memberNames() {
		if members[name] {
			return errors.CompositionConflict(fmt.Sprintf("definition %q declares member %q twice", d.Name, name)).
				WithDetail("member", name)
		}
		members[name] = true
	}
	return nil
}

func (d *Definition) memberNames() []string {
	names := make([]string, 0, len(d.Tasks)+len(d.Includes))
	for _, t := range d.Tasks {
		names = append(names, t.Name)
	}
	return append(names, d.Includes...)
}

// LoadDefinitionFile reads and parses a definition file.
func LoadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("dag: parsing %s: %w", path, err)
	}
	return def, nil
}

func sortedExposureNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ComponentFactory builds the single-task pipeline of a component. name is
// the task name and becomes the node key.
type ComponentFactory func(name string) (*Pipeline, error)

// Catalog maps component names to factories.
type Catalog struct {
	factories map[string]ComponentFactory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]ComponentFactory)}
}

// Register adds a component factory.
func (c *Catalog) Register(component string, factory ComponentFactory) error {
	if _, exists := c.factories[component]; exists {
		return errors.DuplicateRegistration("component", component)
	}
	c.factories[component] = factory
	return nil
}

// Build creates the task name from component.
func (c *Catalog) Build(component, name string) (*Pipeline, error) {
	factory, ok := c.factories[component]
	if !ok {
		return nil, errors.NotFound("component", component, c.Components()...)
	}
	return factory(name)
}

// Components returns the registered component names, sorted.
func (c *Catalog) Components() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
