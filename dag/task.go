package dag

import (
	"fmt"

	"github.com/kbukum/pipekit/errors"
)

// TaskOption declares the ports of a task.
type TaskOption func(*taskPorts)

type taskPorts struct {
	inputs   []string
	optional []string
	outputs  []string
}

// Inputs declares required input ports. Dotted names create collections.
func Inputs(names ...string) TaskOption {
	return func(t *taskPorts) { t.inputs = append(t.inputs, names...) }
}

// OptionalInputs declares inputs the task can run without.
func OptionalInputs(names ...string) TaskOption {
	return func(t *taskPorts) { t.optional = append(t.optional, names...) }
}

// Outputs declares output ports. Dotted names create collections.
func Outputs(names ...string) TaskOption {
	return func(t *taskPorts) { t.outputs = append(t.outputs, names...) }
}

// Task builds a single-node pipeline named name whose node key is name.
func Task(name string, exe Executable, opts ...TaskOption) (*Pipeline, error) {
	if name == "" {
		return nil, errors.InvalidInput("name", "task name is empty")
	}
	if exe == nil {
		return nil, errors.InvalidInput("executable", fmt.Sprintf("task %q has no executable", name))
	}
	var ports taskPorts
	for _, opt := range opts {
		opt(&ports)
	}

	node := NewNode(name)
	p := newPipeline(name)
	p.nodes = []Node{node}
	p.exes[node] = exe
	p.decl[node] = append([]string(nil), ports.outputs...)

	var inputs, outputs []Param
	seen := make(map[string]bool)
	add := func(dst *[]Param, port string, optional bool) error {
		if port == "" {
			return errors.InvalidInput("port", fmt.Sprintf("task %q declares an empty port name", name))
		}
		if seen[port] {
			return errors.CompositionConflict(fmt.Sprintf("task %q declares port %q twice", name, port))
		}
		seen[port] = true
		*dst = append(*dst, Param{Name: port, Bindings: []Binding{{Node: node, Port: port, Optional: optional}}})
		return nil
	}
	for _, in := range ports.inputs {
		if err := add(&inputs, in, false); err != nil {
			return nil, err
		}
	}
	for _, in := range ports.optional {
		if err := add(&inputs, in, true); err != nil {
			return nil, err
		}
	}
	clear(seen)
	for _, out := range ports.outputs {
		if err := add(&outputs, out, false); err != nil {
			return nil, err
		}
	}

	p.inputs = NewParams(inputs...)
	p.outputs = NewParams(outputs...)
	if err := p.inputs.Validate(); err != nil {
		return nil, fmt.Errorf("task %s inputs: %w", name, err)
	}
	if err := p.outputs.Validate(); err != nil {
		return nil, fmt.Errorf("task %s outputs: %w", name, err)
	}
	return p, nil
}

// MustTask is like Task but panics on error.
func MustTask(name string, exe Executable, opts ...TaskOption) *Pipeline {
	p, err := Task(name, exe, opts...)
	if err != nil {
		panic(err)
	}
	return p
}
