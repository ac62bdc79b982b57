package dag

import (
	"context"

	"github.com/kbukum/pipekit/errors"
)

// PortIO is the data handle a node receives for one invocation. It is bound
// to the running node, so ports are addressed by name alone.
type PortIO interface {
	// Node returns the node being executed.
	Node() Node
	// Load returns the value wired into an input port. Ports fed by several
	// outputs load as []any in wiring order.
	Load(port string) (any, error)
	// Publish stores the value of a declared output port. Each output can
	// be published once.
	Publish(port string, value any) error
}

// Executable is the unit of work behind a node.
type Executable interface {
	Execute(ctx context.Context, io PortIO) error
}

// ExecutableFunc adapts a function to Executable.
type ExecutableFunc func(ctx context.Context, io PortIO) error

// Execute calls f.
func (f ExecutableFunc) Execute(ctx context.Context, io PortIO) error {
	return f(ctx, io)
}

// Load reads a typed input. A value of another type fails with TYPE_MISMATCH.
func Load[T any](io PortIO, port Port[T]) (T, error) {
	var zero T
	raw, err := io.Load(port.name)
	if err != nil {
		return zero, err
	}
	val, ok := raw.(T)
	if !ok {
		return zero, errors.TypeMismatch(io.Node().key+"."+port.name, zero, raw)
	}
	return val, nil
}

// LoadAll reads an input fed by several outputs as a typed slice. A port
// fed by a single output yields a slice of one.
func LoadAll[T any](io PortIO, port Port[T]) ([]T, error) {
	raw, err := io.Load(port.name)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		val, ok := item.(T)
		if !ok {
			var zero T
			return nil, errors.TypeMismatch(io.Node().key+"."+port.name, zero, item)
		}
		out = append(out, val)
	}
	return out, nil
}

// Publish writes a typed output.
func Publish[T any](io PortIO, port Port[T], value T) error {
	return io.Publish(port.name, value)
}
