package session

import (
	"fmt"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
)

// InputsNode is the reserved node external input values are published under.
var InputsNode = dag.NewNode("$inputs")

// wiring resolves where each node input loads from.
type wiring struct {
	pipeline *dag.Pipeline
	// external maps a node input bound to a pipeline input to that input's name.
	external map[dag.Binding]string
}

func newWiring(p *dag.Pipeline) *wiring {
	w := &wiring{pipeline: p, external: make(map[dag.Binding]string)}
	if p == nil {
		return w
	}
	for _, param := range p.Inputs().All() {
		for _, b := range param.Bindings {
			b.Optional = false
			w.external[b] = param.Name
		}
	}
	return w
}

// sources returns the store keys feeding port of node.
func (w *wiring) sources(node dag.Node, port string) ([]storeKey, bool) {
	if w.pipeline != nil {
		if link, ok := w.pipeline.Link(node, port); ok {
			keys := make([]storeKey, len(link.From))
			for i, b := range link.From {
				keys[i] = storeKey{node: b.Node, port: b.Port}
			}
			return keys, true
		}
	}
	if name, ok := w.external[dag.Binding{Node: node, Port: port}]; ok {
		return []storeKey{{node: InputsNode, port: name}}, true
	}
	return nil, false
}

// declared reports whether node may publish port. Sessions built without a
// pipeline accept any port.
func (w *wiring) declared(node dag.Node, port string) bool {
	if w.pipeline == nil {
		return true
	}
	for _, out := range w.pipeline.DeclaredOutputs(node) {
		if out == port {
			return true
		}
	}
	return false
}

// nodeIO is the PortIO handed to one node execution.
type nodeIO struct {
	node   dag.Node
	store  Store
	wiring *wiring
}

var _ dag.PortIO = (*nodeIO)(nil)

func (io *nodeIO) Node() dag.Node { return io.node }

// Load returns the value wired into port. Ports fed by several outputs load
// as []any in wiring order.
func (io *nodeIO) Load(port string) (any, error) {
	keys, ok := io.wiring.sources(io.node, port)
	if !ok {
		return nil, errors.NotFound("input", io.node.Key()+"."+port).
			WithDetail("reason", "port is not wired")
	}
	return loadKeys(io.store, keys)
}

// Publish stores the value of a declared output.
func (io *nodeIO) Publish(port string, value any) error {
	if !io.wiring.declared(io.node, port) {
		return errors.InvalidInput(port, fmt.Sprintf("node %s does not declare output %q", io.node, port))
	}
	return io.store.Publish(io.node, port, value)
}

func loadKeys(store Store, keys []storeKey) (any, error) {
	if len(keys) == 1 {
		return store.Load(keys[0].node, keys[0].port)
	}
	values := make([]any, len(keys))
	for i, k := range keys {
		v, err := store.Load(k.node, k.port)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
