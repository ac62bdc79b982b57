package dag

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/pipekit/errors"
)

// Link is the data wiring of one node input: To loads the values
// published at From.
type Link struct {
	To   Binding
	From []Binding
}

type portKey struct {
	node Node
	port string
}

func keyOf(b Binding) portKey { return portKey{node: b.Node, port: b.Port} }

// Pipeline is an immutable DAG of nodes plus its externally visible inputs
// and outputs.
type Pipeline struct {
	name    string
	nodes   []Node
	deps    map[Node][]Node
	exes    map[Node]Executable
	decl    map[Node][]string
	links   map[portKey]Link
	inputs  Params
	outputs Params
}

func newPipeline(name string) *Pipeline {
	return &Pipeline{
		name:  name,
		deps:  make(map[Node][]Node),
		exes:  make(map[Node]Executable),
		decl:  make(map[Node][]string),
		links: make(map[portKey]Link),
	}
}

func (p *Pipeline) clone() *Pipeline {
	c := newPipeline(p.name)
	c.nodes = append([]Node(nil), p.nodes...)
	for n, d := range p.deps {
		c.deps[n] = append([]Node(nil), d...)
	}
	for n, e := range p.exes {
		c.exes[n] = e
	}
	for n, d := range p.decl {
		c.decl[n] = append([]string(nil), d...)
	}
	for k, l := range p.links {
		c.links[k] = Link{To: l.To, From: append([]Binding(nil), l.From...)}
	}
	c.inputs = p.inputs.clone()
	c.outputs = p.outputs.clone()
	return c
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Nodes returns the nodes in registration order.
func (p *Pipeline) Nodes() []Node { return append([]Node(nil), p.nodes...) }

// Dependencies returns the nodes node depends on.
func (p *Pipeline) Dependencies(node Node) []Node {
	return append([]Node(nil), p.deps[node]...)
}

// Executable returns the work behind node.
func (p *Pipeline) Executable(node Node) (Executable, bool) {
	e, ok := p.exes[node]
	return e, ok
}

// DeclaredOutputs returns the output port names node may publish.
func (p *Pipeline) DeclaredOutputs(node Node) []string {
	return append([]string(nil), p.decl[node]...)
}

// Link returns the wiring feeding an input port of node.
func (p *Pipeline) Link(node Node, port string) (Link, bool) {
	l, ok := p.links[portKey{node: node, port: port}]
	if !ok {
		return Link{}, false
	}
	return Link{To: l.To, From: append([]Binding(nil), l.From...)}, true
}

// Links returns every internal data link, ordered by destination node.
func (p *Pipeline) Links() []Link {
	out := make([]Link, 0, len(p.links))
	for _, l := range p.links {
		out = append(out, Link{To: l.To, From: append([]Binding(nil), l.From...)})
	}
	sortLinks(out, p.nodes)
	return out
}

// Inputs returns the externally visible inputs.
func (p *Pipeline) Inputs() Params { return p.inputs.clone() }

// Outputs returns the externally visible outputs.
func (p *Pipeline) Outputs() Params { return p.outputs.clone() }

// Registry builds a node registry holding the pipeline's nodes.
func (p *Pipeline) Registry() *NodeRegistry {
	r := NewNodeRegistry()
	for _, n := range p.nodes {
		_ = r.Register(n)
	}
	return r
}

// DependencyGraph builds the dependency graph of the pipeline over registry.
func (p *Pipeline) DependencyGraph(registry *NodeRegistry) (*DependencyGraph, error) {
	g := NewDependencyGraph(registry)
	for _, n := range p.nodes {
		if err := g.Register(n, p.deps[n]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Levels groups the nodes by dependency depth.
func (p *Pipeline) Levels() ([][]Node, error) {
	return Levels(p.nodes, p.deps)
}

// PortRef names an input or output of a specific pipeline.
type PortRef struct {
	pipeline *Pipeline
	name     string
	output   bool
}

// In references the input (or input collection) name of p.
func (p *Pipeline) In(name string) PortRef {
	return PortRef{pipeline: p, name: name}
}

// Out references the output (or output collection) name of p.
func (p *Pipeline) Out(name string) PortRef {
	return PortRef{pipeline: p, name: name, output: true}
}

// Name returns the referenced port name.
func (r PortRef) Name() string { return r.name }

// Pipeline returns the pipeline the port belongs to.
func (r PortRef) Pipeline() *Pipeline { return r.pipeline }

// IsOutput reports whether r references an output.
func (r PortRef) IsOutput() bool { return r.output }

func (r PortRef) String() string {
	kind := "inputs"
	if r.output {
		kind = "outputs"
	}
	name := "<nil>"
	if r.pipeline != nil {
		name = r.pipeline.name
	}
	return fmt.Sprintf("%s.%s.%s", name, kind, r.name)
}

// params resolves r to the parameters it selects.
func (r PortRef) params() (Params, error) {
	if r.pipeline == nil {
		return Params{}, errors.InvalidInput("port", "reference has no pipeline")
	}
	set := r.pipeline.inputs
	if r.output {
		set = r.pipeline.outputs
	}
	selected := set.Select(r.name)
	if selected.Len() == 0 {
		return Params{}, errors.NotFound("port", r.String(), set.Names()...)
	}
	return selected, nil
}

// WithName returns a copy of the pipeline with another name.
func (p *Pipeline) WithName(name string) *Pipeline {
	c := p.clone()
	c.name = name
	return c
}

// RenameInputs relabels inputs; see Params.Rename.
func (p *Pipeline) RenameInputs(mapping map[string]string) (*Pipeline, error) {
	renamed, err := p.inputs.Rename(mapping)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: rename inputs: %w", p.name, err)
	}
	c := p.clone()
	c.inputs = renamed
	return c, nil
}

// RenameOutputs relabels outputs; see Params.Rename.
func (p *Pipeline) RenameOutputs(mapping map[string]string) (*Pipeline, error) {
	renamed, err := p.outputs.Rename(mapping)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: rename outputs: %w", p.name, err)
	}
	c := p.clone()
	c.outputs = renamed
	return c, nil
}

// DropInputs hides inputs. Only inputs whose consumers are all optional can
// be dropped.
func (p *Pipeline) DropInputs(names ...string) (*Pipeline, error) {
	for _, name := range names {
		selected := p.inputs.Select(name)
		if selected.Len() == 0 {
			return nil, errors.NotFound("input", name, p.inputs.Names()...)
		}
		for _, param := range selected.params {
			if param.Required() {
				return nil, errors.CompositionConflict(
					fmt.Sprintf("pipeline %s: input %q has required consumers", p.name, param.Name)).
					WithDetail("name", param.Name)
			}
		}
	}
	c := p.clone()
	c.inputs = p.inputs.Without(names...)
	return c, nil
}

// DropOutputs hides outputs.
func (p *Pipeline) DropOutputs(names ...string) (*Pipeline, error) {
	for _, name := range names {
		if !p.outputs.Has(name) {
			return nil, errors.NotFound("output", name, p.outputs.Names()...)
		}
	}
	c := p.clone()
	c.outputs = p.outputs.Without(names...)
	return c, nil
}

// Relabel prefixes every node key with prefix + "/" so the same pipeline
// can appear several times in one Combine.
func (p *Pipeline) Relabel(prefix string) *Pipeline {
	mapNode := func(n Node) Node { return NewNode(prefix + "/" + n.key) }
	mapBinding := func(b Binding) Binding {
		b.Node = mapNode(b.Node)
		return b
	}
	mapParams := func(ps Params) Params {
		out := ps.clone()
		for i := range out.params {
			for j := range out.params[i].Bindings {
				out.params[i].Bindings[j] = mapBinding(out.params[i].Bindings[j])
			}
		}
		return out
	}

	c := newPipeline(p.name)
	for _, n := range p.nodes {
		m := mapNode(n)
		c.nodes = append(c.nodes, m)
		for _, d := range p.deps[n] {
			c.deps[m] = append(c.deps[m], mapNode(d))
		}
		if e, ok := p.exes[n]; ok {
			c.exes[m] = e
		}
		c.decl[m] = append([]string(nil), p.decl[n]...)
	}
	for _, l := range p.links {
		nl := Link{To: mapBinding(l.To)}
		for _, f := range l.From {
			nl.From = append(nl.From, mapBinding(f))
		}
		c.links[keyOf(nl.To)] = nl
	}
	c.inputs = mapParams(p.inputs)
	c.outputs = mapParams(p.outputs)
	return c
}

// Wrap returns a copy of the pipeline with every executable replaced by
// wrap(node, exe).
func (p *Pipeline) Wrap(wrap func(Node, Executable) Executable) *Pipeline {
	c := p.clone()
	for n, e := range c.exes {
		c.exes[n] = wrap(n, e)
	}
	return c
}

func sortLinks(links []Link, order []Node) {
	pos := make(map[Node]int, len(order))
	for i, n := range order {
		pos[n] = i
	}
	slices.SortFunc(links, func(a, b Link) int {
		if c := cmp.Compare(pos[a.To.Node], pos[b.To.Node]); c != 0 {
			return c
		}
		return strings.Compare(a.To.Port, b.To.Port)
	})
}
