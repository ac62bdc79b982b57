package dag

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/pipekit/errors"
)

// Wiring connects an output of one member pipeline to an input of another.
type Wiring struct {
	From PortRef
	To   PortRef
}

// Wire connects from (an output) to to (an input). Collections wire entry
// by entry.
func Wire(from, to PortRef) Wiring {
	return Wiring{From: from, To: to}
}

func (w Wiring) String() string {
	return w.From.String() + " >> " + w.To.String()
}

// Exposure makes inner ports visible on the combined pipeline under Name.
// Several refs form an explicit union: inputs fan out to every ref, outputs
// aggregate in ref order.
type Exposure struct {
	Name string
	Refs []PortRef
}

// Expose builds an exposure.
func Expose(name string, refs ...PortRef) Exposure {
	return Exposure{Name: name, Refs: refs}
}

type combineConfig struct {
	wiring  []Wiring
	inputs  []Exposure
	outputs []Exposure

	explicitInputs  bool
	explicitOutputs bool
}

// CombineOption configures Combine.
type CombineOption func(*combineConfig)

// WithDependencies adds wiring statements.
func WithDependencies(wiring ...Wiring) CombineOption {
	return func(c *combineConfig) { c.wiring = append(c.wiring, wiring...) }
}

// WithInputs replaces default input visibility: only these inputs are visible.
func WithInputs(exposures ...Exposure) CombineOption {
	return func(c *combineConfig) {
		c.inputs = append(c.inputs, exposures...)
		c.explicitInputs = true
	}
}

// WithOutputs replaces default output visibility: only these outputs are visible.
func WithOutputs(exposures ...Exposure) CombineOption {
	return func(c *combineConfig) {
		c.outputs = append(c.outputs, exposures...)
		c.explicitOutputs = true
	}
}

type usage map[*Pipeline]map[string]bool

func (u usage) mark(p *Pipeline, name string) {
	if u[p] == nil {
		u[p] = make(map[string]bool)
	}
	u[p][name] = true
}

func (u usage) has(p *Pipeline, name string) bool { return u[p][name] }

type combiner struct {
	name     string
	members  []*Pipeline
	index    map[*Pipeline]bool
	out      *Pipeline
	wiredIn  usage
	wiredOut usage
}

// Combine merges pipelines into one named name.
//
// Node keys must be unique across members. Each wiring statement adds a
// data link and a dependency edge per destination binding; an input can be
// wired only once and wiring must not close a cycle. Without WithInputs,
// every unwired input stays visible and same-named inputs merge into one
// fan-out input. Without WithOutputs, every unwired output stays visible and
// two members exposing the same output name conflict.
func Combine(name string, pipelines []*Pipeline, opts ...CombineOption) (*Pipeline, error) {
	var cfg combineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(pipelines) == 0 {
		return nil, errors.InvalidInput("pipelines", fmt.Sprintf("combine %s: no pipelines", name))
	}

	c := &combiner{
		name:     name,
		members:  pipelines,
		index:    make(map[*Pipeline]bool, len(pipelines)),
		out:      newPipeline(name),
		wiredIn:  make(usage),
		wiredOut: make(usage),
	}
	steps := []func() error{
		c.mergeNodes,
		func() error { return c.wire(cfg.wiring) },
		c.checkAcyclic,
		func() error { return c.exposeInputs(cfg.explicitInputs, cfg.inputs) },
		func() error { return c.exposeOutputs(cfg.explicitOutputs, cfg.outputs) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("combine %s: %w", name, err)
		}
	}
	return c.out, nil
}

func (c *combiner) mergeNodes() error {
	owner := make(map[Node]string)
	for _, p := range c.members {
		if p == nil {
			return errors.InvalidInput("pipelines", "nil pipeline")
		}
		if c.index[p] {
			return errors.CompositionConflict(fmt.Sprintf("pipeline %q is passed twice; relabel one copy", p.name)).
				WithDetail("pipeline", p.name)
		}
		c.index[p] = true
		for _, n := range p.nodes {
			if prev, ok := owner[n]; ok {
				return errors.CompositionConflict(fmt.Sprintf("node %q is defined by both %s and %s", n.key, prev, p.name)).
					WithDetail("node", n.key)
			}
			owner[n] = p.name
			c.out.nodes = append(c.out.nodes, n)
			c.out.deps[n] = append([]Node(nil), p.deps[n]...)
			if e, ok := p.exes[n]; ok {
				c.out.exes[n] = e
			}
			c.out.decl[n] = append([]string(nil), p.decl[n]...)
		}
		for k, l := range p.links {
			c.out.links[k] = Link{To: l.To, From: append([]Binding(nil), l.From...)}
		}
	}
	return nil
}

func (c *combiner) member(ref PortRef) error {
	if ref.pipeline == nil || !c.index[ref.pipeline] {
		names := make([]string, len(c.members))
		for i, p := range c.members {
			names[i] = p.name
		}
		return errors.NotFound("member pipeline", ref.String(), names...)
	}
	return nil
}

func (c *combiner) wire(wiring []Wiring) error {
	for _, w := range wiring {
		if !w.From.output || w.To.output {
			return errors.InvalidInput("wiring", fmt.Sprintf("%s must connect an output to an input", w))
		}
		if err := c.member(w.From); err != nil {
			return err
		}
		if err := c.member(w.To); err != nil {
			return err
		}
		pairs, err := pairParams(w)
		if err != nil {
			return err
		}
		for _, pair := range pairs {
			src, dst := pair[0], pair[1]
			for _, b := range dst.Bindings {
				k := keyOf(b)
				if _, wired := c.out.links[k]; wired {
					return errors.CompositionConflict(fmt.Sprintf("input %s is wired twice", b)).
						WithDetail("binding", b.String())
				}
				for _, f := range src.Bindings {
					if f.Node == b.Node {
						return errors.CycleDetected([]string{b.Node.key}).
							WithDetail("wiring", w.String())
					}
				}
				c.out.links[k] = Link{To: b, From: append([]Binding(nil), src.Bindings...)}
				deps := c.out.deps[b.Node]
				for _, f := range src.Bindings {
					deps = append(deps, f.Node)
				}
				c.out.deps[b.Node] = dedupeNodes(deps)
			}
			c.wiredOut.mark(w.From.pipeline, src.Name)
			c.wiredIn.mark(w.To.pipeline, dst.Name)
		}
	}
	return nil
}

// pairParams matches the parameters selected by a wiring statement: a
// single port to a single port, or a collection to a collection with the
// same entries.
func pairParams(w Wiring) ([][2]Param, error) {
	src, err := w.From.params()
	if err != nil {
		return nil, err
	}
	dst, err := w.To.params()
	if err != nil {
		return nil, err
	}
	srcSingle := src.Len() == 1 && src.params[0].Name == w.From.name
	dstSingle := dst.Len() == 1 && dst.params[0].Name == w.To.name
	if srcSingle && dstSingle {
		return [][2]Param{{src.params[0], dst.params[0]}}, nil
	}
	if srcSingle != dstSingle {
		return nil, errors.CompositionConflict(fmt.Sprintf("%s: cannot wire a collection to a single port", w))
	}

	srcEntries := make(map[string]Param, src.Len())
	for _, p := range src.params {
		srcEntries[p.Entry()] = p
	}
	var pairs [][2]Param
	for _, d := range dst.params {
		s, ok := srcEntries[d.Entry()]
		if !ok {
			break
		}
		pairs = append(pairs, [2]Param{s, d})
	}
	if len(pairs) != src.Len() || len(pairs) != dst.Len() {
		return nil, errors.CompositionConflict(fmt.Sprintf("%s: collection entries differ", w)).
			WithDetails(map[string]any{"from": entryNames(src), "to": entryNames(dst)})
	}
	return pairs, nil
}

func entryNames(ps Params) []string {
	out := make([]string, ps.Len())
	for i, p := range ps.params {
		out[i] = p.Entry()
	}
	return out
}

func (c *combiner) checkAcyclic() error {
	_, err := Levels(c.out.nodes, c.out.deps)
	return err
}

func (c *combiner) exposeInputs(explicit bool, exposures []Exposure) error {
	if !explicit {
		var inputs Params
		for _, p := range c.members {
			for _, param := range p.inputs.params {
				if !c.wiredIn.has(p, param.Name) {
					inputs = inputs.with(param)
				}
			}
		}
		c.out.inputs = inputs
		return c.out.inputs.Validate()
	}

	exposed := make(usage)
	inputs, err := c.expose(exposures, false, exposed)
	if err != nil {
		return err
	}
	for _, p := range c.members {
		for _, param := range p.inputs.params {
			if c.wiredIn.has(p, param.Name) || exposed.has(p, param.Name) {
				continue
			}
			if param.Required() {
				return errors.CompositionConflict(
					fmt.Sprintf("required input %s.%s is neither wired nor exposed", p.name, param.Name)).
					WithDetail("name", param.Name)
			}
		}
	}
	c.out.inputs = inputs
	return nil
}

func (c *combiner) exposeOutputs(explicit bool, exposures []Exposure) error {
	if !explicit {
		var outputs Params
		owner := make(map[string]string)
		for _, p := range c.members {
			for _, param := range p.outputs.params {
				if c.wiredOut.has(p, param.Name) {
					continue
				}
				if prev, ok := owner[param.Name]; ok {
					return errors.CompositionConflict(
						fmt.Sprintf("output %q is exposed by both %s and %s; expose a union explicitly", param.Name, prev, p.name)).
						WithDetail("name", param.Name)
				}
				owner[param.Name] = p.name
				outputs.params = append(outputs.params, param.clone())
			}
		}
		c.out.outputs = outputs
		return c.out.outputs.Validate()
	}

	outputs, err := c.expose(exposures, true, make(usage))
	if err != nil {
		return err
	}
	c.out.outputs = outputs
	return nil
}

func (c *combiner) expose(exposures []Exposure, output bool, exposed usage) (Params, error) {
	kind := "input"
	if output {
		kind = "output"
	}
	var result Params
	outer := make(map[string]bool)
	for _, e := range exposures {
		if e.Name == "" || len(e.Refs) == 0 {
			return Params{}, errors.InvalidInput(kind, "exposure needs a name and at least one port")
		}
		if outer[e.Name] {
			return Params{}, errors.CompositionConflict(fmt.Sprintf("%s %q is exposed twice", kind, e.Name)).
				WithDetail("name", e.Name)
		}
		outer[e.Name] = true

		var params Params
		for _, ref := range e.Refs {
			if ref.output != output {
				return Params{}, errors.InvalidInput(kind, fmt.Sprintf("%s is not an %s", ref, kind))
			}
			if err := c.member(ref); err != nil {
				return Params{}, err
			}
			selected, err := ref.params()
			if err != nil {
				return Params{}, err
			}
			single := selected.Len() == 1 && selected.params[0].Name == ref.name
			if !single && strings.Contains(e.Name, ".") {
				return Params{}, errors.CompositionConflict(
					fmt.Sprintf("collection %s cannot be exposed as entry %q", ref, e.Name))
			}
			for _, param := range selected.params {
				if !output && c.wiredIn.has(ref.pipeline, param.Name) {
					return Params{}, errors.CompositionConflict(
						fmt.Sprintf("input %s.%s is wired and cannot be exposed", ref.pipeline.name, param.Name)).
						WithDetail("name", param.Name)
				}
				name := e.Name
				if !single {
					name = e.Name + "." + param.Entry()
				}
				params = params.with(Param{Name: name, Bindings: param.Bindings})
				exposed.mark(ref.pipeline, param.Name)
			}
		}
		for _, p := range params.params {
			if slices.Contains(result.Names(), p.Name) {
				return Params{}, errors.CompositionConflict(fmt.Sprintf("%s %q is exposed twice", kind, p.Name)).
					WithDetail("name", p.Name)
			}
			result.params = append(result.params, p)
		}
	}
	if err := result.Validate(); err != nil {
		return Params{}, err
	}
	return result, nil
}
