package main

import (
	"context"
	"fmt"

	"github.com/kbukum/pipekit/dag"
	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/session"
	"github.com/kbukum/pipekit/storage"
)

// reportPath is where json_writer and json_reader tasks keep their value.
const reportPath = "reports/{node}.json"

// newCatalog registers the components YAML definitions can reference.
func newCatalog(store storage.Storage) (*dag.Catalog, error) {
	c := dag.NewCatalog()
	components := []struct {
		name    string
		factory dag.ComponentFactory
	}{
		{"split", func(name string) (*dag.Pipeline, error) {
			return dag.Task(name, split(), dag.Inputs("x"), dag.Outputs("z1", "z2"))
		}},
		{"double", func(name string) (*dag.Pipeline, error) {
			return dag.Task(name, unary(func(x float64) float64 { return 2 * x }), dag.Inputs("x"), dag.Outputs("z"))
		}},
		{"square", func(name string) (*dag.Pipeline, error) {
			return dag.Task(name, unary(func(x float64) float64 { return x * x }), dag.Inputs("x"), dag.Outputs("z"))
		}},
		{"add", func(name string) (*dag.Pipeline, error) {
			return dag.Task(name, add(), dag.Inputs("x1", "x2"), dag.OptionalInputs("bias"), dag.Outputs("z"))
		}},
		{"json_writer", func(name string) (*dag.Pipeline, error) {
			return storage.JSONWriterTask(name, store, reportPath)
		}},
		{"json_reader", func(name string) (*dag.Pipeline, error) {
			return storage.JSONReaderTask(name, store, reportPath)
		}},
	}
	for _, comp := range components {
		if err := c.Register(comp.name, comp.factory); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func number(io dag.PortIO, port string) (float64, error) {
	raw, err := io.Load(port)
	if err != nil {
		return 0, err
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, errors.TypeMismatch(io.Node().Key()+"."+port, float64(0), raw)
}

func split() dag.Executable {
	return dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		x, err := number(io, "x")
		if err != nil {
			return err
		}
		if err := io.Publish("z1", x); err != nil {
			return err
		}
		return io.Publish("z2", x)
	})
}

func unary(f func(float64) float64) dag.Executable {
	return dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		x, err := number(io, "x")
		if err != nil {
			return err
		}
		return io.Publish("z", f(x))
	})
}

// add sums x1 and x2, plus bias when it is wired.
func add() dag.Executable {
	return dag.ExecutableFunc(func(_ context.Context, io dag.PortIO) error {
		x1, err := number(io, "x1")
		if err != nil {
			return err
		}
		x2, err := number(io, "x2")
		if err != nil {
			return err
		}
		sum := x1 + x2
		if bias, err := number(io, "bias"); err == nil {
			sum += bias
		} else if !errors.HasCode(err, errors.ErrCodeNotFound) {
			return err
		}
		return io.Publish("z", sum)
	})
}

// diamond splits x, doubles and squares the halves and adds them back:
// z = 2x + x².
func diamond(c *dag.Catalog) (*dag.Pipeline, error) {
	a, err := c.Build("split", "a")
	if err != nil {
		return nil, err
	}
	b, err := c.Build("double", "b")
	if err != nil {
		return nil, err
	}
	sq, err := c.Build("square", "c")
	if err != nil {
		return nil, err
	}
	d, err := c.Build("add", "d")
	if err != nil {
		return nil, err
	}
	return dag.Combine("diamond", []*dag.Pipeline{a, b, sq, d}, dag.WithDependencies(
		dag.Wire(a.Out("z1"), b.In("x")),
		dag.Wire(a.Out("z2"), sq.In("x")),
		dag.Wire(b.Out("z"), d.In("x1")),
		dag.Wire(sq.Out("z"), d.In("x2")),
	))
}

// diamondReport runs the diamond and stores z as reports/report.json.
func diamondReport(c *dag.Catalog) (*dag.Pipeline, error) {
	inner, err := diamond(c)
	if err != nil {
		return nil, err
	}
	writer, err := c.Build("json_writer", "report")
	if err != nil {
		return nil, err
	}
	return dag.Combine("diamond_report", []*dag.Pipeline{inner, writer},
		dag.WithDependencies(dag.Wire(inner.Out("z"), writer.In(storage.PortValue))),
		dag.WithOutputs(dag.Expose("z", inner.Out("z"))),
	)
}

// registerPipelines registers the built-in pipelines and every configured
// YAML definition.
func registerPipelines(providers *session.Providers, catalog *dag.Catalog, cfg PipelinesConfig, log *logger.Logger, opts ...session.Option) error {
	builtins := []func(*dag.Catalog) (*dag.Pipeline, error){diamond, diamondReport}
	for _, build := range builtins {
		p, err := build(catalog)
		if err != nil {
			return err
		}
		if err := providers.Pipeline(p.Name(), p, opts...); err != nil {
			return err
		}
	}

	loader := dag.NewFileDefinitionLoader(cfg.Dirs...)
	for _, name := range cfg.Load {
		def, err := loader.Load(name)
		if err != nil {
			return err
		}
		p, err := dag.Resolve(def, catalog, loader)
		if err != nil {
			return fmt.Errorf("pipeline %s: %w", name, err)
		}
		if err := providers.Pipeline(def.Name, p, opts...); err != nil {
			return err
		}
		log.Info("Pipeline definition loaded", logger.Fields(
			logger.FieldPipeline, def.Name,
			"nodes", len(p.Nodes()),
		))
	}
	return nil
}
