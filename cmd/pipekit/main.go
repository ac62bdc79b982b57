// Command pipekit serves and runs pipelines.
//
//	pipekit [-config file] [-env file] serve
//	pipekit [-config file] run [-input name=value]... <pipeline>
//	pipekit [-config file] list
//	pipekit version
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kbukum/pipekit/bootstrap"
	"github.com/kbukum/pipekit/config"
	"github.com/kbukum/pipekit/di"
	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/session"
	"github.com/kbukum/pipekit/version"
)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pipekit:", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configFile := fs.String("config", "", "config file (default: searched in ./cmd/pipekit, ./config and .)")
	envFile := fs.String("env", "", ".env file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd, rest := "serve", []string(nil)
	if fs.NArg() > 0 {
		cmd, rest = fs.Arg(0), fs.Args()[1:]
	}
	if cmd == "version" {
		return writeJSON(out, version.Get())
	}

	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg,
		config.WithConfigFile(*configFile),
		config.WithEnvFile(*envFile),
		config.WithEnvPrefix(serviceName),
	); err != nil {
		return err
	}
	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	app.OnConfigure(configure)

	switch cmd {
	case "serve":
		app.OnConfigure(configureServer)
		return app.Run(ctx)
	case "list":
		return app.RunTask(ctx, func(context.Context) error {
			return list(app, out)
		})
	case "run":
		req, err := parseRun(rest)
		if err != nil {
			return err
		}
		return app.RunTask(ctx, func(ctx context.Context) error {
			return runPipeline(ctx, app, req, out)
		})
	default:
		return fmt.Errorf("unknown command %q (want serve, run, list or version)", cmd)
	}
}

// inputFlag collects repeated -input name=value flags. Values are decoded
// as JSON and fall back to plain strings.
type inputFlag map[string]any

func (f inputFlag) String() string { return fmt.Sprint(map[string]any(f)) }

func (f inputFlag) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return errors.InvalidInput("input", fmt.Sprintf("%q is not name=value", s))
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}
	f[name] = value
	return nil
}

type runRequest struct {
	pipeline string
	inputs   map[string]any
	policy   string
	parallel int
}

func parseRun(args []string) (runRequest, error) {
	inputs := inputFlag{}
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.Var(inputs, "input", "pipeline input as name=value (repeatable)")
	policy := fs.String("policy", "", "failure policy: fail_fast or continue")
	parallel := fs.Int("parallel", 0, "max parallel nodes per frame")
	if err := fs.Parse(args); err != nil {
		return runRequest{}, err
	}
	switch session.FailurePolicy(*policy) {
	case "", session.FailFast, session.ContinueOnFailure:
	default:
		return runRequest{}, errors.InvalidInput("policy", fmt.Sprintf("unknown failure policy %q", *policy))
	}
	if fs.NArg() != 1 {
		return runRequest{}, errors.InvalidInput("pipeline", "run takes exactly one pipeline name")
	}
	return runRequest{pipeline: fs.Arg(0), inputs: inputs, policy: *policy, parallel: *parallel}, nil
}

// runResult is what the run command prints.
type runResult struct {
	session.Report
	Outputs map[string]any `json:"outputs"`
}

func runPipeline(ctx context.Context, app *App, req runRequest, out io.Writer) error {
	providers, err := di.Get(app.Container, providersID)
	if err != nil {
		return err
	}
	opts := []session.Option{session.WithInputs(req.inputs)}
	if req.policy != "" {
		opts = append(opts, session.WithFailurePolicy(session.FailurePolicy(req.policy)))
	}
	if req.parallel > 0 {
		opts = append(opts, session.WithMaxParallel(req.parallel))
	}
	s, err := providers.CreateSession(req.pipeline, opts...)
	if err != nil {
		return err
	}
	runErr := s.Run(ctx)
	if err := writeJSON(out, runResult{Report: s.Report(), Outputs: s.Outputs()}); err != nil {
		return err
	}
	return runErr
}

func list(app *App, out io.Writer) error {
	providers, err := di.Get(app.Container, providersID)
	if err != nil {
		return err
	}
	for _, name := range providers.Names() {
		p, ok := providers.Lookup(name)
		if !ok {
			fmt.Fprintln(out, name)
			continue
		}
		fmt.Fprintf(out, "%s\tinputs=%v outputs=%v\n", name, p.Inputs(), p.Outputs())
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
