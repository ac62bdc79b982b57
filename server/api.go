package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/pipekit/dag"
	apperrors "github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/server/endpoint"
	"github.com/kbukum/pipekit/server/middleware"
	"github.com/kbukum/pipekit/session"
	"github.com/kbukum/pipekit/storage"
	"github.com/kbukum/pipekit/validation"
)

// API serves the pipeline and session routes over a provider registry.
type API struct {
	providers   *session.Providers
	tracker     *Tracker
	store       storage.Storage
	sessionOpts []session.Option
	runTimeout  time.Duration
	log         *logger.Logger

	runs sync.WaitGroup
}

// APIOption configures an API.
type APIOption func(*API)

// WithStorage persists every finished session as sessions/{id}.json.
func WithStorage(s storage.Storage) APIOption {
	return func(a *API) { a.store = s }
}

// WithSessionOptions applies opts to every session the API creates, before
// the options derived from the request.
func WithSessionOptions(opts ...session.Option) APIOption {
	return func(a *API) { a.sessionOpts = append(a.sessionOpts, opts...) }
}

// WithRunTimeout bounds each session run. Zero means no bound.
func WithRunTimeout(d time.Duration) APIOption {
	return func(a *API) { a.runTimeout = d }
}

// WithMaxSessions sets how many sessions are kept for inspection.
func WithMaxSessions(n int) APIOption {
	return func(a *API) { a.tracker = NewTracker(n) }
}

// WithLogger sets the API logger.
func WithLogger(l *logger.Logger) APIOption {
	return func(a *API) { a.log = l }
}

// NewAPI creates the API over providers.
func NewAPI(providers *session.Providers, opts ...APIOption) *API {
	a := &API{
		providers: providers,
		tracker:   NewTracker(1000),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithComponent("api")
	return a
}

// Register mounts the API routes under /api/v1. Session starts are limited
// to runsPerMinute per client when positive.
func (a *API) Register(r gin.IRouter, runsPerMinute int) {
	v1 := r.Group("/api/v1")
	v1.GET("/pipelines", a.listPipelines)
	v1.GET("/pipelines/:name", a.getPipeline)
	v1.POST("/pipelines/:name/sessions", middleware.RateLimit(runsPerMinute), a.runSession)
	v1.GET("/sessions", a.listSessions)
	v1.GET("/sessions/:id", a.getSession)
}

// Wait blocks until every background run has finished.
func (a *API) Wait() {
	a.runs.Wait()
}

// HealthCheck reports the provider registry and, when configured, the
// storage backend.
func (a *API) HealthCheck(ctx context.Context) []endpoint.Check {
	checks := []endpoint.Check{{Name: "pipelines", Status: endpoint.StatusHealthy}}
	if len(a.providers.Names()) == 0 {
		checks[0] = endpoint.Check{Name: "pipelines", Status: endpoint.StatusDegraded, Message: "no pipelines registered"}
	}
	if a.store != nil {
		check := endpoint.Check{Name: "storage", Status: endpoint.StatusHealthy}
		if _, err := a.store.Exists(ctx, "sessions/.health"); err != nil {
			check.Status = endpoint.StatusUnhealthy
			check.Message = err.Error()
		}
		checks = append(checks, check)
	}
	return checks
}

// ParamInfo describes a pipeline input or output.
type ParamInfo struct {
	Name     string   `json:"name"`
	Required bool     `json:"required,omitempty"`
	Bindings []string `json:"bindings"`
}

// PipelineInfo describes a registered pipeline.
type PipelineInfo struct {
	Name    string      `json:"name"`
	Nodes   []string    `json:"nodes,omitempty"`
	Levels  [][]string  `json:"levels,omitempty"`
	Inputs  []ParamInfo `json:"inputs,omitempty"`
	Outputs []ParamInfo `json:"outputs,omitempty"`
}

func (a *API) describe(name string, withLevels bool) (PipelineInfo, error) {
	info := PipelineInfo{Name: name}
	p, ok := a.providers.Lookup(name)
	if !ok {
		return info, nil
	}
	for _, n := range p.Nodes() {
		info.Nodes = append(info.Nodes, n.Key())
	}
	info.Inputs = paramInfos(p.Inputs(), true)
	info.Outputs = paramInfos(p.Outputs(), false)
	if withLevels {
		levels, err := p.Levels()
		if err != nil {
			return info, err
		}
		for _, level := range levels {
			keys := make([]string, len(level))
			for i, n := range level {
				keys[i] = n.Key()
			}
			info.Levels = append(info.Levels, keys)
		}
	}
	return info, nil
}

func paramInfos(ps dag.Params, inputs bool) []ParamInfo {
	out := make([]ParamInfo, 0, ps.Len())
	for _, p := range ps.All() {
		info := ParamInfo{Name: p.Name, Required: inputs && p.Required()}
		for _, b := range p.Bindings {
			info.Bindings = append(info.Bindings, b.Node.Key()+"."+b.Port)
		}
		out = append(out, info)
	}
	return out
}

func (a *API) listPipelines(c *gin.Context) {
	names := a.providers.Names()
	infos := make([]PipelineInfo, 0, len(names))
	for _, name := range names {
		info, err := a.describe(name, false)
		if err != nil {
			RespondWithError(c, err)
			return
		}
		infos = append(infos, info)
	}
	RespondList(c, infos)
}

func (a *API) getPipeline(c *gin.Context) {
	name := c.Param("name")
	if !slices.Contains(a.providers.Names(), name) {
		RespondWithError(c, apperrors.ProviderNotFound(name, a.providers.Names()))
		return
	}
	info, err := a.describe(name, true)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, info)
}

// RunRequest is the body of a session start.
type RunRequest struct {
	Inputs        map[string]any `json:"inputs"`
	FailurePolicy string         `json:"failure_policy" binding:"omitempty,oneof=fail_fast continue"`
	MaxParallel   int            `json:"max_parallel" binding:"omitempty,gte=1"`
	// Wait runs the session within the request and answers with its result.
	Wait bool `json:"wait"`
}

func (r RunRequest) options() []session.Option {
	var opts []session.Option
	if len(r.Inputs) > 0 {
		opts = append(opts, session.WithInputs(r.Inputs))
	}
	if r.FailurePolicy != "" {
		opts = append(opts, session.WithFailurePolicy(session.FailurePolicy(r.FailurePolicy)))
	}
	if r.MaxParallel > 0 {
		opts = append(opts, session.WithMaxParallel(r.MaxParallel))
	}
	return opts
}

func (a *API) runSession(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		RespondWithError(c, apperrors.Validation(err.Error()))
		return
	}
	name := c.Param("name")
	opts := append(append([]session.Option(nil), a.sessionOpts...), req.options()...)
	s, err := a.providers.CreateSession(name, opts...)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	ts := a.tracker.add(s)
	a.log.Info("session created", logger.Fields(logger.FieldPipeline, name, logger.FieldSessionID, s.ID().String()))

	if req.Wait {
		a.run(c.Request.Context(), ts)
		RespondOK(c, ts.view())
		return
	}

	a.runs.Add(1)
	go func() {
		defer a.runs.Done()
		a.run(context.Background(), ts)
	}()
	c.Header("Location", "/api/v1/sessions/"+s.ID().String())
	RespondAccepted(c, ts.view())
}

func (a *API) run(ctx context.Context, ts *trackedSession) {
	if a.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.runTimeout)
		defer cancel()
	}
	ts.finish(ts.session.Run(ctx))
	a.persist(context.WithoutCancel(ctx), ts)
}

func (a *API) persist(ctx context.Context, ts *trackedSession) {
	if a.store == nil {
		return
	}
	path := "sessions/" + ts.session.ID().String() + ".json"
	data, err := json.Marshal(ts.view())
	if err == nil {
		err = a.store.Write(ctx, path, data)
	}
	if err != nil {
		a.log.WithError(err).Warn("session not persisted", logger.Fields(logger.FieldSessionID, ts.session.ID().String(), "path", path))
	}
}

func (a *API) listSessions(c *gin.Context) {
	tracked := a.tracker.list()
	views := make([]SessionView, len(tracked))
	for i, ts := range tracked {
		views[i] = ts.view()
	}
	RespondList(c, views)
}

func (a *API) getSession(c *gin.Context) {
	id, err := validation.ParseUUID("id", c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	ts, ok := a.tracker.get(id)
	if !ok {
		RespondWithError(c, apperrors.NotFound("session", id.String()))
		return
	}
	RespondOK(c, ts.view())
}
