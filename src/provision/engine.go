// Package provision composes template materialization, linking,
// configuration rendering and ownership records into the end-to-end
// provisioning workflows.
//
// Every workflow is a short fixed sequence of steps. The first failing
// step ends the workflow and its Fail is returned; effects of earlier
// steps stay on disk. Re-running a workflow on the same instance heals a
// partially provisioned directory. There is no locking: callers serialize
// work per instance name.
package provision

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"instance-provision/src/events"
	"instance-provision/src/layout"
	"instance-provision/src/link"
	"instance-provision/src/materialize"
	"instance-provision/src/metrics"
	"instance-provision/src/ownership"
	"instance-provision/src/render"
	"instance-provision/src/resolve"
	"instance-provision/src/result"
	"instance-provision/src/util/progress"
)

var log = logrus.WithField("pkg", "provision")

// Failure reasons produced by the engine itself; steps delegated to other
// packages keep their own reasons.
const (
	ReasonInvalidSpec     = "invalid instance"
	ReasonRender          = "failed to generate config files"
	ReasonCreateDirectory = "failed to create server directory"
	ReasonWriteOwner      = "failed to write into server info file"
)

// DefaultRenderDirs are created inside every instance before rendering.
var DefaultRenderDirs = []string{"config", filepath.Join("plugins", "channel")}

// Config wires an Engine. Layout is required; everything else has a
// usable default.
type Config struct {
	Layout   layout.Layout
	Renderer render.Renderer
	Events   events.Publisher
	Metrics  *metrics.Metrics
	// Now stamps events and log directories; defaults to time.Now.
	Now func() time.Time
	// RenderDirs are instance-relative directories guaranteed to exist
	// before the renderer runs; defaults to DefaultRenderDirs.
	RenderDirs []string
	Progress   *progress.Tracker
}

// Engine is the provisioning composition root. Build one with New at
// startup and pass it to whatever needs it; it holds no mutable state.
type Engine struct {
	layout       layout.Layout
	materializer *materialize.Materializer
	linker       *link.Linker
	store        *ownership.Store
	renderer     render.Renderer
	events       events.Publisher
	metrics      *metrics.Metrics
	now          func() time.Time
	renderDirs   []string
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Layout.Root == "" {
		return nil, oops.In("provision").Errorf("engine needs a network layout")
	}
	if err := cfg.Layout.Names.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		layout:     cfg.Layout,
		renderer:   cfg.Renderer,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		renderDirs: cfg.RenderDirs,
	}
	if e.renderer == nil {
		e.renderer = render.Nop
	}
	if e.events == nil {
		e.events = events.Nop
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.renderDirs == nil {
		e.renderDirs = DefaultRenderDirs
	}
	e.materializer = materialize.New(cfg.Layout.ServerTemplates(), cfg.Layout.Names)
	e.materializer.Progress = cfg.Progress
	e.linker = link.New(cfg.Layout)
	e.linker.Now = e.now
	e.linker.Progress = cfg.Progress
	e.store = ownership.New(cfg.Layout)
	return e, nil
}

// Layout returns the network layout the engine works on.
func (e *Engine) Layout() layout.Layout { return e.layout }

// Store exposes the ownership store.
func (e *Engine) Store() *ownership.Store { return e.store }

// Linker exposes the asset linker.
func (e *Engine) Linker() *link.Linker { return e.linker }

// Materializer exposes the template materializer.
func (e *Engine) Materializer() *materialize.Materializer { return e.materializer }

// ResolveTemplate returns the server template layer an instance of
// (typeID, task) would be built from.
func (e *Engine) ResolveTemplate(typeID, task string) string {
	return resolve.Template(e.layout.ServerTemplates(), typeID, task, e.layout.Names.Default)
}

// step is one stage of a workflow.
type step struct {
	name string
	run  func() result.Result
}

// run executes steps in order and stops at the first Fail. On success the
// result carries successPath, or the last step's path when successPath is
// empty. The outcome is logged, counted and published.
func (e *Engine) run(ctx context.Context, operation string, ev events.Event, failKind, successPath string, steps []step) result.Result {
	start := e.now()
	fields := logrus.Fields{
		"at":        "provision." + operation,
		"operation": operation,
		"instance":  ev.Instance,
		"type":      ev.Type,
		"task":      ev.Task,
	}
	if ev.Owner != "" {
		fields["owner"] = ev.Owner
	}

	var res result.Result = result.Ok(successPath)
	for _, s := range steps {
		r := s.run()
		if !r.OK() {
			log.WithFields(fields).WithField("step", s.name).WithError(result.Err(r)).Error("provision_step_failed")
			res = r
			ev.Kind = failKind
			break
		}
		if successPath == "" {
			res = r
		}
		log.WithFields(fields).WithField("step", s.name).Debug("provision_step_done")
	}

	ev.OK = res.OK()
	ev.Reason = result.Reason(res)
	ev.Path = result.Path(res)
	ev.At = e.now()
	e.metrics.Observe(operation, res.OK(), e.now().Sub(start))
	e.publish(ctx, ev)
	if res.OK() {
		log.WithFields(fields).WithField("path", ev.Path).Info("provision_done")
	}
	return res
}

func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if err := e.events.Publish(ctx, ev); err != nil {
		log.WithFields(logrus.Fields{
			"at":    "provision.publish",
			"kind":  ev.Kind,
			"error": err.Error(),
		}).Warn("event_publish_failed")
	}
}

// mkdirStep creates dir, folding failures into reason.
func mkdirStep(dir, reason string) step {
	return step{name: "mkdir", run: func() result.Result {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result.Failf(reason, oops.In("provision").With("dir", dir).Wrapf(err, "create directory"))
		}
		return result.Ok(dir)
	}}
}
