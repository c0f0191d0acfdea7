// Package pipeline is the generation entry point. A Pipeline runs one
// request at a time through routing, upload, submission and polling, and
// exposes the canonical progress of the current call.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/kie"
	"github.com/maauso/vidgen/internal/poller"
)

const opGenerate = "pipeline.generate"

// ErrBusy is returned when Generate or Reset is called while a generation
// is in flight on the same Pipeline.
var ErrBusy = errors.New("pipeline: generation already in progress")

// Submitter submits provider payloads. kie.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, payload kie.Payload) (string, error)
}

// Resolver turns image references into public URLs.
type Resolver interface {
	ResolveAll(ctx context.Context, uris []string) ([]string, error)
}

// Pipeline chains Router, upload, Submitter and Poller. Independent
// Pipelines share nothing but the collaborators passed to New.
type Pipeline struct {
	router    *generator.Router
	submitter Submitter
	poller    *poller.Poller
	resolver  Resolver
	logger    *slog.Logger
	observers []func(generator.State)

	mu       sync.Mutex
	running  bool
	progress generator.State
	err      error
	task     *poller.Task
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver sets the image resolver used when a request carries local images.
func WithResolver(r Resolver) Option {
	return func(p *Pipeline) {
		p.resolver = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// OnProgress subscribes fn to every progress emission. Emissions happen on
// the goroutine running Generate, in order.
func OnProgress(fn func(generator.State)) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.observers = append(p.observers, fn)
		}
	}
}

// New creates a Pipeline in the idle state.
func New(router *generator.Router, submitter Submitter, pl *poller.Poller, opts ...Option) *Pipeline {
	p := &Pipeline{
		router:    router,
		submitter: submitter,
		poller:    pl,
		logger:    slog.Default(),
		progress:  generator.StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate runs req to completion and returns the result URL. Any stage
// failure stops the remaining stages; the returned error keeps its
// fault.Kind and Progress becomes generator.StateFail.
//
// Cancelling ctx abandons the call at the next suspension point.
func (p *Pipeline) Generate(ctx context.Context, req generator.Request) (string, error) {
	if err := p.begin(); err != nil {
		return "", err
	}
	defer p.end()

	resultURL, err := p.run(ctx, req)
	if err != nil {
		p.fail(err)
		p.logger.Error("generation failed",
			slog.String("model", string(req.Model)),
			slog.String("kind", string(fault.KindOf(err))),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return resultURL, nil
}

func (p *Pipeline) run(ctx context.Context, req generator.Request) (string, error) {
	p.emit(generator.StateSubmitting)

	plan, err := p.router.Route(req)
	if err != nil {
		return "", err
	}

	images := plan.Request.ImageURLs
	if plan.NeedsUpload() {
		if p.resolver == nil {
			return "", fault.New(fault.KindUpload, opGenerate, "local images supplied but no uploader is configured")
		}
		if images, err = p.resolver.ResolveAll(ctx, images); err != nil {
			return "", err
		}
	}

	payload, err := plan.Payload(images)
	if err != nil {
		return "", err
	}

	taskID, err := p.submitter.Submit(ctx, payload)
	if err != nil {
		return "", err
	}

	task := poller.NewTask(taskID, req.Model)
	p.logger.Info("generation submitted",
		slog.String("task_id", taskID),
		slog.String("model", string(req.Model)),
		slog.String("family", string(plan.Family)),
	)
	p.record(task)
	p.emit(task.State)

	err = p.poller.Poll(ctx, task, plan.API, plan.Normalize, func(s generator.State) {
		p.record(task)
		p.emit(s)
	})
	p.record(task)
	if err != nil {
		return "", err
	}

	p.logger.Info("generation succeeded",
		slog.String("task_id", taskID),
		slog.String("result_url", task.ResultURL),
	)
	return task.ResultURL, nil
}

// Progress returns the current canonical state, or idle before any call.
func (p *Pipeline) Progress() generator.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Err returns the error of the last failed call, or nil.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Task returns a snapshot of the current call's provider task, if one was
// created.
func (p *Pipeline) Task() (poller.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.task == nil {
		return poller.Task{}, false
	}
	return *p.task, true
}

// Reset returns an idle Pipeline to idle, clearing the last result and error.
// It does not cancel an in-flight call; it returns ErrBusy instead.
func (p *Pipeline) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrBusy
	}
	p.progress = generator.StateIdle
	p.err = nil
	p.task = nil
	return nil
}

func (p *Pipeline) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrBusy
	}
	p.running = true
	p.err = nil
	p.task = nil
	return nil
}

func (p *Pipeline) end() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Pipeline) record(task *poller.Task) {
	snapshot := task.Snapshot()
	p.mu.Lock()
	p.task = &snapshot
	p.mu.Unlock()
}

func (p *Pipeline) emit(s generator.State) {
	p.mu.Lock()
	p.progress = s
	p.mu.Unlock()

	for _, fn := range p.observers {
		fn(s)
	}
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	p.err = err
	already := p.progress == generator.StateFail
	p.mu.Unlock()

	if !already {
		p.emit(generator.StateFail)
	}
}
