package job

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/poller"
	"github.com/maauso/vidgen/internal/storage"
)

// Runner runs one generation. pipeline.Pipeline satisfies it.
type Runner interface {
	Generate(ctx context.Context, req generator.Request) (string, error)
	Task() (poller.Task, bool)
}

// RunnerFactory creates a Runner that reports every progress emission to
// onProgress.
type RunnerFactory func(onProgress func(generator.State)) Runner

// Broadcaster fans out record updates by topic. The topic is the record ID.
type Broadcaster interface {
	Publish(topic string, msg []byte)
}

// Notifier is told when a record reaches a terminal state.
type Notifier interface {
	Notify(ctx context.Context, g *Generation) error
}

// CreateInput contains the parameters of a new generation.
type CreateInput struct {
	// OwnerID identifies the caller; records are only visible to their owner.
	OwnerID string
	// Request is the generation request.
	Request generator.Request
	// TempFiles are local files backing Request.ImageURLs, removed once the
	// run finishes.
	TempFiles []string
}

// Service accepts generation requests and runs each one in the background.
type Service struct {
	repo        Repository
	router      *generator.Router
	newRunner   RunnerFactory
	temp        storage.TempStore
	broadcaster Broadcaster
	notifier    Notifier
	logger      *slog.Logger

	// baseCtx outlives the HTTP request that created a run; it is cancelled
	// only when Shutdown gives up waiting.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTempStore sets the store used to clean up CreateInput.TempFiles.
func WithTempStore(t storage.TempStore) ServiceOption {
	return func(s *Service) {
		s.temp = t
	}
}

// WithBroadcaster sets where record updates are published.
func WithBroadcaster(b Broadcaster) ServiceOption {
	return func(s *Service) {
		s.broadcaster = b
	}
}

// WithNotifier sets who is told about finished records.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(repo Repository, router *generator.Router, newRunner RunnerFactory, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:      repo,
		router:    router,
		newRunner: newRunner,
		logger:    slog.Default(),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request, persists an idle record and starts the run.
// Invalid requests are rejected with a fault.KindRequest error before
// anything is stored.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Generation, error) {
	if _, err := s.router.Route(in.Request); err != nil {
		s.cleanup(in.TempFiles)
		return nil, err
	}

	g := New(in.OwnerID, in.Request)

	s.logger.Info("creating generation",
		slog.String("generation_id", g.ID),
		slog.String("owner_id", g.OwnerID),
		slog.String("model", string(g.Model)),
		slog.Int("images", len(g.ImageURLs)),
	)

	if err := s.repo.Save(ctx, g); err != nil {
		s.logger.Error("failed to save generation",
			slog.String("generation_id", g.ID),
			slog.String("error", err.Error()),
		)
		s.cleanup(in.TempFiles)
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(s.baseCtx, g, in.TempFiles)
	}()

	return g.Clone(), nil
}

// Get returns ownerID's record id. Records of other owners are reported as
// ErrNotFound.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Generation, error) {
	g, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return g, nil
}

// List returns ownerID's records, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Generation, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Wait blocks until every started run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown waits for running generations. If ctx ends first, the runs are
// cancelled and Shutdown waits for them to record their failure.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, g *Generation, tempFiles []string) {
	defer s.cleanup(tempFiles)

	logger := s.logger.With(
		slog.String("generation_id", g.ID),
		slog.String("model", string(g.Model)),
	)

	var runner Runner
	runner = s.newRunner(func(state generator.State) {
		if state.IsTerminal() {
			return
		}
		if task, ok := runner.Task(); ok {
			g.SetTaskID(task.ID)
		}
		if err := g.TransitionTo(state); err != nil {
			logger.Warn("ignoring out-of-order progress",
				slog.String("from", string(g.GetState())),
				slog.String("to", string(state)),
			)
			return
		}
		s.persist(ctx, logger, g)
	})

	resultURL, err := runner.Generate(ctx, g.Request())
	if task, ok := runner.Task(); ok {
		g.SetTaskID(task.ID)
	}

	if err != nil {
		_ = g.Fail(err)
	} else {
		_ = g.Complete(resultURL)
	}
	// Terminal updates must land even when ctx was cancelled by Shutdown.
	final := context.WithoutCancel(ctx)
	s.persist(final, logger, g)

	snapshot := g.Clone()
	logger.Info("generation finished",
		slog.String("state", string(snapshot.State)),
		slog.String("task_id", snapshot.TaskID),
		slog.String("error_kind", string(snapshot.ErrorKind)),
	)

	if s.notifier != nil {
		if err := s.notifier.Notify(final, snapshot); err != nil {
			logger.Warn("failed to publish completion event", slog.String("error", err.Error()))
		}
	}
}

func (s *Service) persist(ctx context.Context, logger *slog.Logger, g *Generation) {
	snapshot := g.Clone()
	if err := s.repo.Save(ctx, snapshot); err != nil {
		logger.Error("failed to save generation",
			slog.String("state", string(snapshot.State)),
			slog.String("error", err.Error()),
		)
	}

	if s.broadcaster == nil {
		return
	}
	msg, err := json.Marshal(snapshot)
	if err != nil {
		logger.Error("failed to encode update", slog.String("error", err.Error()))
		return
	}
	s.broadcaster.Publish(snapshot.ID, msg)
}

func (s *Service) cleanup(paths []string) {
	if s.temp == nil || len(paths) == 0 {
		return
	}
	if err := s.temp.CleanupTemp(context.Background(), paths); err != nil {
		s.logger.Warn("failed to remove temp files", slog.String("error", err.Error()))
	}
}
