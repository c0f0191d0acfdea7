// Package poller drives a submitted provider task to a terminal state. It
// fetches one raw status record per cycle, normalizes it to the canonical
// state machine and reports every observation to the caller.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maauso/vidgen/internal/fault"
	"github.com/maauso/vidgen/internal/generator"
	"github.com/maauso/vidgen/internal/kie"
)

const opPoll = "poller.poll"

// Default polling cadence: 60 fetches 5 seconds apart.
const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

// StatusFetcher fetches raw status records. kie.Client satisfies it.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, api kie.API, taskID string) (kie.StatusRecord, error)
}

// StateFunc is called with the canonical state after every successful fetch,
// whether or not the state changed.
type StateFunc func(generator.State)

// Poller polls provider tasks. It holds no per-task state and may be shared.
type Poller struct {
	fetcher StatusFetcher
	policy  Policy
	logger  *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between fetches.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.policy.Delay = d
	}
}

// WithMaxAttempts sets the fetch budget.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.policy.MaxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Poller.
func New(fetcher StatusFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher: fetcher,
		policy:  Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultInterval},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the poller's retry policy.
func (p *Poller) Policy() Policy {
	return p.policy
}

// Poll drives task until it is terminal, mutating it in place.
//
// It returns nil when the task succeeds. A provider-reported failure is a
// fault.KindProvider error carrying the provider's message. Running out of
// attempts is a fault.KindTimeout error and leaves the task in its last
// observed state. A record the normalizer rejects, such as a success without
// a usable result URL, is a fault.KindProtocol error and fails the task.
// Fetch errors never fail the task.
func (p *Poller) Poll(ctx context.Context, task *Task, api kie.API, normalize generator.Normalizer, onState StateFunc) error {
	if task.IsTerminal() {
		return terminalError(task)
	}

	logger := p.logger.With(
		slog.String("task_id", task.ID),
		slog.String("model", string(task.Model)),
		slog.String("api", string(api)),
	)

	var normalizeErr error
	err := Retry(ctx, p.policy, func(ctx context.Context, attempt int) (bool, error) {
		rec, err := p.fetcher.FetchStatus(ctx, api, task.ID)
		if err != nil {
			if fault.Retryable(err) {
				logger.Warn("status fetch failed",
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)
			}
			return false, err
		}

		obs, err := normalize(rec)
		if err != nil {
			normalizeErr = err
			return false, err
		}

		task.observe(obs)
		logger.Debug("task polled",
			slog.Int("attempt", attempt),
			slog.String("state", string(task.State)),
		)
		if onState != nil {
			onState(task.State)
		}
		return task.IsTerminal(), nil
	})

	switch {
	case err == nil:
		return terminalError(task)
	case errors.Is(err, ErrAttemptsExhausted):
		logger.Error("poll budget exhausted",
			slog.Int("attempts", p.policy.MaxAttempts),
			slog.String("state", string(task.State)),
		)
		return &fault.Error{
			Kind:    fault.KindTimeout,
			Op:      opPoll,
			Message: "task did not finish within the polling budget",
			Err:     err,
		}
	case normalizeErr != nil && errors.Is(err, normalizeErr):
		task.fail(fault.Message(err))
		logger.Error("task result unusable", slog.String("error", err.Error()))
		return err
	default:
		logger.Error("polling aborted", slog.String("error", err.Error()))
		return err
	}
}

func terminalError(task *Task) error {
	if task.State == generator.StateFail {
		return fault.New(fault.KindProvider, opPoll, task.FailureReason)
	}
	return nil
}
