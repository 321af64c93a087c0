package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fjod/go_pos/internal/backend"
	"github.com/fjod/go_pos/internal/connectivity"
	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/metrics"
	"github.com/fjod/go_pos/internal/queue"
	"github.com/fjod/go_pos/internal/storage"
	"golang.org/x/sync/singleflight"
)

// LastSyncKey holds the completion time of the last replay pass, unix ms.
const LastSyncKey = "last_sync_timestamp"

var ErrSyncUnavailable = errors.New("backend is not reachable, sync unavailable")

// Submitter sends one sale to the backend.
type Submitter interface {
	SubmitTransaction(ctx context.Context, tx domain.Transaction) (*domain.ServerTransaction, error)
}

// Controller replays the offline queue against the backend whenever the
// device comes back online or a sync is requested.
type Controller struct {
	queue     *queue.Queue
	submitter Submitter
	signal    connectivity.Signal
	store     storage.Store
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	interval  time.Duration
	group     singleflight.Group
}

type Option func(*Controller)

func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithInterval also runs a pass every d while online. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

func New(q *queue.Queue, submitter Submitter, signal connectivity.Signal, store storage.Store, opts ...Option) *Controller {
	c := &Controller{
		queue:     q,
		submitter: submitter,
		signal:    signal,
		store:     store,
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync runs one replay pass. Callers arriving while a pass is in flight wait
// for it and share its result. The pass ignores ctx cancellation; a caller
// that gives up gets ctx.Err() while the pass runs to completion.
func (c *Controller) Sync(ctx context.Context) (*Result, error) {
	if !c.signal.Online() {
		return nil, ErrSyncUnavailable
	}

	passCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("sync", func() (any, error) {
		return c.pass(passCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Result), nil
	}
}

func (c *Controller) pass(ctx context.Context) (*Result, error) {
	started := c.now()

	pending, err := c.queue.List(ctx)
	if err != nil {
		c.log.Error(ctx, "sync aborted: cannot read offline queue", err)
		return nil, err
	}

	result := &Result{}
	for _, p := range pending {
		entryCtx := c.log.WithLocalID(ctx, p.LocalID)
		result.Attempted++

		if _, err := c.submitter.SubmitTransaction(entryCtx, p.Transaction); err != nil {
			subErr := &SubmissionError{LocalID: p.LocalID, Err: err}
			result.Failures = append(result.Failures, subErr)
			c.log.Warn(entryCtx, "failed to submit queued transaction", err)
			continue
		}

		if err := c.queue.Remove(entryCtx, p.LocalID); err != nil {
			// accepted by the backend but still queued
			c.log.Error(entryCtx, "sync aborted: cannot remove submitted transaction", err)
			return nil, err
		}
		result.Succeeded++
	}
	result.Failed = len(result.Failures)

	result.CompletedAt = c.now()
	stamp := strconv.FormatInt(result.CompletedAt.UnixMilli(), 10)
	if err := c.store.Set(ctx, LastSyncKey, stamp); err != nil {
		c.log.Error(ctx, "cannot record last sync time", err)
		return nil, fmt.Errorf("%w: record last sync: %w", queue.ErrStorage, err)
	}

	outcome := result.Outcome()
	c.metrics.ObserveSync(string(outcome), result.Succeeded, result.Failed, result.CompletedAt.Sub(started))
	if n, err := c.queue.Len(ctx); err == nil {
		c.metrics.SetPending(n)
	}

	summary := c.log.WithFields(ctx, map[string]any{
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"outcome":   outcome,
	})
	c.log.Info(summary, "sync pass completed")
	return result, nil
}

// LastSync returns when the last replay pass completed. ok is false before
// the first pass.
func (c *Controller) LastSync(ctx context.Context) (time.Time, bool, error) {
	value, err := c.store.Get(ctx, LastSyncKey)
	if errors.Is(err, storage.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: read last sync: %w", queue.ErrStorage, err)
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: parse last sync %q: %w", queue.ErrStorage, value, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Run syncs on every offline to online transition, and on the interval if one
// is set, until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	updates, unsubscribe := c.signal.Subscribe()
	defer unsubscribe()

	var tick <-chan time.Time
	if c.interval > 0 {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-updates:
			if !ok {
				return
			}
			if online {
				c.trigger(ctx, "reconnected")
			}
		case <-tick:
			if c.signal.Online() {
				c.trigger(ctx, "interval")
			}
		}
	}
}

func (c *Controller) trigger(ctx context.Context, reason string) {
	ctx = c.log.WithField(ctx, "trigger", reason)
	if _, err := c.Sync(ctx); err != nil {
		if errors.Is(err, ErrSyncUnavailable) {
			c.log.Debug(ctx, "sync skipped, backend went offline")
			return
		}
		c.log.Error(ctx, "sync failed", err)
	}
}

type Outcome string

const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomePartial     Outcome = "partial"
	OutcomeUnreachable Outcome = "unreachable"
)

// Result summarizes one replay pass.
type Result struct {
	Attempted   int                `json:"attempted"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Failures    []*SubmissionError `json:"failures,omitempty"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Outcome is unreachable when nothing went through and every failure was the
// backend not answering.
func (r *Result) Outcome() Outcome {
	if r.Failed == 0 {
		return OutcomeSucceeded
	}
	if r.Succeeded > 0 {
		return OutcomePartial
	}
	for _, f := range r.Failures {
		if !errors.Is(f, backend.ErrUnreachable) {
			return OutcomePartial
		}
	}
	return OutcomeUnreachable
}

// SubmissionError is a queued transaction the backend did not accept. The
// entry stays queued.
type SubmissionError struct {
	LocalID string `json:"local_id"`
	Err     error  `json:"-"`
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.LocalID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func (e *SubmissionError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		LocalID string `json:"local_id"`
		Error   string `json:"error"`
	}{e.LocalID, e.Err.Error()})
}
