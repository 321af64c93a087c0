package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_pos/internal/domain"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/storage"
	"github.com/google/uuid"
)

// StorageKey is where the pending array lives in the durable store.
const StorageKey = "pending_transactions"

// ErrStorage wraps every read, write or decode failure of the durable store.
var ErrStorage = errors.New("queue storage failure")

// Queue is the durable list of sales completed while the backend could not be
// reached. The whole list is one JSON array under StorageKey, rewritten on
// every change.
type Queue struct {
	mu    sync.Mutex
	store storage.Store
	log   *logger.Logger
	now   func() time.Time
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithLogger(log *logger.Logger) Option {
	return func(q *Queue) { q.log = log }
}

func New(store storage.Store, opts ...Option) *Queue {
	q := &Queue{
		store: store,
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// entry keeps the stored bytes next to the decoded form, so rewriting the
// array never re-encodes entries it did not create.
type entry struct {
	raw     json.RawMessage
	pending domain.PendingTransaction
}

// Enqueue appends the transaction under a fresh local id and persists the
// queue before returning the id.
func (q *Queue) Enqueue(ctx context.Context, tx domain.Transaction) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return "", err
	}

	now := q.now()
	pending := domain.PendingTransaction{
		Transaction: tx,
		LocalID:     newLocalID(now),
		Timestamp:   now.UnixMilli(),
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		return "", fmt.Errorf("%w: encode transaction: %w", ErrStorage, err)
	}

	entries = append(entries, entry{raw: raw, pending: pending})
	if err := q.save(ctx, entries); err != nil {
		return "", err
	}

	q.log.Info(q.log.WithLocalID(ctx, pending.LocalID), "transaction queued for sync")
	return pending.LocalID, nil
}

// List returns the pending transactions in enqueue order.
func (q *Queue) List(ctx context.Context) ([]domain.PendingTransaction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]domain.PendingTransaction, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.pending)
	}
	return result, nil
}

// Remove deletes the entry with localID. An unknown id writes nothing.
func (q *Queue) Remove(ctx context.Context, localID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return err
	}

	kept := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.pending.LocalID != localID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return q.save(ctx, kept)
}

// Clear drops every pending transaction.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrStorage, err)
	}
	return nil
}

func (q *Queue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (q *Queue) load(ctx context.Context) ([]entry, error) {
	data, err := q.store.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrStorage, err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(data), &raws); err != nil {
		return nil, fmt.Errorf("%w: decode queue: %w", ErrStorage, err)
	}

	entries := make([]entry, 0, len(raws))
	for i, raw := range raws {
		var pending domain.PendingTransaction
		if err := json.Unmarshal(raw, &pending); err != nil {
			return nil, fmt.Errorf("%w: decode entry %d: %w", ErrStorage, i, err)
		}
		entries = append(entries, entry{raw: raw, pending: pending})
	}
	return entries, nil
}

func (q *Queue) save(ctx context.Context, entries []entry) error {
	raws := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		raws = append(raws, e.raw)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(raws); err != nil {
		return fmt.Errorf("%w: encode queue: %w", ErrStorage, err)
	}
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if err := q.store.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("%w: write: %w", ErrStorage, err)
	}
	return nil
}

func newLocalID(now time.Time) string {
	return fmt.Sprintf("local_%d_%s", now.UnixMilli(), uuid.NewString())
}
