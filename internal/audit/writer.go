package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/partner-portal/backend/internal/models"
	"go.uber.org/zap"
)

// ErrWriterClosed is returned by Enqueue once the writer has stopped.
var ErrWriterClosed = errors.New("audit: writer closed")

// EntryStore is the slice of the persistent store the writer needs. The
// insert must be duplicate-tolerant: a retried batch may contain entries
// that already landed.
type EntryStore interface {
	BulkInsert(ctx context.Context, entries []models.LogEntry) error
}

type writerState int

const (
	stateRunning writerState = iota
	stateDraining
	stateStopped
)

const drainMaxAttempts = 5

// Writer buffers classified entries and flushes them to the store in
// batches, on a size threshold or a recurring timer. Every accepted entry
// is also emitted on a bounded channel for live consumers; emission is
// best-effort and decoupled from persistence.
//
// Lifecycle: RUNNING -> DRAINING (Close called, final flush in progress)
// -> STOPPED. While draining, Enqueue writes entries straight through to
// the store so nothing is silently lost during shutdown.
type Writer struct {
	store         EntryStore
	log           *zap.Logger
	batchSize     int
	flushInterval time.Duration

	mu    sync.Mutex // guards queue and state
	queue []models.LogEntry
	state writerState

	flushMu sync.Mutex // serializes flushes; never held together with mu

	emit    chan models.LogEntry
	dropped atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

func NewWriter(store EntryStore, batchSize int, flushInterval time.Duration, emitBuffer int, log *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	if emitBuffer <= 0 {
		emitBuffer = 256
	}
	return &Writer{
		store:         store,
		log:           log,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		emit:          make(chan models.LogEntry, emitBuffer),
		stop:          make(chan struct{}),
	}
}

// Events is the live stream of accepted entries. Delivery is at-most-once:
// entries emitted while no consumer keeps up are dropped, not replayed.
func (w *Writer) Events() <-chan models.LogEntry {
	return w.emit
}

// Dropped reports how many entries were discarded from the live stream
// because the emit buffer was full. Persistence is unaffected.
func (w *Writer) Dropped() int64 {
	return w.dropped.Load()
}

// Start launches the recurring flush timer.
func (w *Writer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.Flush(ctx); err != nil {
					w.log.Error("audit flush failed, batch requeued", zap.Error(err))
				}
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Enqueue accepts one entry into the pipeline. In the running state it
// appends to the queue, emits on the live stream, and flushes
// synchronously when the queue reaches the batch size. While draining it
// bypasses the queue and persists the entry immediately. After stop it
// returns ErrWriterClosed.
//
// Flush failures are not surfaced here: the failed batch is requeued and
// retried on the next timer tick.
func (w *Writer) Enqueue(entry models.LogEntry) error {
	w.mu.Lock()
	switch w.state {
	case stateRunning:
		w.queue = append(w.queue, entry)
		full := len(w.queue) >= w.batchSize
		w.mu.Unlock()

		w.emitEntry(entry)
		if full {
			if err := w.Flush(context.Background()); err != nil {
				w.log.Error("audit flush failed, batch requeued", zap.Error(err))
			}
		}
		return nil

	case stateDraining:
		w.mu.Unlock()
		w.emitEntry(entry)
		entry.CreatedAt = time.Now().UTC()
		return w.store.BulkInsert(context.Background(), []models.LogEntry{entry})

	default:
		w.mu.Unlock()
		return ErrWriterClosed
	}
}

func (w *Writer) emitEntry(entry models.LogEntry) {
	select {
	case w.emit <- entry:
	default:
		w.dropped.Add(1)
	}
}

// Flush swaps out the current queue and performs one bulk insert. Exactly
// one flush runs at a time; the queue lock is released before the store
// round-trip so producers are never blocked on network I/O. On failure the
// batch is prepended back in original order for a later retry.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return nil
	}
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	// CreatedAt is assigned at persistence time; one timestamp per batch
	// keeps values non-decreasing within the insert.
	now := time.Now().UTC()
	for i := range batch {
		batch[i].CreatedAt = now
	}

	if err := w.store.BulkInsert(ctx, batch); err != nil {
		w.mu.Lock()
		w.queue = append(batch, w.queue...)
		w.mu.Unlock()
		return err
	}
	return nil
}

// Close drains the writer: stops the timer, transitions to DRAINING,
// retries the final flush under the given context (bounded attempts with
// backoff), then transitions to STOPPED. The context bounds the whole
// drain so shutdown cannot hang on an unreachable store.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.state != stateRunning {
		w.mu.Unlock()
		return nil
	}
	w.state = stateDraining
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stop) })

	var err error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < drainMaxAttempts; attempt++ {
		if err = w.Flush(ctx); err == nil {
			break
		}
		w.log.Warn("drain flush failed", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = drainMaxAttempts
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	w.mu.Lock()
	w.state = stateStopped
	w.mu.Unlock()

	if dropped := w.Dropped(); dropped > 0 {
		w.log.Info("live stream dropped entries during lifetime", zap.Int64("dropped", dropped))
	}
	return err
}
