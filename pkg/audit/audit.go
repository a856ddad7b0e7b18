// Package audit is an async, buffered audit log writer: decisions are
// enqueued from the pipeline's hot path and flushed in the background to
// a per-day KV sorted set, adapted from the database-backed writer this
// engine's teacher used for its own audit trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cdmackie/automod-core/internal/kv"
)

// Entry is a single audited moderation decision.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Subreddit  string    `json:"subreddit"`
	ItemID     string    `json:"itemId"`
	UserID     string    `json:"userId"`
	ContentKind string   `json:"contentKind"`
	Layer      string    `json:"layer"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason"`
	RuleID     string    `json:"ruleId,omitempty"`
	DryRun     bool      `json:"dryRun"`
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
	retentionTTL  = 35 * 24 * time.Hour
)

// Writer is an async, buffered audit log writer. Entries are sent over an
// internal channel and flushed by a background goroutine.
type Writer struct {
	store   *kv.Store
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(store *kv.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:   store,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background flush loop and returns immediately; the
// loop runs until ctx is cancelled, and Close waits for its final flush.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an entry for async writing. It never blocks the caller; if
// the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"subreddit", entry.Subreddit, "item", entry.ItemID, "action", entry.Action)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries into their per-subreddit-per-day sorted
// set, scored by Unix timestamp so a range query can page by time window.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		encoded, err := json.Marshal(e)
		if err != nil {
			w.logger.Error("marshaling audit entry", "error", err)
			continue
		}

		key := dayKey(e.Subreddit, e.Timestamp)
		if err := w.store.ZAdd(ctx, key, float64(e.Timestamp.Unix()), string(encoded)); err != nil {
			w.logger.Error("writing audit entry", "error", err, "subreddit", e.Subreddit)
			continue
		}
		if err := w.store.Expire(ctx, key, retentionTTL); err != nil {
			w.logger.Warn("setting audit entry retention", "error", err, "key", key)
		}
	}
}

func dayKey(subreddit string, ts time.Time) string {
	return fmt.Sprintf("audit:%s:%s", subreddit, ts.UTC().Format("2006-01-02"))
}
