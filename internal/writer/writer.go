// Package writer publishes long-form content as an ordered, resumable chain
// of ledger transactions. Segments are submitted strictly in order because
// each segment's parent reference is the previous segment's transaction id,
// which is only known once that segment succeeds.
package writer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kasocial/internal/chunker"
	"kasocial/internal/ledger"
	"kasocial/internal/ledger/retry"
	"kasocial/internal/metrics"
	"kasocial/internal/models"
	"kasocial/internal/protocol"
	"kasocial/internal/storage"
)

// ErrNotResumable is returned when resume is called for an attempt that is
// running, completed or cancelled.
var ErrNotResumable = errors.New("writer: attempt is not resumable")

// ErrUnknownWrite is returned when no attempt exists for a fingerprint.
var ErrUnknownWrite = errors.New("writer: unknown write attempt")

// Config tunes the writer's pacing. The retry policy is shared data with
// the ledger fetch path.
type Config struct {
	Retry        retry.Config
	SegmentDelay time.Duration // fixed pause between successful segments
}

// DefaultConfig returns the writer's default pacing.
func DefaultConfig() Config {
	return Config{
		Retry:        retry.DefaultConfig(),
		SegmentDelay: 500 * time.Millisecond,
	}
}

// Writer runs segmented-write attempts. At most one attempt is active per
// logical story; duplicate creates coalesce onto the existing attempt.
type Writer struct {
	submitter ledger.Submitter
	splitter  *chunker.Splitter
	store     storage.ProgressStore
	cfg       Config
	events    *Broadcaster

	mu       sync.Mutex
	attempts map[string]*attempt // keyed by content fingerprint
}

// attempt is one in-memory write attempt.
type attempt struct {
	progress *models.WriteProgress
	pieces   []string
	blocks   []models.SegmentBlock
	cancel   context.CancelFunc
	running  bool
}

// New creates a writer. The store may be a MemoryStore when cross-restart
// resumability is not needed.
func New(submitter ledger.Submitter, splitter *chunker.Splitter, store storage.ProgressStore, cfg Config) *Writer {
	return &Writer{
		submitter: submitter,
		splitter:  splitter,
		store:     store,
		cfg:       cfg,
		events:    NewBroadcaster(),
		attempts:  make(map[string]*attempt),
	}
}

// encodeSegment builds the wire payload for one story segment.
func encodeSegment(content string, block models.SegmentBlock, parent string) ([]byte, error) {
	return protocol.Encode(protocol.EncodeParams{
		Kind:     models.KindStory,
		Content:  &content,
		Segment:  &block,
		ParentID: parent,
	})
}

// Events exposes the progress event stream.
func (w *Writer) Events() *Broadcaster {
	return w.events
}

// Fingerprint derives the stable identity of a logical story from its
// author and full text.
func Fingerprint(author, text string) string {
	sum := sha256.Sum256([]byte(author + "\n" + text))
	return hex.EncodeToString(sum[:])
}

// Publish starts (or coalesces onto) a segmented write for the given text.
// It returns the attempt's fingerprint immediately; publishing proceeds in
// the background. Completed and in-flight attempts for the same content are
// reused, never raced.
func (w *Writer) Publish(author, text string) (string, error) {
	fingerprint := Fingerprint(author, text)

	w.mu.Lock()
	defer w.mu.Unlock()

	if att, ok := w.attempts[fingerprint]; ok {
		switch {
		case att.running:
			return fingerprint, nil // coalesce onto the active attempt
		case att.progress.Status == models.WriteFailed && att.progress.Resumable:
			w.startLocked(att)
			return fingerprint, nil
		default:
			// Completed or cancelled; the record stands for inspection.
			return fingerprint, nil
		}
	}

	blocks, pieces, err := w.splitter.Split(text)
	if err != nil {
		return "", fmt.Errorf("split content: %w", err)
	}

	now := time.Now().UTC()
	att := &attempt{
		progress: &models.WriteProgress{
			Fingerprint:   fingerprint,
			Author:        author,
			TotalSegments: len(pieces),
			SegmentTxIDs:  []string{},
			Status:        models.WriteCreating,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		pieces: pieces,
		blocks: blocks,
	}
	w.attempts[fingerprint] = att
	w.startLocked(att)
	return fingerprint, nil
}

// Resume continues a failed attempt from its first unpublished segment,
// re-using the recorded transaction ids as chain anchors. Attempts unknown
// to this process are loaded from the progress store.
func (w *Writer) Resume(ctx context.Context, fingerprint string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	att, ok := w.attempts[fingerprint]
	if !ok {
		rec, err := w.store.Get(ctx, fingerprint)
		if err != nil {
			if errors.Is(err, storage.ErrNoProgress) {
				return ErrUnknownWrite
			}
			return fmt.Errorf("load write progress: %w", err)
		}
		att = attemptFromRecord(rec)
		w.attempts[fingerprint] = att
	}

	if att.running || att.progress.Status != models.WriteFailed || !att.progress.Resumable {
		return ErrNotResumable
	}

	w.startLocked(att)
	return nil
}

// Cancel terminates an attempt immediately. The ledger has no abort
// primitive: already-published segments stay published.
func (w *Writer) Cancel(ctx context.Context, fingerprint string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	att, ok := w.attempts[fingerprint]
	if !ok {
		return ErrUnknownWrite
	}

	if att.cancel != nil {
		att.cancel()
	}
	att.progress.Status = models.WriteCancelled
	att.progress.Resumable = false
	att.progress.UpdatedAt = time.Now().UTC()
	w.persist(ctx, att)
	w.events.Publish(Event{
		Fingerprint: fingerprint,
		Status:      models.WriteCancelled,
		Progress:    att.progress.Clone(),
	})
	return nil
}

// Progress returns a snapshot of an attempt's state.
func (w *Writer) Progress(ctx context.Context, fingerprint string) (*models.WriteProgress, error) {
	w.mu.Lock()
	if att, ok := w.attempts[fingerprint]; ok {
		snapshot := att.progress.Clone()
		w.mu.Unlock()
		return snapshot, nil
	}
	w.mu.Unlock()

	rec, err := w.store.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, storage.ErrNoProgress) {
			return nil, ErrUnknownWrite
		}
		return nil, err
	}
	return rec.Progress, nil
}

// startLocked flips the attempt to running and launches its worker.
// Caller holds w.mu.
func (w *Writer) startLocked(att *attempt) {
	runCtx, cancel := context.WithCancel(context.Background())
	att.cancel = cancel
	att.running = true
	if att.progress.Status == models.WriteFailed {
		metrics.ResumableWrites.Dec()
	}
	att.progress.Status = models.WriteCreating
	att.progress.FailedSegment = 0
	att.progress.Attempts = 0
	metrics.ActiveWrites.Inc()
	go w.run(runCtx, att)
}

// run submits segments in order until done, failed or cancelled.
func (w *Writer) run(ctx context.Context, att *attempt) {
	defer metrics.ActiveWrites.Dec()
	defer func() {
		w.mu.Lock()
		att.running = false
		w.mu.Unlock()
	}()

	p := att.progress
	slog.Info("Starting segmented write",
		"fingerprint", p.Fingerprint,
		"total_segments", p.TotalSegments,
		"completed", p.Completed,
	)

	for i := p.Completed; i < p.TotalSegments; i++ {
		parent := ""
		if i > 0 {
			parent = p.SegmentTxIDs[i-1]
		}

		txID, attempts, err := w.submitSegment(ctx, att, i, parent)
		if err != nil {
			w.markFailed(ctx, att, i+1, attempts, err)
			return
		}

		w.mu.Lock()
		p.SegmentTxIDs = append(p.SegmentTxIDs, txID)
		p.Completed = i + 1
		if i == 0 {
			p.StoryID = txID
		}
		p.Status = models.WriteCreating
		p.UpdatedAt = time.Now().UTC()
		w.persist(ctx, att)
		ev := Event{
			Fingerprint: p.Fingerprint,
			Status:      models.WriteCreating,
			Segment:     i + 1,
			TxID:        txID,
			Progress:    p.Clone(),
		}
		w.mu.Unlock()

		w.events.Publish(ev)

		// Fixed pacing between segments keeps the ledger from seeing a
		// burst of chained transactions.
		if i+1 < p.TotalSegments {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.SegmentDelay):
			}
		}
	}

	w.mu.Lock()
	att.running = false
	p.Status = models.WriteCompleted
	p.Resumable = false
	p.UpdatedAt = time.Now().UTC()
	w.persist(ctx, att)
	done := Event{
		Fingerprint: p.Fingerprint,
		Status:      models.WriteCompleted,
		TxID:        p.StoryID,
		Progress:    p.Clone(),
	}
	w.mu.Unlock()

	slog.Info("Segmented write completed",
		"fingerprint", done.Fingerprint,
		"story_id", done.TxID,
		"segments", done.Progress.TotalSegments,
	)
	w.events.Publish(done)
}

// submitSegment encodes and publishes one segment under the retry policy,
// returning the transaction id and the number of attempts consumed.
func (w *Writer) submitSegment(ctx context.Context, att *attempt, index int, parent string) (string, int, error) {
	content := att.pieces[index]
	block := att.blocks[index]

	payload, err := encodeSegment(content, block, parent)
	if err != nil {
		return "", 0, err
	}

	attempts := 0
	strategy := retry.NewExponentialBackoff(w.cfg.Retry).WithAttemptFunc(func(attempt int, attErr error) {
		attempts = attempt
		metrics.SubmitRetries.Inc()

		w.mu.Lock()
		att.progress.Status = models.WriteRetrying
		att.progress.Attempts = attempt
		att.progress.UpdatedAt = time.Now().UTC()
		ev := Event{
			Fingerprint: att.progress.Fingerprint,
			Status:      models.WriteRetrying,
			Segment:     index + 1,
			Error:       attErr.Error(),
			Progress:    att.progress.Clone(),
		}
		w.mu.Unlock()

		w.events.Publish(ev)
	})

	var txID string
	err = strategy.Execute(ctx, func(ctx context.Context) error {
		id, submitErr := w.submitter.Submit(ctx, payload)
		if submitErr != nil {
			return submitErr
		}
		txID = id
		return nil
	})
	if err != nil {
		return "", attempts, err
	}
	if attempts == 0 {
		attempts = 1
	}
	return txID, attempts, nil
}

// markFailed records a resumable failure (or terminal cancellation when the
// context was cancelled).
func (w *Writer) markFailed(ctx context.Context, att *attempt, segment, attempts int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := att.progress
	att.running = false
	p.UpdatedAt = time.Now().UTC()

	if p.Status == models.WriteCancelled {
		// Cancel already recorded the terminal state.
		return
	}
	if errors.Is(err, context.Canceled) {
		p.Status = models.WriteCancelled
		p.Resumable = false
		w.persist(context.Background(), att)
		return
	}

	p.Status = models.WriteFailed
	p.Resumable = true
	p.FailedSegment = segment
	p.Attempts = attempts
	metrics.ResumableWrites.Inc()
	w.persist(context.Background(), att)

	slog.Error("Segmented write failed, attempt is resumable",
		"fingerprint", p.Fingerprint,
		"failed_segment", segment,
		"attempts", attempts,
		"completed", p.Completed,
		"error", err,
	)
	w.events.Publish(Event{
		Fingerprint: p.Fingerprint,
		Status:      models.WriteFailed,
		Segment:     segment,
		Error:       err.Error(),
		Progress:    p.Clone(),
	})
}

// persist mirrors the attempt to the progress store. Store failures are
// logged, not fatal: the in-memory attempt remains authoritative.
func (w *Writer) persist(ctx context.Context, att *attempt) {
	rec := &storage.Record{Progress: att.progress.Clone(), Pieces: att.pieces}
	if err := w.store.Save(ctx, rec); err != nil {
		slog.Warn("Progress store save failed",
			"fingerprint", att.progress.Fingerprint,
			"error", err,
		)
	}
}

// attemptFromRecord rebuilds an in-memory attempt from a stored record.
func attemptFromRecord(rec *storage.Record) *attempt {
	blocks := make([]models.SegmentBlock, len(rec.Pieces))
	for i := range rec.Pieces {
		blocks[i] = models.SegmentBlock{
			Segment: i + 1,
			Total:   len(rec.Pieces),
			IsFinal: i == len(rec.Pieces)-1,
		}
	}
	return &attempt{
		progress: rec.Progress,
		pieces:   rec.Pieces,
		blocks:   blocks,
	}
}
