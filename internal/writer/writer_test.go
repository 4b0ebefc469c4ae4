package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"kasocial/internal/chunker"
	"kasocial/internal/ledger/retry"
	"kasocial/internal/models"
	"kasocial/internal/storage"
)

// fakeSubmitter records every submission and fails on demand.
type fakeSubmitter struct {
	mu         sync.Mutex
	perSegment map[int]int    // submissions per segment number
	parents    map[int]string // last parent reference per segment number
	failing    map[int]bool   // segments that always fail
	transient  map[int]int    // failures to serve before success
	gate       chan struct{}  // when set, Submit blocks until released
	next       int
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		perSegment: map[int]int{},
		parents:    map[int]string{},
		failing:    map[int]bool{},
		transient:  map[int]int{},
	}
}

func (f *fakeSubmitter) Submit(ctx context.Context, payload []byte) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	var p models.ContentPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", err
	}
	seg := p.Segment.Segment

	f.mu.Lock()
	defer f.mu.Unlock()
	f.perSegment[seg]++
	f.parents[seg] = p.ParentID

	if f.transient[seg] > 0 {
		f.transient[seg]--
		return "", retry.Transient(errors.New("service unavailable"))
	}
	if f.failing[seg] {
		return "", retry.Transient(errors.New("internal server error"))
	}

	f.next++
	return fmt.Sprintf("%064x", f.next), nil
}

func (f *fakeSubmitter) submissions(seg int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perSegment[seg]
}

func (f *fakeSubmitter) parentOf(seg int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parents[seg]
}

func (f *fakeSubmitter) setFailing(seg int, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[seg] = fail
}

func testConfig() Config {
	return Config{
		Retry: retry.Config{
			Enabled:      true,
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
		SegmentDelay: time.Millisecond,
	}
}

// testSplitter cuts small segments so tests stay fast.
func testSplitter() *chunker.Splitter {
	return &chunker.Splitter{MinSize: 5, MaxSize: 30, MaxSegments: 50}
}

// storyText produces word-broken text that splits into multiple segments.
func storyText(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func waitStatus(t *testing.T, ch <-chan Event, want models.WriteStatus) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Status == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for status %s", want)
		}
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("kaspa:alice", "some story text")
	b := Fingerprint("kaspa:alice", "some story text")
	if a != b {
		t.Error("Expected identical fingerprints for identical input")
	}
	if Fingerprint("kaspa:bob", "some story text") == a {
		t.Error("Expected author to change the fingerprint")
	}
	if Fingerprint("kaspa:alice", "other text") == a {
		t.Error("Expected text to change the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64-char fingerprint, got: %d", len(a))
	}
}

func TestPublish_AllSegmentsInOrder(t *testing.T) {
	sub := newFakeSubmitter()
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	events, done := w.Events().Subscribe()
	defer done()

	fp, err := w.Publish("kaspa:alice", storyText(20))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitStatus(t, events, models.WriteCompleted)

	p, err := w.Progress(context.Background(), fp)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Status != models.WriteCompleted {
		t.Errorf("Expected completed, got: %s", p.Status)
	}
	if p.Completed != p.TotalSegments || len(p.SegmentTxIDs) != p.TotalSegments {
		t.Errorf("Expected all segments recorded, got: %+v", p)
	}
	if p.StoryID != p.SegmentTxIDs[0] {
		t.Errorf("Expected story id to be the first segment's tx, got: %s", p.StoryID)
	}

	// Each segment's parent is the previous segment's transaction id
	if got := sub.parentOf(1); got != "" {
		t.Errorf("Expected first segment to have no parent, got: %q", got)
	}
	for seg := 2; seg <= p.TotalSegments; seg++ {
		if got := sub.parentOf(seg); got != p.SegmentTxIDs[seg-2] {
			t.Errorf("Segment %d parent = %q, want %q", seg, got, p.SegmentTxIDs[seg-2])
		}
	}
}

func TestProgress_SnapshotDuringActiveWrite(t *testing.T) {
	sub := newFakeSubmitter()
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	events, done := w.Events().Subscribe()
	defer done()

	fp, err := w.Publish("kaspa:alice", storyText(60))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Poll concurrently with the submitting goroutine. Every snapshot must
	// be internally consistent: the tx id list matches the completed count.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p, err := w.Progress(context.Background(), fp)
				if err != nil {
					t.Errorf("Progress failed mid-write: %v", err)
					return
				}
				if len(p.SegmentTxIDs) != p.Completed {
					t.Errorf("Torn snapshot: %d tx ids for %d completed segments",
						len(p.SegmentTxIDs), p.Completed)
					return
				}
			}
		}()
	}

	waitStatus(t, events, models.WriteCompleted)
	close(stop)
	wg.Wait()

	p, _ := w.Progress(context.Background(), fp)
	if p.Completed != p.TotalSegments {
		t.Errorf("Expected all segments completed, got: %+v", p)
	}
}

func TestPublish_TransientFailuresRetried(t *testing.T) {
	sub := newFakeSubmitter()
	sub.transient[2] = 2 // first two tries of segment 2 fail
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	events, done := w.Events().Subscribe()
	defer done()

	fp, err := w.Publish("kaspa:alice", storyText(20))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitStatus(t, events, models.WriteCompleted)

	if got := sub.submissions(2); got != 3 {
		t.Errorf("Expected 3 tries for segment 2, got: %d", got)
	}
	p, _ := w.Progress(context.Background(), fp)
	if p.Status != models.WriteCompleted {
		t.Errorf("Expected completed after retries, got: %s", p.Status)
	}
}

func TestPublish_FailureIsResumable(t *testing.T) {
	sub := newFakeSubmitter()
	sub.setFailing(3, true)
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	events, done := w.Events().Subscribe()
	defer done()

	fp, err := w.Publish("kaspa:alice", storyText(30))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitStatus(t, events, models.WriteFailed)

	p, err := w.Progress(context.Background(), fp)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Status != models.WriteFailed || !p.Resumable {
		t.Fatalf("Expected resumable failure, got: %+v", p)
	}
	if p.Completed != 2 || len(p.SegmentTxIDs) != 2 {
		t.Errorf("Expected 2 published segments before failure, got: %+v", p)
	}
	if p.FailedSegment != 3 {
		t.Errorf("Expected failed segment 3, got: %d", p.FailedSegment)
	}
	if p.Attempts != 3 {
		t.Errorf("Expected retry budget consumed, got: %d attempts", p.Attempts)
	}
}

func TestResume_ContinuesWithoutRepublishing(t *testing.T) {
	sub := newFakeSubmitter()
	sub.setFailing(3, true)
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	events, done := w.Events().Subscribe()
	defer done()

	fp, err := w.Publish("kaspa:alice", storyText(30))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitStatus(t, events, models.WriteFailed)

	failedTries := sub.submissions(3)
	sub.setFailing(3, false)
	if err := w.Resume(context.Background(), fp); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	waitStatus(t, events, models.WriteCompleted)

	p, _ := w.Progress(context.Background(), fp)
	if p.Status != models.WriteCompleted {
		t.Fatalf("Expected completed after resume, got: %s", p.Status)
	}

	// Segments 1 and 2 were published exactly once, before the failure
	if got := sub.submissions(1); got != 1 {
		t.Errorf("Expected segment 1 published once, got: %d", got)
	}
	if got := sub.submissions(2); got != 1 {
		t.Errorf("Expected segment 2 published once, got: %d", got)
	}
	if got := sub.submissions(3); got != failedTries+1 {
		t.Errorf("Expected one more try of segment 3 after resume, got: %d", got-failedTries)
	}
	// The resumed segment chains onto the pre-failure anchor
	if got := sub.parentOf(3); got != p.SegmentTxIDs[1] {
		t.Errorf("Expected segment 3 parent %q, got: %q", p.SegmentTxIDs[1], got)
	}
}

func TestResume_FromStoreAfterRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	author := "kaspa:alice"
	pieces := []string{"first part of it", "second part of it", "third part of it"}
	fp := Fingerprint(author, strings.Join(pieces, " "))
	anchors := []string{fmt.Sprintf("%064x", 101), fmt.Sprintf("%064x", 102)}

	rec := &storage.Record{
		Progress: &models.WriteProgress{
			Fingerprint:   fp,
			Author:        author,
			TotalSegments: 3,
			Completed:     2,
			SegmentTxIDs:  append([]string(nil), anchors...),
			FailedSegment: 3,
			Status:        models.WriteFailed,
			Resumable:     true,
			StoryID:       anchors[0],
		},
		Pieces: pieces,
	}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A fresh writer, as after a process restart
	sub := newFakeSubmitter()
	w := New(sub, testSplitter(), store, testConfig())

	events, done := w.Events().Subscribe()
	defer done()

	if err := w.Resume(context.Background(), fp); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	waitStatus(t, events, models.WriteCompleted)

	if got := sub.submissions(1) + sub.submissions(2); got != 0 {
		t.Errorf("Expected no republishing of completed segments, got: %d", got)
	}
	if got := sub.parentOf(3); got != anchors[1] {
		t.Errorf("Expected segment 3 to chain onto stored anchor, got: %q", got)
	}

	p, _ := w.Progress(context.Background(), fp)
	if p.Completed != 3 || p.Status != models.WriteCompleted {
		t.Errorf("Expected completed progress, got: %+v", p)
	}
}

func TestResume_Rejections(t *testing.T) {
	sub := newFakeSubmitter()
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	if err := w.Resume(context.Background(), strings.Repeat("0", 64)); !errors.Is(err, ErrUnknownWrite) {
		t.Errorf("Expected ErrUnknownWrite, got: %v", err)
	}

	events, done := w.Events().Subscribe()
	defer done()
	fp, _ := w.Publish("kaspa:alice", storyText(20))
	waitStatus(t, events, models.WriteCompleted)

	if err := w.Resume(context.Background(), fp); !errors.Is(err, ErrNotResumable) {
		t.Errorf("Expected ErrNotResumable for a completed attempt, got: %v", err)
	}
}

func TestPublish_CoalescesDuplicates(t *testing.T) {
	sub := newFakeSubmitter()
	sub.gate = make(chan struct{})
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	events, done := w.Events().Subscribe()
	defer done()

	text := storyText(20)
	fp1, err := w.Publish("kaspa:alice", text)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	// Second create for the same content while the first is in flight
	fp2, err := w.Publish("kaspa:alice", text)
	if err != nil {
		t.Fatalf("Duplicate publish failed: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("Expected identical fingerprints, got: %s vs %s", fp1, fp2)
	}

	close(sub.gate)
	waitStatus(t, events, models.WriteCompleted)

	p, _ := w.Progress(context.Background(), fp1)
	for seg := 1; seg <= p.TotalSegments; seg++ {
		if got := sub.submissions(seg); got != 1 {
			t.Errorf("Expected segment %d published once, got: %d", seg, got)
		}
	}

	// Publishing again after completion does not restart the attempt
	before := sub.submissions(1)
	if _, err := w.Publish("kaspa:alice", text); err != nil {
		t.Fatalf("Publish after completion failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if got := sub.submissions(1); got != before {
		t.Error("Expected completed attempt to be left alone")
	}
}

func TestCancel_TerminatesAttempt(t *testing.T) {
	sub := newFakeSubmitter()
	sub.gate = make(chan struct{})
	w := New(sub, testSplitter(), storage.NewMemoryStore(), testConfig())

	fp, err := w.Publish("kaspa:alice", storyText(20))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if err := w.Cancel(context.Background(), fp); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	p, err := w.Progress(context.Background(), fp)
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	if p.Status != models.WriteCancelled {
		t.Errorf("Expected cancelled, got: %s", p.Status)
	}
	if p.Resumable {
		t.Error("Expected cancelled attempt to not be resumable")
	}
	if err := w.Resume(context.Background(), fp); !errors.Is(err, ErrNotResumable) {
		t.Errorf("Expected ErrNotResumable after cancel, got: %v", err)
	}

	if err := w.Cancel(context.Background(), strings.Repeat("0", 64)); !errors.Is(err, ErrUnknownWrite) {
		t.Errorf("Expected ErrUnknownWrite, got: %v", err)
	}
}

func TestPublish_RejectsEmptyContent(t *testing.T) {
	w := New(newFakeSubmitter(), testSplitter(), storage.NewMemoryStore(), testConfig())

	if _, err := w.Publish("kaspa:alice", "   "); err == nil {
		t.Error("Expected error for empty content")
	}
}
