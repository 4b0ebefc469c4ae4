package reconstructor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasocial/internal/ledger"
	"kasocial/internal/metrics"
	"kasocial/internal/models"
	"kasocial/internal/protocol"
)

// BuildStory reassembles a multi-transaction story from its first segment's
// transaction id. Ordering is based on parent-link references, not
// wall-clock order: segment N is accepted only when its parent reference
// equals the already-accepted segment N-1's transaction id, so acceptance
// proceeds strictly in segment-number order.
func (r *Reconstructor) BuildStory(ctx context.Context, firstTxID string) (*models.Story, error) {
	if cached, ok := r.stories.Get(firstTxID); ok {
		return cached, nil
	}

	env, err := r.fetcher.TransactionByID(ctx, firstTxID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("fetch first segment: %w", err)
	}

	payload := protocol.Decode(env)
	if payload == nil || payload.Kind != models.KindStory || payload.Segment == nil || payload.Segment.Segment != 1 {
		return nil, ErrNotStory
	}

	author, err := r.fetcher.SenderAddress(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("resolve story author: %w", err)
	}

	first := segmentFromPayload(env.ID, env.ConfirmedAt, payload)
	story := &models.Story{
		ID:        firstTxID,
		Author:    author,
		Total:     payload.Segment.Total,
		Segments:  []models.StorySegment{first},
		CreatedAt: time.Unix(payload.Timestamp, 0).UTC(),
	}

	if story.Total > 1 {
		candidates, err := r.collectSegmentCandidates(ctx, author, story.Total, firstTxID)
		if err != nil && len(candidates) == 0 {
			return nil, err
		}
		r.chainSegments(story, candidates)
	}

	finalize(story)
	r.stories.Set(firstTxID, story)
	return story, nil
}

// collectSegmentCandidates scans the author's history for story messages
// declaring the same total. The first segment is excluded.
func (r *Reconstructor) collectSegmentCandidates(ctx context.Context, author string, total int, firstTxID string) ([]models.StorySegment, error) {
	envs, err := r.fetchHistory(ctx, author)
	if err != nil && len(envs) == 0 {
		return nil, fmt.Errorf("fetch author history: %w", err)
	}

	var candidates []models.StorySegment
	for _, msg := range r.decodeHistory(author, envs) {
		p := msg.Payload
		if p.Kind != models.KindStory || p.Segment == nil {
			continue
		}
		if p.Segment.Total != total || msg.TxID == firstTxID || p.Segment.Segment < 2 {
			continue
		}
		seg := segmentFromPayload(msg.TxID, msg.ConfirmedAt, p)
		seg.ParentID = p.ParentID
		candidates = append(candidates, seg)
	}
	return candidates, nil
}

// chainSegments accepts candidates in segment-number order. Acceptance is
// transitive: segment N can only be validated once segment N-1 is already
// accepted, and its parent reference must equal N-1's transaction id.
func (r *Reconstructor) chainSegments(story *models.Story, candidates []models.StorySegment) {
	for next := 2; next <= story.Total; next++ {
		prev := story.Segments[len(story.Segments)-1]

		found := false
		for _, cand := range candidates {
			if cand.Segment != next || cand.ParentID != prev.TxID {
				continue
			}
			// Timestamps are expected non-decreasing along the chain;
			// bounded skew absorbs confirmation jitter, larger skew means
			// the chain is broken or forged.
			if cand.Timestamp < prev.Timestamp-MaxChainSkewSeconds {
				metrics.ChainIntegrityFailures.Inc()
				continue
			}
			story.Segments = append(story.Segments, cand)
			found = true
			break
		}
		if !found {
			// Gap: later segments cannot be validated without this one.
			metrics.ChainIntegrityFailures.Inc()
			break
		}
	}
}

// finalize computes completeness and the concatenated content.
func finalize(story *models.Story) {
	last := story.Segments[len(story.Segments)-1]
	story.Complete = len(story.Segments) == story.Total &&
		last.Segment == story.Total &&
		last.IsFinal

	var sb strings.Builder
	for _, seg := range story.Segments {
		sb.WriteString(seg.Content)
	}
	story.Content = sb.String()

	outcome := "incomplete"
	if story.Complete {
		outcome = "complete"
	}
	metrics.StoriesReconstructed.WithLabelValues(outcome).Inc()
}

// segmentFromPayload builds a segment record from a decoded story message.
func segmentFromPayload(txID string, confirmed time.Time, p *models.ContentPayload) models.StorySegment {
	return models.StorySegment{
		TxID:      txID,
		Segment:   p.Segment.Segment,
		Total:     p.Segment.Total,
		Content:   p.Text(),
		Timestamp: p.Timestamp,
		IsFinal:   p.Segment.IsFinal,
		Confirmed: confirmed,
	}
}
