package models

import "time"

// WriteStatus is the terminal-state machine of one segmented-write attempt.
type WriteStatus string

const (
	WriteCreating  WriteStatus = "creating"  // submitting segments in order
	WriteRetrying  WriteStatus = "retrying"  // backing off before re-submitting a segment
	WriteCompleted WriteStatus = "completed" // every segment published
	WriteFailed    WriteStatus = "failed"    // a segment exhausted its retry budget
	WriteCancelled WriteStatus = "cancelled" // explicit cancel, terminal, non-resumable
)

// WriteProgress is the mutable state of one segmented-write attempt. It lives
// in memory for the life of the attempt and is optionally mirrored to the
// progress store after every segment.
type WriteProgress struct {
	// Fingerprint identifies the logical story being written (content hash).
	// Duplicate create calls with the same fingerprint coalesce onto the
	// existing attempt.
	Fingerprint string `json:"fingerprint"`

	Author        string      `json:"author"`
	TotalSegments int         `json:"total_segments"`
	Completed     int         `json:"completed"`
	SegmentTxIDs  []string    `json:"segment_tx_ids"` // ordered, one per published segment
	FailedSegment int         `json:"failed_segment,omitempty"` // 1-based, 0 when none
	Attempts      int         `json:"attempts"` // submit attempts spent on the failing segment
	Resumable     bool        `json:"resumable"`
	Status        WriteStatus `json:"status"`

	// StoryID is the first segment's transaction id, the story's canonical id.
	StoryID string `json:"story_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a snapshot safe to hand to observers while the writer keeps
// mutating the original.
func (p *WriteProgress) Clone() *WriteProgress {
	cp := *p
	cp.SegmentTxIDs = append([]string(nil), p.SegmentTxIDs...)
	return &cp
}
