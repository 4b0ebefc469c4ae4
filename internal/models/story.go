package models

import "time"

// StorySegment is one accepted piece of a multi-transaction story.
type StorySegment struct {
	TxID      string    `json:"tx_id"`
	Segment   int       `json:"segment"`
	Total     int       `json:"total"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp"`
	IsFinal   bool      `json:"is_final"`
	Confirmed time.Time `json:"confirmed_at"`

	// ParentID is the previous segment's transaction id. Empty on the
	// first segment.
	ParentID string `json:"parent_id,omitempty"`
}

// Story is an ordered aggregate of segments keyed by the first segment's
// transaction id. Complete means the segment numbers form a contiguous
// 1..Total sequence and the last segment carries the final flag.
type Story struct {
	ID       string         `json:"id"` // first segment's tx id
	Author   string         `json:"author"`
	Total    int            `json:"total"`
	Segments []StorySegment `json:"segments"`
	Complete bool           `json:"complete"`

	// Content is the concatenation of accepted segment contents, in order.
	Content string `json:"content"`

	CreatedAt time.Time `json:"created_at"`
}
