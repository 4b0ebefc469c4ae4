package models

import "time"

// ProtocolVersion is the only wire version this implementation speaks.
const ProtocolVersion = "1"

// ProtocolEpoch is the earliest timestamp a payload may carry (2024-01-01 UTC).
// Anything older predates the protocol and is rejected by validation.
const ProtocolEpoch int64 = 1704067200

// MessageKind identifies the operation carried by a protocol payload.
type MessageKind string

const (
	KindStart       MessageKind = "start"       // profile registration
	KindPost        MessageKind = "post"        // single-transaction text post
	KindStory       MessageKind = "story"       // one segment of a multi-part story
	KindSubscribe   MessageKind = "subscribe"   // follow a target address
	KindUnsubscribe MessageKind = "unsubscribe" // unfollow a target address
	KindLike        MessageKind = "like"        // like a post or story
	KindComment     MessageKind = "comment"     // comment on a post or story
)

// Known reports whether the kind is one this protocol version recognizes.
func (k MessageKind) Known() bool {
	switch k {
	case KindStart, KindPost, KindStory, KindSubscribe, KindUnsubscribe, KindLike, KindComment:
		return true
	}
	return false
}

// SegmentBlock carries the ordering parameters of a story segment.
type SegmentBlock struct {
	Segment int  `json:"segment"`  // 1-based position within the story
	Total   int  `json:"total"`    // declared number of segments
	IsFinal bool `json:"is_final"` // true only on the last segment
}

// ContentPayload is a decoded protocol message. It is derived from an
// envelope's script bytes on demand and never stored.
type ContentPayload struct {
	Version   string      `json:"version"`
	Kind      MessageKind `json:"type"`
	Content   *string     `json:"content,omitempty"` // absent for likes
	Timestamp int64       `json:"timestamp"`         // unix seconds

	// ParentID links likes, comments and follow-up segments to a prior
	// transaction (64-hex transaction id).
	ParentID string `json:"parent_id,omitempty"`

	// Segment is present only on story messages.
	Segment *SegmentBlock `json:"segment,omitempty"`

	// Author chain references. A start message must carry neither.
	PrevTxID        string `json:"prev_tx_id,omitempty"`
	LastSubscribeID string `json:"last_subscribe_id,omitempty"`
}

// Text returns the payload content or "" when absent.
func (p *ContentPayload) Text() string {
	if p.Content == nil {
		return ""
	}
	return *p.Content
}

// ProfileBody is the JSON body carried by a start message's content field.
type ProfileBody struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

// DecodedMessage pairs a raw transaction with its decoded protocol payload.
// This is the unit the reconstructor replays.
type DecodedMessage struct {
	TxID        string
	Sender      string // derived by the fetch adapter, may be empty
	ConfirmedAt time.Time
	Payload     *ContentPayload
}
