package models

import "time"

// ParentKind classifies the target of a like or comment, resolved by
// re-decoding the parent transaction's own payload.
type ParentKind string

const (
	ParentPost    ParentKind = "post"
	ParentStory   ParentKind = "story"
	ParentUnknown ParentKind = "unknown"
)

// Post is a single-transaction text post.
type Post struct {
	TxID      string    `json:"tx_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp"`
	Confirmed time.Time `json:"confirmed_at"`
}

// Comment is a reply to a post or story.
type Comment struct {
	TxID       string     `json:"tx_id"`
	Author     string     `json:"author"`
	Content    string     `json:"content"`
	ParentID   string     `json:"parent_id"`
	ParentKind ParentKind `json:"parent_kind"`
	Timestamp  int64      `json:"timestamp"`
	Confirmed  time.Time  `json:"confirmed_at"`
}

// Like is an endorsement of a post or story. It carries no content.
type Like struct {
	TxID       string     `json:"tx_id"`
	Author     string     `json:"author"`
	ParentID   string     `json:"parent_id"`
	ParentKind ParentKind `json:"parent_kind"`
	Timestamp  int64      `json:"timestamp"`
}

// Engagement aggregates like/comment counts attributed to a content item.
type Engagement struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
}

// Score is the single ordering value used by the trending feed.
func (e Engagement) Score() int {
	return e.Likes + e.Comments
}
