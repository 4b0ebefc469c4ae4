package models

// FeedView selects one of the feed aggregator's view kinds.
type FeedView string

const (
	ViewPersonal FeedView = "personal" // followees plus self
	ViewGlobal   FeedView = "global"   // network-wide recent activity
	ViewUser     FeedView = "user"     // single author
	ViewTrending FeedView = "trending" // global re-sorted by engagement
	ViewByType   FeedView = "by-type"  // filtered to requested kinds
)

// FeedItemKind is the explicit discriminant of the feed-item union.
type FeedItemKind string

const (
	FeedItemPost    FeedItemKind = "post"
	FeedItemStory   FeedItemKind = "story"
	FeedItemComment FeedItemKind = "comment"
)

// FeedItem is a tagged union over Post | Story | Comment. Exactly one of the
// three pointers is set, matching Kind. Adding a new content kind means
// extending the switch in every consumer, which is the point.
type FeedItem struct {
	Kind       FeedItemKind `json:"kind"`
	Post       *Post        `json:"post,omitempty"`
	Story      *Story       `json:"story,omitempty"`
	Comment    *Comment     `json:"comment,omitempty"`
	Engagement Engagement   `json:"engagement"`
}

// TxID returns the identifying transaction id of the wrapped item.
func (it FeedItem) TxID() string {
	switch it.Kind {
	case FeedItemPost:
		return it.Post.TxID
	case FeedItemStory:
		return it.Story.ID
	case FeedItemComment:
		return it.Comment.TxID
	}
	return ""
}

// Author returns the author address of the wrapped item.
func (it FeedItem) Author() string {
	switch it.Kind {
	case FeedItemPost:
		return it.Post.Author
	case FeedItemStory:
		return it.Story.Author
	case FeedItemComment:
		return it.Comment.Author
	}
	return ""
}

// Timestamp returns the payload timestamp of the wrapped item.
func (it FeedItem) Timestamp() int64 {
	switch it.Kind {
	case FeedItemPost:
		return it.Post.Timestamp
	case FeedItemStory:
		if len(it.Story.Segments) > 0 {
			return it.Story.Segments[0].Timestamp
		}
		return 0
	case FeedItemComment:
		return it.Comment.Timestamp
	}
	return 0
}

// FeedRequest describes one view+parameter combination. Its cache key is
// derived from every field except Refresh.
type FeedRequest struct {
	View    FeedView       `json:"view"`
	Address string         `json:"address,omitempty"` // viewer (personal) or author (user)
	Kinds   []FeedItemKind `json:"kinds,omitempty"`   // by-type filter
	Since   int64          `json:"since,omitempty"`   // drop items older than this unix timestamp
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Refresh bool           `json:"refresh,omitempty"` // bypass the view cache
}

// FeedPage is one paginated slice of a view.
type FeedPage struct {
	Items   []FeedItem `json:"items"`
	HasMore bool       `json:"has_more"`
}
