package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"kasocial/internal/models"
)

// FieldError is one structured validation finding. Validation never panics
// and never returns a Go error: the result is a list, empty when valid.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Code)
}

// Validation codes.
const (
	CodeRequired    = "required"
	CodeUnsupported = "unsupported"
	CodeTooLong     = "too_long"
	CodeTooLarge    = "too_large"
	CodeFormat      = "format"
	CodeForbidden   = "forbidden"
	CodeOutOfRange  = "out_of_range"
)

// Validate checks a decoded payload against every protocol rule. Pure and
// side-effect-free; callers decide what a non-empty result means.
func Validate(p *models.ContentPayload) []FieldError {
	var errs []FieldError

	if p.Version == "" {
		errs = append(errs, FieldError{"version", CodeRequired, "protocol version is required"})
	} else if p.Version != models.ProtocolVersion {
		errs = append(errs, FieldError{"version", CodeUnsupported, "unrecognized protocol version"})
	}

	if p.Kind == "" {
		errs = append(errs, FieldError{"type", CodeRequired, "operation kind is required"})
	} else if !p.Kind.Known() {
		errs = append(errs, FieldError{"type", CodeUnsupported, "unrecognized operation kind"})
	}

	switch {
	case p.Timestamp == 0:
		errs = append(errs, FieldError{"timestamp", CodeRequired, "timestamp is required"})
	case p.Timestamp < models.ProtocolEpoch:
		errs = append(errs, FieldError{"timestamp", CodeOutOfRange, "timestamp predates the protocol epoch"})
	case p.Timestamp > time.Now().Unix()+MaxClockAheadSeconds:
		errs = append(errs, FieldError{"timestamp", CodeOutOfRange, "timestamp is too far in the future"})
	}

	errs = append(errs, validateReferences(p)...)

	if p.Kind.Known() {
		errs = append(errs, validateKind(p)...)
	}

	// Size check runs last so every field-level finding is reported even
	// when the whole payload is oversized.
	if data, err := json.Marshal(p); err == nil && len(data) > MaxPayloadBytes {
		errs = append(errs, FieldError{"payload", CodeTooLarge,
			fmt.Sprintf("encoded payload is %d bytes, limit is %d", len(data), MaxPayloadBytes)})
	}

	return errs
}

// validateReferences checks the shared chain-reference grammar rules.
func validateReferences(p *models.ContentPayload) []FieldError {
	var errs []FieldError

	if p.ParentID != "" && !ValidTxID(p.ParentID) {
		errs = append(errs, FieldError{"parent_id", CodeFormat, "parent reference must be 64 lowercase hex chars"})
	}
	if p.PrevTxID != "" && !ValidTxID(p.PrevTxID) {
		errs = append(errs, FieldError{"prev_tx_id", CodeFormat, "previous-transaction reference must be 64 lowercase hex chars"})
	}
	if p.LastSubscribeID != "" && !ValidTxID(p.LastSubscribeID) {
		errs = append(errs, FieldError{"last_subscribe_id", CodeFormat, "subscription reference must be 64 lowercase hex chars"})
	}

	// A registration anchors a fresh identity and may not point anywhere.
	if p.Kind == models.KindStart {
		if p.PrevTxID != "" {
			errs = append(errs, FieldError{"prev_tx_id", CodeForbidden, "start message must not carry chain references"})
		}
		if p.LastSubscribeID != "" {
			errs = append(errs, FieldError{"last_subscribe_id", CodeForbidden, "start message must not carry chain references"})
		}
		if p.ParentID != "" {
			errs = append(errs, FieldError{"parent_id", CodeForbidden, "start message must not carry a parent reference"})
		}
	}

	return errs
}

// validateKind applies the per-kind presence and length rules.
func validateKind(p *models.ContentPayload) []FieldError {
	var errs []FieldError
	content := p.Text()

	switch p.Kind {
	case models.KindStart:
		var body models.ProfileBody
		if p.Content == nil || json.Unmarshal([]byte(content), &body) != nil {
			errs = append(errs, FieldError{"content", CodeFormat, "start message requires a profile body"})
			break
		}
		nick := strings.TrimSpace(body.Nickname)
		if nick == "" {
			errs = append(errs, FieldError{"nickname", CodeRequired, "nickname is required"})
		} else if utf8.RuneCountInString(nick) > MaxNicknameChars {
			errs = append(errs, FieldError{"nickname", CodeTooLong,
				fmt.Sprintf("nickname exceeds %d chars", MaxNicknameChars)})
		}

	case models.KindPost:
		errs = append(errs, checkContent(p, "post", MaxPostChars)...)

	case models.KindStory:
		errs = append(errs, validateSegment(p)...)

	case models.KindSubscribe, models.KindUnsubscribe:
		if !ValidAddress(content) {
			errs = append(errs, FieldError{"content", CodeFormat, "content must be a valid ledger address"})
		}

	case models.KindLike:
		if p.Content != nil {
			errs = append(errs, FieldError{"content", CodeForbidden, "like message must carry no content"})
		}
		if !ValidTxID(p.ParentID) {
			errs = append(errs, FieldError{"parent_id", CodeRequired, "like requires a valid parent transaction id"})
		}

	case models.KindComment:
		errs = append(errs, checkContent(p, "comment", MaxCommentChars)...)
		if !ValidTxID(p.ParentID) {
			errs = append(errs, FieldError{"parent_id", CodeRequired, "comment requires a valid parent transaction id"})
		}
	}

	return errs
}

// validateSegment checks the segment block of a story message.
func validateSegment(p *models.ContentPayload) []FieldError {
	var errs []FieldError

	seg := p.Segment
	if seg == nil {
		return append(errs, FieldError{"segment", CodeRequired, "story message requires a segment block"})
	}
	if seg.Segment < 1 {
		errs = append(errs, FieldError{"segment.segment", CodeOutOfRange, "segment number must be >= 1"})
	}
	if seg.Total < 1 {
		errs = append(errs, FieldError{"segment.total", CodeOutOfRange, "segment total must be >= 1"})
	}
	if seg.Segment >= 1 && seg.Total >= 1 && seg.Segment > seg.Total {
		errs = append(errs, FieldError{"segment.segment", CodeOutOfRange, "segment number exceeds declared total"})
	}

	// Segments past the first chain to their predecessor.
	if seg.Segment > 1 && !ValidTxID(p.ParentID) {
		errs = append(errs, FieldError{"parent_id", CodeRequired, "follow-up segment requires the previous segment's transaction id"})
	}

	errs = append(errs, checkContent(p, "segment", MaxSegmentChars)...)
	return errs
}

// checkContent enforces non-empty content within the given rune limit.
func checkContent(p *models.ContentPayload, what string, limit int) []FieldError {
	content := p.Text()
	if strings.TrimSpace(content) == "" {
		return []FieldError{{"content", CodeRequired, what + " content must not be empty"}}
	}
	if n := utf8.RuneCountInString(content); n > limit {
		return []FieldError{{"content", CodeTooLong,
			fmt.Sprintf("%s content is %d chars, limit is %d", what, n, limit)}}
	}
	return nil
}
