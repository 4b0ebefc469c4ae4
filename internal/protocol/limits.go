package protocol

import "regexp"

// Fixed limits enforced by the core, independent of any outer surface.
const (
	MaxPayloadBytes  = 1000 // encoded wire payload
	MaxPostChars     = 500
	MaxCommentChars  = 300
	MaxNicknameChars = 50
	MinSegmentChars  = 50
	MaxSegmentChars  = 400
	MaxStorySegments = 200
)

// MaxClockAheadSeconds is how far into the future a payload timestamp may
// point before validation rejects it. Absorbs minor clock drift between the
// author and the ledger.
const MaxClockAheadSeconds = 300

var (
	addressPattern = regexp.MustCompile(`^kaspa(test|dev)?:[a-z0-9]{61,63}$`)
	txIDPattern    = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ValidAddress reports whether s matches the ledger address grammar.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidTxID reports whether s is a 64-char lowercase hex transaction id.
func ValidTxID(s string) bool {
	return txIDPattern.MatchString(s)
}
