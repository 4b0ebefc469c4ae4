// Package chunker splits long-form text into ordered, size-bounded segments
// suitable for publishing as a chained sequence of ledger transactions.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"kasocial/internal/models"
	"kasocial/internal/protocol"
)

// ErrEmptyContent is returned when the input is empty or whitespace-only.
var ErrEmptyContent = errors.New("chunker: content is empty")

// ErrTooLong is returned when the input would exceed the maximum segment
// count. Use WithinLimits for a non-failing pre-flight check.
var ErrTooLong = fmt.Errorf("chunker: content exceeds %d segments", protocol.MaxStorySegments)

// Break characters in descending priority. The scanner prefers cutting at a
// paragraph break, then a line break, then sentence punctuation, then clause
// punctuation, then a plain space.
var breakSets = []string{"\n\n", "\n", ".!?", ";,", " "}

// Splitter produces deterministic segment sequences. The zero-value limits
// come from the protocol package; tests may narrow them.
type Splitter struct {
	MinSize     int // minimum acceptable cut point, in runes
	MaxSize     int // maximum segment size, in runes
	MaxSegments int
}

// New returns a Splitter with the protocol's segment limits.
func New() *Splitter {
	return &Splitter{
		MinSize:     protocol.MinSegmentChars,
		MaxSize:     protocol.MaxSegmentChars,
		MaxSegments: protocol.MaxStorySegments,
	}
}

// Split cuts text into ordered segments. Segment and total numbers are
// assigned only after the full split completes; the final segment carries
// the final flag. Identical input always yields identical segments.
func (s *Splitter) Split(text string) ([]models.SegmentBlock, []string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, ErrEmptyContent
	}

	var pieces []string
	remaining := []rune(strings.TrimSpace(text))

	for len(remaining) > s.MaxSize {
		cut := s.findCut(remaining)
		piece := string(remaining[:cut])
		// Trailing whitespace is dropped only while the piece stays at or
		// above the minimum size.
		if trimmed := strings.TrimSpace(piece); len([]rune(trimmed)) >= s.MinSize {
			piece = trimmed
		}
		pieces = append(pieces, piece)
		remaining = []rune(strings.TrimSpace(string(remaining[cut:])))

		if len(pieces) > s.MaxSegments {
			return nil, nil, ErrTooLong
		}
	}
	if last := strings.TrimSpace(string(remaining)); last != "" {
		pieces = append(pieces, last)
	}

	if len(pieces) > s.MaxSegments {
		return nil, nil, ErrTooLong
	}

	// Totals are only known now that the split is done.
	blocks := make([]models.SegmentBlock, len(pieces))
	for i := range pieces {
		blocks[i] = models.SegmentBlock{
			Segment: i + 1,
			Total:   len(pieces),
			IsFinal: i == len(pieces)-1,
		}
	}
	return blocks, pieces, nil
}

// findCut scans backward from the ideal cut point (MaxSize) toward MinSize
// looking for the highest-priority break character. Cut points whose trimmed
// prefix falls below MinSize are skipped. When no usable break exists in the
// window, it cuts at the minimum size regardless of boundary.
func (s *Splitter) findCut(text []rune) int {
	for _, set := range breakSets {
		if set == "\n\n" {
			for i := s.MaxSize; i > s.MinSize; i-- {
				if text[i-1] == '\n' && i >= 2 && text[i-2] == '\n' && trimmedLen(text, i) >= s.MinSize {
					return i
				}
			}
			continue
		}
		for i := s.MaxSize; i > s.MinSize; i-- {
			if strings.ContainsRune(set, text[i-1]) && trimmedLen(text, i) >= s.MinSize {
				return i
			}
		}
	}
	return s.MinSize
}

// trimmedLen is the length of text[:cut] once trailing whitespace is dropped.
func trimmedLen(text []rune, cut int) int {
	for cut > 0 && unicode.IsSpace(text[cut-1]) {
		cut--
	}
	return cut
}

// EstimateSegments predicts the segment count without failing. Returns 0 for
// empty input.
func (s *Splitter) EstimateSegments(text string) int {
	blocks, _, err := s.Split(text)
	if err == nil {
		return len(blocks)
	}
	if errors.Is(err, ErrEmptyContent) {
		return 0
	}
	// Over the segment cap; estimate by worst-case minimum cuts.
	runes := len([]rune(strings.TrimSpace(text)))
	return (runes + s.MinSize - 1) / s.MinSize
}

// WithinLimits reports whether text can be published as a story at all.
func (s *Splitter) WithinLimits(text string) bool {
	_, _, err := s.Split(text)
	return err == nil
}
