package chunker

import (
	"errors"
	"strings"
	"testing"
)

// words builds text of n runes made of space-separated five-rune words.
func words(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("aaaa ")
	}
	return strings.TrimSpace(b.String()[:n])
}

func TestSplit_ShortTextSingleSegment(t *testing.T) {
	s := New()

	blocks, pieces, err := s.Split("a short story")
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("Expected 1 segment, got: %d", len(pieces))
	}
	if blocks[0].Segment != 1 || blocks[0].Total != 1 || !blocks[0].IsFinal {
		t.Errorf("Unexpected block: %+v", blocks[0])
	}
	if pieces[0] != "a short story" {
		t.Errorf("Expected content preserved, got: %q", pieces[0])
	}
}

func TestSplit_EightHundredCharsTwoSegments(t *testing.T) {
	s := New()
	text := words(800)

	blocks, pieces, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("Expected 2 segments for 800 chars, got: %d", len(pieces))
	}
	if blocks[0].Total != 2 || blocks[1].Total != 2 {
		t.Errorf("Expected total=2 on both blocks, got: %+v", blocks)
	}
	if blocks[0].IsFinal {
		t.Error("Expected first segment to not be final")
	}
	if !blocks[1].IsFinal {
		t.Error("Expected last segment to be final")
	}
}

func TestSplit_EmptyContent(t *testing.T) {
	s := New()

	for _, text := range []string{"", "   ", "\n\t "} {
		if _, _, err := s.Split(text); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Expected ErrEmptyContent for %q, got: %v", text, err)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	s := New()
	text := words(3000)

	_, first, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	_, second, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("Expected identical segment counts, got: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Segment %d differs between runs", i+1)
		}
	}
}

func TestSplit_RoundTripModuloWhitespace(t *testing.T) {
	s := New()
	text := "First paragraph with some detail.\n\n" + words(600) + "\n\nClosing thoughts. " + words(500)

	_, pieces, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	normalize := func(in string) string {
		return strings.Join(strings.Fields(in), " ")
	}
	joined := normalize(strings.Join(pieces, " "))
	if joined != normalize(text) {
		t.Errorf("Concatenated segments do not reproduce original text\n got: %q\nwant: %q", joined, normalize(text))
	}
}

func TestSplit_SegmentSizesWithinBounds(t *testing.T) {
	s := New()
	_, pieces, err := s.Split(words(5000))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for i, piece := range pieces {
		n := len([]rune(piece))
		if n > s.MaxSize {
			t.Errorf("Segment %d is %d runes, exceeds max %d", i+1, n, s.MaxSize)
		}
		if i < len(pieces)-1 && n < s.MinSize {
			t.Errorf("Non-final segment %d is %d runes, below min %d", i+1, n, s.MinSize)
		}
	}
}

func TestSplit_PrefersParagraphBreaks(t *testing.T) {
	s := &Splitter{MinSize: 10, MaxSize: 100, MaxSegments: 10}
	text := strings.Repeat("a", 50) + "\n\n" + strings.Repeat("b", 120)

	_, pieces, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if pieces[0] != strings.Repeat("a", 50) {
		t.Errorf("Expected cut at paragraph break, first piece: %q", pieces[0])
	}
}

func TestSplit_CutsAtMinWithoutBoundary(t *testing.T) {
	s := &Splitter{MinSize: 10, MaxSize: 20, MaxSegments: 10}
	text := strings.Repeat("x", 35) // no break characters anywhere

	_, pieces, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pieces) < 2 {
		t.Fatalf("Expected multiple segments, got: %d", len(pieces))
	}
	if len(pieces[0]) != 10 {
		t.Errorf("Expected first cut at minimum size 10, got: %d runes", len(pieces[0]))
	}
}

func TestSplit_WhitespaceRunKeepsMinimumSize(t *testing.T) {
	s := &Splitter{MinSize: 10, MaxSize: 20, MaxSegments: 10}
	// Every break character in the cut window sits inside a whitespace run,
	// so trimming at any of them would undershoot the minimum.
	text := strings.Repeat("a", 8) + strings.Repeat(" ", 17) + strings.Repeat("b", 20)

	_, pieces, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	for i, piece := range pieces {
		n := len([]rune(piece))
		if n > s.MaxSize {
			t.Errorf("Segment %d is %d runes, exceeds max %d", i+1, n, s.MaxSize)
		}
		if i < len(pieces)-1 && n < s.MinSize {
			t.Errorf("Non-final segment %d is %d runes, below min %d", i+1, n, s.MinSize)
		}
	}

	normalize := func(in string) string {
		return strings.Join(strings.Fields(in), " ")
	}
	if got := normalize(strings.Join(pieces, " ")); got != normalize(text) {
		t.Errorf("Concatenated segments do not reproduce original text, got: %q", got)
	}
}

func TestSplit_TooManySegments(t *testing.T) {
	s := &Splitter{MinSize: 2, MaxSize: 4, MaxSegments: 3}

	_, _, err := s.Split(words(100))
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("Expected ErrTooLong, got: %v", err)
	}
}

func TestEstimateSegments(t *testing.T) {
	s := New()

	if got := s.EstimateSegments(""); got != 0 {
		t.Errorf("Expected 0 for empty input, got: %d", got)
	}
	if got := s.EstimateSegments("short"); got != 1 {
		t.Errorf("Expected 1 segment, got: %d", got)
	}
	if got := s.EstimateSegments(words(800)); got != 2 {
		t.Errorf("Expected 2 segments for 800 chars, got: %d", got)
	}
}

func TestWithinLimits(t *testing.T) {
	s := New()

	if !s.WithinLimits(words(800)) {
		t.Error("Expected 800 chars to be publishable")
	}
	if s.WithinLimits("") {
		t.Error("Expected empty content to be rejected")
	}
	if s.WithinLimits(words(s.MaxSegments*s.MaxSize + s.MaxSize)) {
		t.Error("Expected content over the segment cap to be rejected")
	}
}
