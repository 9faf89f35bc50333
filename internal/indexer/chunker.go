package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"contractaid/internal/document"
)

const (
	// DefaultSegmentSize is the maximum segment length in bytes.
	DefaultSegmentSize = 2000
	// DefaultSegmentOverlap is the target overlap between consecutive segments.
	DefaultSegmentOverlap = 200
)

// ChunkError reports an invalid segment size / overlap configuration.
type ChunkError struct {
	Size    int
	Overlap int
	Reason  string
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk error: %s (size=%d, overlap=%d)", e.Reason, e.Size, e.Overlap)
}

// RecursiveChunker splits source text on a hierarchy of separators, from
// language statements down to spaces, falling back to raw byte windows.
// Every segment is an exact slice of the document, so consecutive segments
// can be stitched back together by dropping the overlap.
type RecursiveChunker struct {
	size    int
	overlap int
}

// NewRecursiveChunker creates a chunker. It fails with *ChunkError when
// overlap >= size or either value is out of range. A non-zero overlap and
// the stride size-overlap must each hold a full UTF-8 character, so that
// every cut and every overlap can land on a character boundary.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	c := &RecursiveChunker{size: size, overlap: overlap}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RecursiveChunker) validate() error {
	switch {
	case c.size <= 0:
		return &ChunkError{Size: c.size, Overlap: c.overlap, Reason: "segment size must be positive"}
	case c.overlap < 0:
		return &ChunkError{Size: c.size, Overlap: c.overlap, Reason: "overlap must not be negative"}
	case c.overlap >= c.size:
		return &ChunkError{Size: c.size, Overlap: c.overlap, Reason: "overlap must be smaller than segment size"}
	case c.overlap > 0 && c.overlap < utf8.UTFMax:
		return &ChunkError{Size: c.size, Overlap: c.overlap, Reason: fmt.Sprintf("overlap must be 0 or at least %d bytes", utf8.UTFMax)}
	case c.size-c.overlap < utf8.UTFMax:
		return &ChunkError{Size: c.size, Overlap: c.overlap, Reason: fmt.Sprintf("segment size must exceed overlap by at least %d bytes", utf8.UTFMax)}
	}
	return nil
}

// Size returns the configured segment size.
func (c *RecursiveChunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Split cuts a document into ordered, overlapping segments.
// A document no longer than the segment size yields exactly one segment.
// An empty document yields none.
func (c *RecursiveChunker) Split(doc document.Document, lang document.LanguageSpec) ([]document.Segment, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	text := doc.RawText
	n := len(text)
	if n == 0 {
		return nil, nil
	}

	seps := lang.Separators()
	var segments []document.Segment
	start := 0
	for {
		end := n
		if n-start > c.size {
			end = c.cutPoint(text, start, seps)
		}

		segments = append(segments, document.Segment{
			Text:          text[start:end],
			SourcePath:    doc.SourcePath,
			SequenceIndex: len(segments),
			StartOffset:   start,
			EndOffset:     end,
		})

		if end >= n {
			break
		}
		start = c.nextStart(text, start, end)
	}

	return segments, nil
}

// SplitAll splits every document and concatenates the segments in document order.
func (c *RecursiveChunker) SplitAll(docs []document.Document, lang document.LanguageSpec) ([]document.Segment, error) {
	var all []document.Segment
	for _, doc := range docs {
		segs, err := c.Split(doc, lang)
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", doc.SourcePath, err)
		}
		all = append(all, segs...)
	}
	return all, nil
}

// cutPoint picks the end of the segment starting at start. It walks the
// separator hierarchy and takes the last occurrence of the coarsest separator
// that keeps the segment within size. A first pass only accepts cuts in the
// back half of the window; the second accepts anything longer than the
// overlap. Without a match the cut falls on the size limit, moved back to a
// rune boundary.
func (c *RecursiveChunker) cutPoint(text string, start int, seps []string) int {
	limit := start + c.size
	minEnd := start + c.overlap + 1

	for _, floor := range []int{max(minEnd, start+c.size/2), minEnd} {
		if cut, ok := lastSeparator(text, start, floor, limit, seps); ok {
			return cut
		}
	}

	cut := limit
	for cut > minEnd && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

// lastSeparator finds a cut in [floor, limit] at the coarsest separator.
// The cut goes after the separator's leading whitespace so that a statement
// keyword opens the following segment.
func lastSeparator(text string, start, floor, limit int, seps []string) (int, bool) {
	for _, sep := range seps {
		if sep == "" {
			continue
		}
		lead := len(sep) - len(strings.TrimLeft(sep, "\n "))
		lo := max(floor-lead, start)
		hi := limit - lead
		if hi < lo {
			continue
		}
		windowEnd := min(hi+len(sep), len(text))
		if idx := strings.LastIndex(text[lo:windowEnd], sep); idx >= 0 {
			return lo + idx + lead, true
		}
	}
	return 0, false
}

// nextStart picks where the segment after [start, end) begins. It prefers
// the earliest line start inside the overlap window, then the earliest word
// start, then the raw window edge.
func (c *RecursiveChunker) nextStart(text string, start, end int) int {
	if c.overlap == 0 {
		return end
	}
	lo := end - c.overlap
	if lo <= start {
		lo = start + 1
	}

	for _, b := range []byte{'\n', ' '} {
		if idx := strings.IndexByte(text[lo-1:end-1], b); idx >= 0 {
			return lo + idx
		}
	}

	p := lo
	for p < end && !utf8.RuneStart(text[p]) {
		p++
	}
	return p
}
