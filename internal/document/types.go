package document

import "fmt"

// Document is the raw text of one source file together with its provenance.
type Document struct {
	SourcePath string // Path relative to the session root, forward slashes
	RawText    string
}

// Segment is a bounded, overlapping slice of a Document.
// Text is always RawText[StartOffset:EndOffset] of the owning document.
type Segment struct {
	Text          string
	SourcePath    string
	SequenceIndex int
	StartOffset   int
	EndOffset     int
}

// Key returns the identity of the segment inside an index: (sourcePath, sequenceIndex).
func (s Segment) Key() string {
	return fmt.Sprintf("%s#%d", s.SourcePath, s.SequenceIndex)
}

// Len returns the segment length in bytes.
func (s Segment) Len() int {
	return s.EndOffset - s.StartOffset
}
