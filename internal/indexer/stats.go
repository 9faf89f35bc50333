package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"contractaid/internal/document"
)

// ChunkerVersion identifies the segmentation algorithm.
// Update this when chunking logic changes significantly.
const ChunkerVersion = "recursive-v1"

// BuildStats describes one index build.
type BuildStats struct {
	// Documents is the number of documents handed to the builder.
	Documents int `json:"documents"`
	// DocsWith0Segments counts documents that produced no segment (empty files).
	DocsWith0Segments int `json:"docs_with_0_segments"`
	// Segments is the number of segments embedded and upserted.
	Segments int `json:"segments"`
	// Batches is the number of embedding batches issued.
	Batches int `json:"batches"`
	// SegmentSizeStats summarises segment lengths in bytes.
	SegmentSizeStats SegmentSizeStats `json:"segment_size_stats"`
	// ChunkerVersion is the version of the chunker used.
	ChunkerVersion string `json:"chunker_version"`
	// IndexVersion is a hash identifying the build parameters (chunker + embedding model + sizes).
	IndexVersion string `json:"index_version"`
}

// SegmentSizeStats contains min, max, mean and p95 of segment lengths.
type SegmentSizeStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// computeBuildStats summarises docs and their segments.
func computeBuildStats(docs []document.Document, segments []document.Segment, batches int, model string, size, overlap int) *BuildStats {
	perDoc := make(map[string]int, len(docs))
	lengths := make([]int, 0, len(segments))
	for _, seg := range segments {
		perDoc[seg.SourcePath]++
		lengths = append(lengths, seg.Len())
	}

	empty := 0
	for _, doc := range docs {
		if perDoc[doc.SourcePath] == 0 {
			empty++
		}
	}

	return &BuildStats{
		Documents:         len(docs),
		DocsWith0Segments: empty,
		Segments:          len(segments),
		Batches:           batches,
		SegmentSizeStats:  computeSizeStats(lengths),
		ChunkerVersion:    ChunkerVersion,
		IndexVersion:      indexVersion(model, size, overlap),
	}
}

// indexVersion hashes the parameters that determine index contents.
func indexVersion(model string, size, overlap int) string {
	input := fmt.Sprintf("%s|%s|size=%d|overlap=%d", ChunkerVersion, model, size, overlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16] // 16 hex chars = 64 bits
}

// computeSizeStats computes min, max, mean, and p95 from segment lengths.
func computeSizeStats(lengths []int) SegmentSizeStats {
	if len(lengths) == 0 {
		return SegmentSizeStats{}
	}

	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	sum := 0
	for _, l := range lengths {
		sum += l
	}
	mean := float64(sum) / float64(len(lengths))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return SegmentSizeStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
