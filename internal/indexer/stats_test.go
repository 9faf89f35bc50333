package indexer

import (
	"testing"

	"contractaid/internal/document"
)

func TestComputeBuildStats(t *testing.T) {
	docs := []document.Document{
		{SourcePath: "A.sol", RawText: "aaaa"},
		{SourcePath: "B.sol", RawText: ""},
	}
	segments := []document.Segment{
		{SourcePath: "A.sol", SequenceIndex: 0, StartOffset: 0, EndOffset: 10},
		{SourcePath: "A.sol", SequenceIndex: 1, StartOffset: 5, EndOffset: 25},
	}

	stats := computeBuildStats(docs, segments, 1, "test-embedding-model", 2000, 200)

	if stats.Documents != 2 {
		t.Errorf("Documents = %d, want 2", stats.Documents)
	}
	if stats.DocsWith0Segments != 1 {
		t.Errorf("DocsWith0Segments = %d, want 1", stats.DocsWith0Segments)
	}
	if stats.Segments != 2 {
		t.Errorf("Segments = %d, want 2", stats.Segments)
	}
	if stats.SegmentSizeStats.Min != 10 || stats.SegmentSizeStats.Max != 20 {
		t.Errorf("SegmentSizeStats = %+v, want min 10 max 20", stats.SegmentSizeStats)
	}
	if stats.ChunkerVersion != ChunkerVersion {
		t.Errorf("ChunkerVersion = %s, want %s", stats.ChunkerVersion, ChunkerVersion)
	}
	if len(stats.IndexVersion) != 16 {
		t.Errorf("IndexVersion = %q, want 16 hex chars", stats.IndexVersion)
	}
}

func TestIndexVersion(t *testing.T) {
	a := indexVersion("model-a", 2000, 200)
	if a != indexVersion("model-a", 2000, 200) {
		t.Error("indexVersion() should be stable for identical parameters")
	}
	if a == indexVersion("model-b", 2000, 200) {
		t.Error("indexVersion() should change with the embedding model")
	}
	if a == indexVersion("model-a", 1000, 200) {
		t.Error("indexVersion() should change with the segment size")
	}
}

func TestComputeSizeStats(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		want    SegmentSizeStats
	}{
		{
			name:    "empty",
			lengths: []int{},
			want:    SegmentSizeStats{},
		},
		{
			name:    "single value",
			lengths: []int{100},
			want:    SegmentSizeStats{Min: 100, Max: 100, Mean: 100, P95: 100},
		},
		{
			name:    "multiple values",
			lengths: []int{10, 20, 30, 40, 50},
			want:    SegmentSizeStats{Min: 10, Max: 50, Mean: 30, P95: 50},
		},
		{
			name:    "unsorted values",
			lengths: []int{50, 10, 30, 20, 40},
			want:    SegmentSizeStats{Min: 10, Max: 50, Mean: 30, P95: 50},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeSizeStats(tt.lengths)
			if got != tt.want {
				t.Errorf("computeSizeStats() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
