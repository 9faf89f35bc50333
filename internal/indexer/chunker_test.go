package indexer

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"contractaid/internal/document"
)

func solidity(t *testing.T) document.LanguageSpec {
	t.Helper()
	lang, err := document.Lookup("sol")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	return lang
}

// reconstruct stitches segments of one document back together by dropping
// the overlap between neighbours.
func reconstruct(t *testing.T, segs []document.Segment) string {
	t.Helper()
	var b strings.Builder
	for i, seg := range segs {
		if i == 0 {
			b.WriteString(seg.Text)
			continue
		}
		overlap := segs[i-1].EndOffset - seg.StartOffset
		if overlap < 0 {
			t.Fatalf("gap between segment %d and %d", i-1, i)
		}
		b.WriteString(seg.Text[overlap:])
	}
	return b.String()
}

func sampleContract(functions int) string {
	var b strings.Builder
	b.WriteString("// SPDX-License-Identifier: MIT\npragma solidity ^0.8.0;\n\ncontract Vault {\n")
	b.WriteString("    mapping(address => uint256) public balances;\n\n")
	for i := 0; i < functions; i++ {
		fmt.Fprintf(&b, "function withdraw%d(uint256 amount) external {\n", i)
		b.WriteString("    require(balances[msg.sender] >= amount, \"insufficient\");\n")
		b.WriteString("    (bool ok, ) = msg.sender.call{value: amount}(\"\");\n")
		b.WriteString("    require(ok);\n    balances[msg.sender] -= amount;\n}\n\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func TestNewRecursiveChunker(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "defaults", size: DefaultSegmentSize, overlap: DefaultSegmentOverlap},
		{name: "zero overlap", size: 100, overlap: 0},
		{name: "overlap equals size", size: 2000, overlap: 2000, wantErr: true},
		{name: "overlap exceeds size", size: 100, overlap: 200, wantErr: true},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: true},
		{name: "overlap smaller than a character", size: 100, overlap: 3, wantErr: true},
		{name: "overlap of one character", size: 100, overlap: 4},
		{name: "stride smaller than a character", size: 10, overlap: 7, wantErr: true},
		{name: "smallest stride", size: 8, overlap: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecursiveChunker(tt.size, tt.overlap)
			if tt.wantErr {
				var chunkErr *ChunkError
				if !errors.As(err, &chunkErr) {
					t.Errorf("NewRecursiveChunker() error = %v, want *ChunkError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewRecursiveChunker() unexpected error: %v", err)
			}
		})
	}
}

func TestRecursiveChunker_Split_InvalidConfig(t *testing.T) {
	c := &RecursiveChunker{size: 2000, overlap: 2000}
	_, err := c.Split(document.Document{SourcePath: "a.sol", RawText: "contract A {}"}, solidity(t))

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("Split() error = %v, want *ChunkError", err)
	}
}

func TestRecursiveChunker_Split_ShortDocument(t *testing.T) {
	c, _ := NewRecursiveChunker(DefaultSegmentSize, DefaultSegmentOverlap)

	texts := []string{"x", "contract A {}", sampleContract(2)}
	for _, text := range texts {
		if len(text) >= DefaultSegmentSize {
			t.Fatalf("fixture of %d bytes is not shorter than segment size", len(text))
		}
		segs, err := c.Split(document.Document{SourcePath: "A.sol", RawText: text}, solidity(t))
		if err != nil {
			t.Fatalf("Split() error = %v", err)
		}
		if len(segs) != 1 {
			t.Fatalf("Split() returned %d segments, want 1", len(segs))
		}
		seg := segs[0]
		if seg.Text != text || seg.StartOffset != 0 || seg.EndOffset != len(text) {
			t.Errorf("Split() segment = %+v, want whole document", seg)
		}
		if seg.SourcePath != "A.sol" || seg.SequenceIndex != 0 {
			t.Errorf("Split() provenance = (%q, %d), want (A.sol, 0)", seg.SourcePath, seg.SequenceIndex)
		}
	}
}

func TestRecursiveChunker_Split_EmptyDocument(t *testing.T) {
	c, _ := NewRecursiveChunker(100, 10)
	segs, err := c.Split(document.Document{SourcePath: "A.sol"}, solidity(t))
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(segs) != 0 {
		t.Errorf("Split() returned %d segments, want 0", len(segs))
	}
}

func TestRecursiveChunker_Split_Reconstruction(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		text    string
		lang    string
	}{
		{name: "solidity defaults", size: DefaultSegmentSize, overlap: DefaultSegmentOverlap, text: sampleContract(40), lang: "sol"},
		{name: "solidity small windows", size: 300, overlap: 50, text: sampleContract(10), lang: "sol"},
		{name: "no separators", size: 64, overlap: 16, text: strings.Repeat("abcdefghij", 50), lang: "sol"},
		{name: "multibyte runes", size: 50, overlap: 10, text: strings.Repeat("héllo wörld ünïcode ", 20), lang: "rs"},
		{name: "rust", size: 120, overlap: 30, text: strings.Repeat("fn main() {\n    let x = 1;\n}\n\n", 20), lang: "rs"},
		{name: "zero overlap", size: 100, overlap: 0, text: sampleContract(5), lang: "sol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewRecursiveChunker(tt.size, tt.overlap)
			if err != nil {
				t.Fatalf("NewRecursiveChunker() error = %v", err)
			}
			lang, _ := document.Lookup(tt.lang)

			segs, err := c.Split(document.Document{SourcePath: "f", RawText: tt.text}, lang)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(segs) < 2 {
				t.Fatalf("Split() returned %d segments, want a multi-segment fixture", len(segs))
			}

			if got := reconstruct(t, segs); got != tt.text {
				t.Errorf("reconstruction mismatch: got %d bytes, want %d", len(got), len(tt.text))
			}

			for i, seg := range segs {
				if seg.SequenceIndex != i {
					t.Errorf("segs[%d].SequenceIndex = %d", i, seg.SequenceIndex)
				}
				if seg.Len() > tt.size {
					t.Errorf("segs[%d] length %d exceeds size %d", i, seg.Len(), tt.size)
				}
				if seg.Text != tt.text[seg.StartOffset:seg.EndOffset] {
					t.Errorf("segs[%d].Text does not match its offsets", i)
				}
				if i == 0 {
					continue
				}
				overlap := segs[i-1].EndOffset - seg.StartOffset
				if overlap > tt.overlap {
					t.Errorf("overlap between %d and %d = %d, want <= %d", i-1, i, overlap, tt.overlap)
				}
				if tt.overlap > 0 && overlap <= 0 {
					t.Errorf("overlap between %d and %d = %d, want positive", i-1, i, overlap)
				}
				if seg.StartOffset <= segs[i-1].StartOffset {
					t.Errorf("segment %d does not advance", i)
				}
			}
		})
	}
}

func TestRecursiveChunker_Split_RandomizedInvariants(t *testing.T) {
	pieces := []string{"a", "b", "function ", "contract ", " ", "\n", "\n\n", ";", "é", "中", "😀"}
	rng := rand.New(rand.NewPCG(7, 11))
	lang := solidity(t)

	for n := 0; n < 2000; n++ {
		size := 1 + rng.IntN(64)
		overlap := rng.IntN(size + 1)

		c, err := NewRecursiveChunker(size, overlap)
		if err != nil {
			var chunkErr *ChunkError
			if !errors.As(err, &chunkErr) {
				t.Fatalf("NewRecursiveChunker(%d, %d) error = %v, want *ChunkError", size, overlap, err)
			}
			continue
		}

		var b strings.Builder
		for i := rng.IntN(120); i > 0; i-- {
			b.WriteString(pieces[rng.IntN(len(pieces))])
		}
		text := b.String()

		segs, err := c.Split(document.Document{SourcePath: "R.sol", RawText: text}, lang)
		if err != nil {
			t.Fatalf("Split(size=%d, overlap=%d) error = %v", size, overlap, err)
		}
		if got := reconstruct(t, segs); got != text {
			t.Fatalf("size=%d overlap=%d: reconstruction mismatch for %q", size, overlap, text)
		}

		for i, seg := range segs {
			if !utf8.ValidString(seg.Text) {
				t.Fatalf("size=%d overlap=%d: segs[%d] = %q is not valid UTF-8", size, overlap, i, seg.Text)
			}
			if seg.Len() > size {
				t.Fatalf("size=%d overlap=%d: segs[%d] length %d", size, overlap, i, seg.Len())
			}
			if i == 0 {
				continue
			}
			got := segs[i-1].EndOffset - seg.StartOffset
			if got > overlap || (overlap > 0 && got <= 0) || (overlap == 0 && got != 0) {
				t.Fatalf("size=%d overlap=%d: overlap between %d and %d = %d", size, overlap, i-1, i, got)
			}
		}
	}
}

func TestRecursiveChunker_Split_PrefersStatementBoundaries(t *testing.T) {
	c, _ := NewRecursiveChunker(400, 50)
	text := sampleContract(6)

	segs, err := c.Split(document.Document{SourcePath: "Vault.sol", RawText: text}, solidity(t))
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	for i, seg := range segs[:len(segs)-1] {
		next := text[seg.EndOffset:]
		if !strings.HasPrefix(next, "function ") {
			t.Errorf("segs[%d] cut before %q, want a function boundary", i, next[:min(len(next), 20)])
		}
	}
}

func TestRecursiveChunker_SplitAll(t *testing.T) {
	c, _ := NewRecursiveChunker(300, 40)
	docs := []document.Document{
		{SourcePath: "A.sol", RawText: sampleContract(4)},
		{SourcePath: "B.sol", RawText: "contract B {}"},
	}

	segs, err := c.SplitAll(docs, solidity(t))
	if err != nil {
		t.Fatalf("SplitAll() error = %v", err)
	}

	last := segs[len(segs)-1]
	if last.SourcePath != "B.sol" || last.SequenceIndex != 0 {
		t.Errorf("last segment = (%q, %d), want (B.sol, 0)", last.SourcePath, last.SequenceIndex)
	}
	for _, seg := range segs[:len(segs)-1] {
		if seg.SourcePath != "A.sol" {
			t.Errorf("segment from %q precedes B.sol, want A.sol only", seg.SourcePath)
		}
	}
}
