package storage

import (
	"bytes"
	"encoding/binary"
)

// SegmentRecord is one embedded segment stored under a namespace.
type SegmentRecord struct {
	ID          string // Deterministic UUID of (source_path, seq_index)
	Namespace   string
	SourcePath  string
	SeqIndex    int
	StartOffset int
	EndOffset   int
	Text        string
	Vector      []float32
}

// floatsToBytes encodes a vector as little-endian float32s.
func floatsToBytes(v []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

// bytesToFloats decodes a blob written by floatsToBytes.
func bytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	_ = binary.Read(bytes.NewReader(b), binary.LittleEndian, &out)
	return out
}
