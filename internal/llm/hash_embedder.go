package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// HashEmbedder is an offline embedder using the hashing trick: every
// identifier token is hashed into one of dimension buckets, counts are
// log-scaled and the vector is L2-normalised. The same text always yields the
// same vector, with no vocabulary to prepare and no network.
type HashEmbedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
}

// NewHashEmbedder creates a hashing embedder producing vectors of the given size.
func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|[0-9]+`),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *HashEmbedder) Name() string { return fmt.Sprintf("hash-%d", e.dimension) }

// EmbedTexts embeds each text independently.
func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, NewFatalError(ServiceEmbedding, fmt.Errorf("empty input array"))
	}
	if e.dimension <= 0 {
		return nil, NewFatalError(ServiceEmbedding, fmt.Errorf("invalid dimension %d", e.dimension))
	}
	if err := ctx.Err(); err != nil {
		return nil, NewFatalError(ServiceEmbedding, err)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	counts := make([]float64, e.dimension)
	for _, tok := range e.tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimension))
		// The top bit picks the sign so colliding tokens tend to cancel.
		if sum>>63 == 1 {
			counts[bucket]--
		} else {
			counts[bucket]++
		}
	}

	var norm float64
	for i, c := range counts {
		if c == 0 {
			continue
		}
		scaled := math.Copysign(1+math.Log(math.Abs(c)), c)
		counts[i] = scaled
		norm += scaled * scaled
	}

	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, c := range counts {
		vec[i] = float32(c / norm)
	}
	return vec
}
