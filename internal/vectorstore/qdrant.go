package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"contractaid/internal/contextutil"
	"contractaid/internal/document"
)

// Payload keys stored with every point.
const (
	payloadSourcePath  = "source_path"
	payloadSeqIndex    = "seq_index"
	payloadStartOffset = "start_offset"
	payloadEndOffset   = "end_offset"
	payloadText        = "text"
)

// NewQdrantClient creates a Qdrant client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
func NewQdrantClient(urlStr, apiKey string) (*qdrant.Client, error) {
	host, port, useTLS, err := parseQdrantURL(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}
	return client, nil
}

// parseQdrantURL returns the gRPC host and port for an HTTP URL.
func parseQdrantURL(urlStr string) (string, int, bool, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, err := strconv.Atoi(parsedURL.Port())
		if err == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	return host, port, parsedURL.Scheme == "https", nil
}

// CollectionName maps a session namespace to a Qdrant collection name.
func CollectionName(namespace string) string {
	var b strings.Builder
	b.WriteString("contractaid_")
	for _, r := range namespace {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// QdrantIndex stores one session's records in a dedicated collection.
// The collection is created on the first upsert, sized to its vectors.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string

	mu      sync.Mutex
	created bool
}

// NewQdrantIndex returns an index bound to the namespace's collection.
func NewQdrantIndex(client *qdrant.Client, namespace string) *QdrantIndex {
	return &QdrantIndex{
		client:     client,
		collection: CollectionName(namespace),
	}
}

// Collection returns the backing collection name.
func (s *QdrantIndex) Collection() string {
	return s.collection
}

// Upsert inserts or updates points and waits for them to be searchable.
func (s *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(records) == 0 {
		return nil
	}

	if err := s.ensureCollection(ctx, len(records[0].Vector)); err != nil {
		return &IndexError{Backend: "qdrant", Op: "create", Err: err}
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID()),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(segmentPayload(r.Segment)),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", s.collection, "count", len(records), "error", err)
		return &IndexError{Backend: "qdrant", Op: "upsert", Err: err}
	}

	logger.DebugContext(ctx, "upserted points", "collection", s.collection, "count", len(records))
	return nil
}

// Search fetches the FetchK nearest points with their vectors and ranks
// them by maximal marginal relevance.
func (s *QdrantIndex) Search(ctx context.Context, query []float32, params SearchParams) ([]document.Segment, error) {
	logger := contextutil.LoggerFromContext(ctx)

	params = params.normalize()

	s.mu.Lock()
	created := s.created
	s.mu.Unlock()
	if !created {
		return nil, nil
	}

	limit := uint64(params.FetchK)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", s.collection, "fetch_k", params.FetchK, "error", err)
		return nil, &IndexError{Backend: "qdrant", Op: "search", Err: err}
	}

	pool := make([]candidate, 0, len(scoredPoints))
	for _, sp := range scoredPoints {
		seg, ok := payloadSegment(convertPayloadToMap(sp.GetPayload()))
		if !ok {
			logger.WarnContext(ctx, "skipping point with incomplete payload", "collection", s.collection, "id", sp.GetId().GetUuid())
			continue
		}
		pool = append(pool, candidate{segment: seg, vector: pointVector(sp.GetVectors())})
	}

	results := rankMMR(query, pool, params)
	logger.DebugContext(ctx, "search completed", "collection", s.collection, "pool", len(pool), "results", len(results))
	return results, nil
}

// Drop deletes the session's collection.
func (s *QdrantIndex) Drop(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return &IndexError{Backend: "qdrant", Op: "drop", Err: err}
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return &IndexError{Backend: "qdrant", Op: "drop", Err: err}
		}
		contextutil.LoggerFromContext(ctx).InfoContext(ctx, "collection dropped", "collection", s.collection)
	}

	s.mu.Lock()
	s.created = false
	s.mu.Unlock()
	return nil
}

// ensureCollection creates the collection with the given vector size once.
// An existing collection left over from a crashed run is replaced.
func (s *QdrantIndex) ensureCollection(ctx context.Context, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created {
		return nil
	}
	if vectorSize <= 0 {
		return fmt.Errorf("invalid vector size %d", vectorSize)
	}

	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		logger.WarnContext(ctx, "replacing stale collection", "collection", s.collection)
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to delete stale collection: %w", err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.created = true
	logger.InfoContext(ctx, "collection created", "collection", s.collection, "vector_size", vectorSize)
	return nil
}

// segmentPayload converts a segment to point payload.
func segmentPayload(seg document.Segment) map[string]any {
	return map[string]any{
		payloadSourcePath:  seg.SourcePath,
		payloadSeqIndex:    seg.SequenceIndex,
		payloadStartOffset: seg.StartOffset,
		payloadEndOffset:   seg.EndOffset,
		payloadText:        seg.Text,
	}
}

// payloadSegment rebuilds a segment from converted payload.
func payloadSegment(meta map[string]any) (document.Segment, bool) {
	path, ok := meta[payloadSourcePath].(string)
	if !ok {
		return document.Segment{}, false
	}
	text, ok := meta[payloadText].(string)
	if !ok {
		return document.Segment{}, false
	}
	seq, ok := meta[payloadSeqIndex].(int64)
	if !ok {
		return document.Segment{}, false
	}
	start, _ := meta[payloadStartOffset].(int64)
	end, _ := meta[payloadEndOffset].(int64)

	return document.Segment{
		Text:          text,
		SourcePath:    path,
		SequenceIndex: int(seq),
		StartOffset:   int(start),
		EndOffset:     int(end),
	}, true
}

// pointVector extracts the dense vector of a scored point.
func pointVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData()
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
