package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/w-h-a/docqa/chunker"
	"github.com/w-h-a/docqa/errs"
	"github.com/w-h-a/docqa/store"
	getsafe "github.com/w-h-a/docqa/util/get_safe"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultLocation = "http://localhost:6333"

	batchSize = 256
	// qdrant scores float32 vectors, so equal vectors can differ in the last bits
	tieEpsilon = 1e-6
	// metaPrefix marks collection metadata copied onto every point, qdrant
	// has no place for it on the collection itself
	metaPrefix = "collection."
)

type qdrantStore struct {
	options store.Options
	client  *http.Client
}

func (s *qdrantStore) Build(ctx context.Context, name string, meta map[string]string, entries []store.Entry) error {
	if err := store.Validate(entries); err != nil {
		return err
	}

	if err := s.Drop(ctx, name); err != nil {
		return err
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     len(entries[0].Vector),
			"distance": "Cosine",
		},
	}

	if err := s.call(ctx, http.MethodPut, collectionPath(name), create, nil); err != nil {
		return errs.IndexBuild("create %s: %v", name, err)
	}

	for start := 0; start < len(entries); start += batchSize {
		end := min(start+batchSize, len(entries))

		points := make([]qdrantPoint, 0, end-start)
		for _, e := range entries[start:end] {
			points = append(points, toPoint(e, meta))
		}

		path := collectionPath(name) + "/points?wait=true"
		if err := s.call(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
			if dropErr := s.Drop(context.WithoutCancel(ctx), name); dropErr != nil {
				slog.ErrorContext(ctx, "failed to drop partial collection", "collection", name, "error", dropErr)
			}
			return errs.IndexBuild("upsert %s: %v", name, err)
		}
	}

	return nil
}

func (s *qdrantStore) Search(ctx context.Context, name string, vector []float32, k int) ([]store.Match, error) {
	if k < 1 {
		return nil, nil
	}

	rsp, err := s.search(ctx, name, vector, k, nil)
	if err != nil {
		return nil, err
	}

	// qdrant picks an arbitrary member of a tie at the cut, so everything
	// scoring at least the k-th score is fetched and Rank makes the cut
	if len(rsp) == k {
		var count qdrantCount
		if err := s.call(ctx, http.MethodPost, collectionPath(name)+"/points/count", map[string]any{"exact": true}, &count); err != nil {
			return nil, err
		}

		if count.Count > k {
			threshold := rsp[k-1].Score - tieEpsilon
			if rsp, err = s.search(ctx, name, vector, count.Count, &threshold); err != nil {
				return nil, err
			}
		}
	}

	matches := make([]store.Match, 0, len(rsp))
	for _, p := range rsp {
		matches = append(matches, store.Match{
			Chunk: toChunk(p.Payload),
			Score: float32(p.Score),
		})
	}

	return store.Rank(matches, k), nil
}

func (s *qdrantStore) search(ctx context.Context, name string, vector []float32, limit int, threshold *float64) ([]qdrantScoredPoint, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold != nil {
		req["score_threshold"] = *threshold
	}

	var rsp []qdrantScoredPoint
	if err := s.call(ctx, http.MethodPost, collectionPath(name)+"/points/search", req, &rsp); err != nil {
		return nil, err
	}

	return rsp, nil
}

func (s *qdrantStore) Describe(ctx context.Context, name string) (store.Collection, error) {
	var count qdrantCount
	if err := s.call(ctx, http.MethodPost, collectionPath(name)+"/points/count", map[string]any{"exact": true}, &count); err != nil {
		return store.Collection{}, err
	}

	meta := map[string]string{}

	var points []qdrantPoint
	req := map[string]any{
		"ids":          []uint64{0},
		"with_payload": true,
	}
	if err := s.call(ctx, http.MethodPost, collectionPath(name)+"/points", req, &points); err != nil {
		return store.Collection{}, err
	}

	if len(points) > 0 {
		for k, v := range getsafe.Strings(points[0].Payload) {
			if key, ok := strings.CutPrefix(k, metaPrefix); ok {
				meta[key] = v
			}
		}
	}

	return store.Collection{
		Name:     name,
		Count:    count.Count,
		Metadata: meta,
	}, nil
}

func (s *qdrantStore) Drop(ctx context.Context, name string) error {
	err := s.call(ctx, http.MethodDelete, collectionPath(name), nil, nil)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// call sends req as JSON and decodes the envelope's result into rsp. A 404
// becomes store.ErrNotFound.
func (s *qdrantStore) call(ctx context.Context, method string, path string, req any, rsp any) error {
	var buf io.Reader
	if req != nil {
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, s.options.Location+path, buf)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")

	if len(s.options.ApiKey) > 0 {
		request.Header.Set("api-key", s.options.ApiKey)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}

	if response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}

	if response.StatusCode >= 400 {
		return &statusError{code: response.StatusCode, body: string(payload)}
	}

	if len(payload) == 0 {
		return nil
	}

	var envelope qdrantEnvelope[json.RawMessage]
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return err
	}

	if envelope.Status.State == "error" {
		return errors.New(envelope.Status.Error)
	}

	if rsp != nil && len(envelope.Result) > 0 {
		return json.Unmarshal(envelope.Result, rsp)
	}

	return nil
}

func toPoint(e store.Entry, meta map[string]string) qdrantPoint {
	payload := map[string]any{
		"content": e.Chunk.Content,
		"page":    e.Chunk.Page,
		"offset":  e.Chunk.Offset,
		"index":   e.Chunk.Index,
	}
	for k, v := range meta {
		payload[metaPrefix+k] = v
	}

	return qdrantPoint{
		Id:      uint64(e.Chunk.Index),
		Vector:  e.Vector,
		Payload: payload,
	}
}

func toChunk(payload map[string]any) chunker.Chunk {
	return chunker.Chunk{
		Content: getsafe.String(payload, "content"),
		Page:    getsafe.Int(payload, "page"),
		Offset:  getsafe.Int(payload, "offset"),
		Index:   getsafe.Int(payload, "index"),
	}
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func NewStore(opts ...store.Option) (store.Store, error) {
	options := store.NewOptions(opts...)

	if len(options.Location) == 0 {
		options.Location = DefaultLocation
	}
	options.Location = strings.TrimRight(options.Location, "/")

	s := &qdrantStore{
		options: options,
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	if err := s.call(options.Context, http.MethodGet, "/collections", nil, nil); err != nil {
		return nil, errs.InvalidConfig("reach qdrant at %s: %v", options.Location, err)
	}

	return s, nil
}
