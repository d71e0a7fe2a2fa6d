package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/nkosei/brightpath-backend/internal/logger"
	"github.com/nkosei/brightpath-backend/internal/platform/vector"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured upsertRequest
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/brightpath/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/brightpath/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	meta := map[string]any{"content_type": "chunk"}
	err := s.Upsert(context.Background(), "course-42", []vector.Vector{
		{ID: "chunk-1", Values: []float32{1, 2, 3}, Metadata: meta},
		{ID: "chunk-2", Values: []float32{4, 5, 6}, Metadata: map[string]any{"content_type": "summary"}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(captured.Points) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(captured.Points))
	}
	first := captured.Points[0]
	if first.ID != s.pointID("bp:course-42", "chunk-1") {
		t.Fatalf("point id mismatch: got=%v", first.ID)
	}
	if first.Payload[payloadNamespaceKey] != "bp:course-42" {
		t.Fatalf("payload namespace: want=%q got=%v", "bp:course-42", first.Payload[payloadNamespaceKey])
	}
	if first.Payload[payloadVectorIDKey] != "chunk-1" {
		t.Fatalf("payload vector id: want=%q got=%v", "chunk-1", first.Payload[payloadVectorIDKey])
	}

	if _, exists := meta[payloadNamespaceKey]; exists {
		t.Fatalf("input metadata mutated: namespace key should not exist")
	}
	if _, exists := meta[payloadVectorIDKey]; exists {
		t.Fatalf("input metadata mutated: vector id key should not exist")
	}
}

func TestVectorStoreUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected for invalid vectors")
		return nil, nil
	})

	err := s.Upsert(context.Background(), "course-42", []vector.Vector{
		{ID: "chunk-1", Values: []float32{1, 2}},
	})
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErrTyped.Code != OperationErrorValidation {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidation, opErrTyped.Code)
	}
}

func TestVectorStoreQueryScopesNamespaceAndNormalizesScores(t *testing.T) {
	var captured searchRequest
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/brightpath/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/brightpath/points/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{
				"id":    "ignored-id-b",
				"score": 0.90,
				"payload": map[string]any{
					payloadVectorIDKey: "chunk-b",
				},
			},
			{
				"id":    "ignored-id-a",
				"score": 0.10,
				"payload": map[string]any{
					payloadVectorIDKey: "chunk-a",
				},
			},
		}), nil
	})
	s.distance = "euclid"

	matches, err := s.QueryMatches(context.Background(), "course-42", []float32{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches length: want=2 got=%d", len(matches))
	}
	if matches[0].ID != "chunk-a" || matches[1].ID != "chunk-b" {
		t.Fatalf("match ordering mismatch: got=%v", []string{matches[0].ID, matches[1].ID})
	}
	if !(matches[0].Score > matches[1].Score) {
		t.Fatalf("expected normalized descending scores, got=%v", []float64{matches[0].Score, matches[1].Score})
	}

	if !captured.WithPayload || captured.WithVector {
		t.Fatalf("payload flags: with_payload=%v with_vector=%v", captured.WithPayload, captured.WithVector)
	}
	if len(captured.Filter.Must) != 1 {
		t.Fatalf("filter conditions: want=1 got=%d", len(captured.Filter.Must))
	}
	cond := captured.Filter.Must[0]
	if cond.Key != payloadNamespaceKey || cond.Match.Value != "bp:course-42" {
		t.Fatalf("namespace condition: got key=%q value=%q", cond.Key, cond.Match.Value)
	}
}

func TestVectorStoreQueryEnvelopeError(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		payload := map[string]any{
			"result": nil,
			"status": map[string]any{"error": "collection vanished"},
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal response: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(raw)),
		}, nil
	})

	_, err := s.QueryMatches(context.Background(), "course-42", []float32{1, 2, 3}, 3)
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErrTyped.Code != OperationErrorQueryFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorQueryFailed, opErrTyped.Code)
	}
}

func TestVectorStoreQueryFallsBackToPointID(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, []map[string]any{
			{"id": "raw-point-1", "score": 0.5, "payload": map[string]any{}},
			{"id": 7, "score": 0.4, "payload": nil},
		}), nil
	})

	matches, err := s.QueryMatches(context.Background(), "course-42", []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches length: want=2 got=%d", len(matches))
	}
	if matches[0].ID != "raw-point-1" || matches[1].ID != "7" {
		t.Fatalf("fallback ids: got=%v", []string{matches[0].ID, matches[1].ID})
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("query", "timeout", context.DeadlineExceeded)
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErrTyped.Code != OperationErrorTimeout {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTimeout, opErrTyped.Code)
	}
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("query", "transport", fmt.Errorf("boom"))
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErrTyped.Code != OperationErrorTransportFailed {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTransportFailed, opErrTyped.Code)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *vectorStore {
	t.Helper()
	client := &http.Client{
		Transport: roundTripFunc(roundTrip),
	}
	return &vectorStore{
		log:      newTestLogger(t),
		cfg:      Config{Collection: "brightpath", VectorDim: 3},
		baseURL:  "http://qdrant.local",
		nsPrefix: "bp",
		http:     client,
		distance: "cosine",
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
