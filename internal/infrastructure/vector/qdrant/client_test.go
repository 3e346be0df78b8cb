package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

func TestIndexChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var upsertBody struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/case_evidence":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/case_evidence/points":
			if err := json.NewDecoder(r.Body).Decode(&upsertBody); err != nil {
				t.Fatalf("decode upsert body: %v", err)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "case_evidence")
	doc := &domain.Document{ID: "doc-1", Filename: "chain_analysis.txt"}
	chunks := []string{"a", "b"}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.IndexChunks(context.Background(), doc, chunks, vectors); err != nil {
		t.Fatalf("first IndexChunks() error = %v", err)
	}
	if err := client.IndexChunks(context.Background(), doc, chunks, vectors); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(upsertBody.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(upsertBody.Points))
	}
	payload := upsertBody.Points[1].Payload
	if payload["doc_id"] != "doc-1" || payload["file_name"] != "chain_analysis.txt" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload["chunk_index"] != float64(1) || payload["total_chunks"] != float64(2) {
		t.Fatalf("unexpected chunk bookkeeping %+v", payload)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/case_evidence" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "case_evidence")
	doc := &domain.Document{ID: "doc-1", Filename: "a.txt"}
	err := client.IndexChunks(context.Background(), doc, []string{"a"}, [][]float32{{0.1, 0.2}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got == "" || !strings.Contains(got, "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestSearchMapsHitsToEvidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/case_evidence/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p-1","score":0.91,"payload":{"text":"mixer deposit","doc_id":"doc-1","file_name":"a.txt","chunk_index":0}},
			{"id":42,"score":0.55,"payload":{"text":"exchange cashout"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "case_evidence")
	hits, err := client.Search(context.Background(), []float32{0.1}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "p-1" || hits[0].Text != "mixer deposit" || hits[0].VectorScore != 0.91 {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
	if hits[0].Metadata["doc_id"] != "doc-1" {
		t.Fatalf("expected payload metadata, got %+v", hits[0].Metadata)
	}
	if _, ok := hits[0].Metadata["text"]; ok {
		t.Fatalf("text must not duplicate into metadata: %+v", hits[0].Metadata)
	}
	if hits[1].ID != "42" {
		t.Fatalf("expected numeric id normalized to string, got %q", hits[1].ID)
	}
}

func TestSearchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "case_evidence")
	if _, err := client.Search(context.Background(), []float32{0.1}, 5); err == nil {
		t.Fatalf("expected error")
	}
}
