package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
)

type investigatorFake struct {
	result *domain.Investigation
	err    error
}

func (f *investigatorFake) Investigate(context.Context, string) (*domain.Investigation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type ingestorFake struct {
	doc *domain.Document
	err error
}

func (f *ingestorFake) Upload(_ context.Context, filename, mimeType string, _ io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	doc.Filename = filename
	doc.MimeType = mimeType
	return &doc, nil
}

type readerFake struct {
	doc *domain.Document
	err error
}

func (f *readerFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type reportStoreFake struct {
	stored    *domain.StoredReport
	uploadErr error
	listed    []domain.StoredReport
	listErr   error
	uploaded  *domain.Report
}

func (f *reportStoreFake) UploadReport(_ context.Context, report *domain.Report) (*domain.StoredReport, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploaded = report
	return f.stored, nil
}

func (f *reportStoreFake) ListRecent(context.Context, int) ([]domain.StoredReport, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func newTestRouter(inv *investigatorFake, ing *ingestorFake, rd *readerFake, rs *reportStoreFake) http.Handler {
	return NewRouter(inv, ing, rd, rs, Options{Service: "api-test"}).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestInvestigateRejectedQueryEnvelope(t *testing.T) {
	inv := &investigatorFake{result: &domain.Investigation{
		Query: "pasta recipe",
		Guard: domain.GuardDecision{Admitted: false, Reason: "off topic"},
	}}
	handler := newTestRouter(inv, &ingestorFake{}, &readerFake{}, &reportStoreFake{})

	res := postJSON(t, handler, "/v1/investigate", map[string]string{"query": "pasta recipe"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if payload["error"] != true || payload["message"] != notRelevantMessage {
		t.Fatalf("unexpected envelope %+v", payload)
	}
	if payload["reason"] != "off topic" {
		t.Fatalf("expected guard reason, got %+v", payload)
	}
	if _, ok := payload["report"]; ok {
		t.Fatalf("rejected query must not include a report: %+v", payload)
	}
}

func TestInvestigateNoDocumentsEnvelope(t *testing.T) {
	inv := &investigatorFake{result: &domain.Investigation{
		Query:     "trace the wallet",
		Guard:     domain.GuardDecision{Admitted: true, Reason: "keyword"},
		Retrieval: &domain.RetrievalResult{Strategy: domain.StrategyMultiStep},
		Message:   "no relevant documents found",
	}}
	handler := newTestRouter(inv, &ingestorFake{}, &readerFake{}, &reportStoreFake{})

	res := postJSON(t, handler, "/v1/investigate", map[string]string{"query": "trace the wallet"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if payload["retrieval"] != noDocumentsAnswer || payload["error"] != true {
		t.Fatalf("unexpected envelope %+v", payload)
	}
}

func TestInvestigateSuccessArchivesReport(t *testing.T) {
	inv := &investigatorFake{result: &domain.Investigation{
		Query: "trace the wallet",
		Guard: domain.GuardDecision{Admitted: true, Reason: "keyword"},
		Retrieval: &domain.RetrievalResult{
			Documents: []domain.Evidence{{ID: "a", Text: "evidence", FinalScore: 0.8, Confidence: domain.ConfidenceHigh}},
			Strategy:  domain.StrategyMultiStep,
		},
		Report: &domain.Report{GeneratedText: "report body", InvestigatorQuery: "trace the wallet", EvidenceCount: 1},
	}}
	store := &reportStoreFake{stored: &domain.StoredReport{Key: "reports/x.json", URL: "https://presigned/x"}}
	handler := newTestRouter(inv, &ingestorFake{}, &readerFake{}, store)

	res := postJSON(t, handler, "/v1/investigate", map[string]string{"query": "trace the wallet", "user_id": "agent-7"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	storage, ok := payload["storage"].(map[string]any)
	if !ok || storage["file_path"] != "reports/x.json" {
		t.Fatalf("expected storage block, got %+v", payload)
	}
	if store.uploaded == nil || store.uploaded.UserID != "agent-7" {
		t.Fatalf("expected user id attached before archival, got %+v", store.uploaded)
	}
	report, ok := payload["report"].(map[string]any)
	if !ok || report["generated_report"] != "report body" {
		t.Fatalf("unexpected report %+v", payload)
	}
}

func TestInvestigateStorageFailureIsNonFatal(t *testing.T) {
	inv := &investigatorFake{result: &domain.Investigation{
		Query:     "trace the wallet",
		Guard:     domain.GuardDecision{Admitted: true, Reason: "keyword"},
		Retrieval: &domain.RetrievalResult{Documents: []domain.Evidence{{ID: "a"}}, Strategy: domain.StrategySingleStep},
		Report:    &domain.Report{GeneratedText: "report body"},
	}}
	store := &reportStoreFake{uploadErr: errors.New("bucket down")}
	handler := newTestRouter(inv, &ingestorFake{}, &readerFake{}, store)

	res := postJSON(t, handler, "/v1/investigate", map[string]string{"query": "trace the wallet"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 despite storage failure, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if _, ok := payload["storage"]; ok {
		t.Fatalf("failed archival must omit storage block: %+v", payload)
	}
	if payload["report"] == nil {
		t.Fatalf("report must survive storage failure: %+v", payload)
	}
}

func TestInvestigateEmbeddingFailureMapsToBadGateway(t *testing.T) {
	inv := &investigatorFake{err: domain.WrapError(domain.ErrEmbedding, "embed query", errors.New("api down"))}
	handler := newTestRouter(inv, &ingestorFake{}, &readerFake{}, &reportStoreFake{})

	res := postJSON(t, handler, "/v1/investigate", map[string]string{"query": "trace the wallet"})
	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
}

func TestInvestigateValidation(t *testing.T) {
	handler := newTestRouter(&investigatorFake{}, &ingestorFake{}, &readerFake{}, &reportStoreFake{})

	res := postJSON(t, handler, "/v1/investigate", map[string]string{"query": "   "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank query, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/investigate", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rec.Code)
	}
}

func TestListReports(t *testing.T) {
	store := &reportStoreFake{listed: []domain.StoredReport{{Key: "reports/a.json", URL: "https://presigned/a"}}}
	handler := newTestRouter(&investigatorFake{}, &ingestorFake{}, &readerFake{}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/reports?limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	reports, ok := payload["reports"].([]any)
	if !ok || len(reports) != 1 {
		t.Fatalf("unexpected reports payload %+v", payload)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/reports?limit=abc", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}
}

func TestUploadDocument(t *testing.T) {
	ing := &ingestorFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusUploaded}}
	handler := newTestRouter(&investigatorFake{}, ing, &readerFake{}, &reportStoreFake{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "case_notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("evidence text")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/corpus/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	payload := decodeBody(t, res)
	if payload["id"] != "doc-1" || payload["filename"] != "case_notes.txt" {
		t.Fatalf("unexpected document %+v", payload)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	rd := &readerFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get corpus document", errors.New("id missing"))}
	handler := newTestRouter(&investigatorFake{}, &ingestorFake{}, rd, &reportStoreFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/corpus/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&investigatorFake{}, &ingestorFake{}, &readerFake{}, &reportStoreFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
