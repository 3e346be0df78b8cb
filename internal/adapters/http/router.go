package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/mkovalev/crypto-investigator/internal/core/domain"
	"github.com/mkovalev/crypto-investigator/internal/core/ports"
	"github.com/mkovalev/crypto-investigator/internal/observability/metrics"
)

const (
	notRelevantMessage = "Query is not relevant to crypto crime investigation"
	noDocumentsAnswer  = "No relevant documents found"

	defaultReportListLimit = 20
	backpressureWait       = 5 * time.Second
)

type Options struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	Metrics        *metrics.HTTPServerMetrics
}

type Router struct {
	investigator ports.Investigator
	ingestor     ports.DocumentIngestor
	documents    ports.DocumentReader
	reports      ports.ReportStore
	opts         Options
}

func NewRouter(
	investigator ports.Investigator,
	ingestor ports.DocumentIngestor,
	documents ports.DocumentReader,
	reports ports.ReportStore,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	return &Router{
		investigator: investigator,
		ingestor:     ingestor,
		documents:    documents,
		reports:      reports,
		opts:         opts,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		MaxAge:         300,
	}))
	if rt.opts.Metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.opts.Metrics.Middleware(rt.opts.Service, next)
		})
	}
	r.Use(func(next http.Handler) http.Handler {
		return rateLimitMiddleware(next, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	})
	r.Use(func(next http.Handler) http.Handler {
		return backpressureMiddleware(next, rt.opts.MaxConcurrent, backpressureWait)
	})

	r.Get("/healthz", rt.healthz)
	r.Post("/v1/investigate", rt.investigate)
	r.Get("/v1/reports", rt.listReports)
	r.Post("/v1/corpus/documents", rt.uploadDocument)
	r.Get("/v1/corpus/documents/{documentID}", rt.getDocumentByID)
	if rt.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.opts.Metrics.Handler())
	}

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) investigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string `json:"query"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	start := time.Now()
	inv, err := rt.investigator.Investigate(r.Context(), req.Query)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if m := rt.opts.Metrics; m != nil {
		m.RecordGuardDecision(rt.opts.Service, inv.Guard.Admitted)
	}

	if !inv.Guard.Admitted {
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   inv.Query,
			"error":   true,
			"message": notRelevantMessage,
			"reason":  inv.Guard.Reason,
		})
		return
	}

	if m := rt.opts.Metrics; m != nil {
		count := 0
		strategy := ""
		if inv.Retrieval != nil {
			count = len(inv.Retrieval.Documents)
			strategy = string(inv.Retrieval.Strategy)
		}
		m.RecordInvestigation(rt.opts.Service, strategy, count, time.Since(start))
	}

	if inv.Report == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"query":     inv.Query,
			"retrieval": noDocumentsAnswer,
			"error":     true,
		})
		return
	}

	inv.Report.UserID = strings.TrimSpace(req.UserID)
	if inv.Report.Degraded {
		if m := rt.opts.Metrics; m != nil {
			m.RecordDegradedReport(rt.opts.Service)
		}
	}

	response := map[string]any{
		"query":     inv.Query,
		"retrieval": inv.Retrieval,
		"report":    inv.Report,
	}

	// Archiving is best-effort; a storage outage must not cost the
	// investigator their generated report.
	if rt.reports != nil {
		stored, storeErr := rt.reports.UploadReport(r.Context(), inv.Report)
		if storeErr != nil {
			slog.Error("report archival failed", "error", storeErr)
		} else {
			response["storage"] = stored
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) listReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	reports, err := rt.reports.ListRecent(r.Context(), limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if reports == nil {
		reports = []domain.StoredReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "documentID")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.documents.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
