package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"medilens.app/analysis-server/internal/analytics"
	"medilens.app/analysis-server/internal/core"
	"medilens.app/analysis-server/internal/metrics"
	"medilens.app/analysis-server/internal/report"
	"medilens.app/analysis-server/internal/store"
)

// maxUploadBytes bounds one uploaded document. Model providers reject image
// payloads well below this anyway.
const maxUploadBytes = 15 << 20

type APIHandler struct {
	analysis       *core.AnalysisService
	reports        store.Store
	trendThreshold int
}

func NewAPIHandler(analysis *core.AnalysisService, reports store.Store, trendThreshold int) *APIHandler {
	return &APIHandler{
		analysis:       analysis,
		reports:        reports,
		trendThreshold: trendThreshold,
	}
}

// CreateAnalysisHandler accepts a multipart upload (file, kind, subject_name),
// runs the pipeline, persists the record, and returns it.
func (h *APIHandler) CreateAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart request: "+err.Error(), http.StatusBadRequest)
		return
	}

	kind := report.Kind(r.FormValue("kind"))
	if !kind.Valid() {
		http.Error(w, "Field 'kind' must be 'prescription' or 'scan'", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}

	input := core.AnalysisInput{
		FileName:    header.Filename,
		MIMEType:    detectMIMEType(header, data),
		Data:        data,
		Kind:        kind,
		SubjectName: r.FormValue("subject_name"),
	}

	started := time.Now()
	rec, err := h.analysis.Analyze(r.Context(), input, func(p core.Phase) {
		log.Printf("Analysis of %s: %s", header.Filename, p)
	})
	if err != nil {
		if errors.Is(err, core.ErrEncoding) {
			metrics.RecordFailure("encoding")
			http.Error(w, "File could not be encoded: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
		metrics.RecordFailure("internal")
		log.Printf("Error analyzing %s: %v", header.Filename, err)
		http.Error(w, "Failed to analyze document", http.StatusInternalServerError)
		return
	}

	if err := h.reports.Put(r.Context(), rec); err != nil {
		// A completed analysis that cannot be saved must fail visibly, not
		// silently drop the record.
		metrics.RecordFailure("storage")
		log.Printf("Error saving report %s: %v", rec.ID, err)
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrStoreUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "Failed to save analysis report", status)
		return
	}

	metrics.RecordAnalysis(string(rec.Kind), string(rec.Status), time.Since(started))
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, rec)
}

// ListAnalysesHandler returns every stored record, newest first.
func (h *APIHandler) ListAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.reports.GetAll(r.Context())
	if err != nil {
		log.Printf("Error listing reports: %v", err)
		http.Error(w, "Failed to list analysis reports", http.StatusInternalServerError)
		return
	}
	analytics.SortNewestFirst(records)
	writeJSON(w, records)
}

// DashboardHandler returns the derived analytics snapshot.
func (h *APIHandler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.reports.GetAll(r.Context())
	if err != nil {
		log.Printf("Error loading reports for dashboard: %v", err)
		http.Error(w, "Failed to compute dashboard", http.StatusInternalServerError)
		return
	}
	analytics.SortNewestFirst(records)
	snap := analytics.Summarize(records, analytics.Options{TrendThreshold: h.trendThreshold})
	writeJSON(w, snap)
}

// ClearAnalysesHandler wipes the whole store. Per-record deletion is not
// exposed at this layer.
func (h *APIHandler) ClearAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.reports.Clear(r.Context()); err != nil {
		log.Printf("Error clearing reports: %v", err)
		http.Error(w, "Failed to clear analysis reports", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func detectMIMEType(header *multipart.FileHeader, data []byte) string {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
