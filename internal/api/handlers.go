// Package api exposes HTTP handlers for the form-coach service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"example.com/formcoach/internal/domain"
)

const (
	videoField       = "video"
	multipartMemory  = 32 << 20
	maxChatBodyBytes = 1 << 20
)

// Option configures optional behaviour for the Handler.
type Option func(*Handler)

// WithLogger overrides the handler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	uploads *UploadStore
	logger  zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, uploads *UploadStore, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		uploads: uploads,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/analyses", h.analyses)
	mux.HandleFunc("/v1/chat", h.chat)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) analyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAnalysis(w, r)
	case http.MethodGet:
		h.listAnalyses(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "video exceeds the upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "validation_failed", "multipart form with a video file is required")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(videoField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "no video file uploaded")
		return
	}
	defer file.Close()

	path, err := h.uploads.Save(file, header.Filename)
	if err != nil {
		if errors.Is(err, ErrUnsupportedVideo) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("storing upload failed")
		writeError(w, http.StatusInternalServerError, "server_error", "unable to store upload")
		return
	}

	record, err := h.service.RunJob(r.Context(), path, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		case errors.Is(err, domain.ErrPersistence):
			h.logger.Error().Err(err).Str("path", path).Msg("analysis completed but was not persisted")
			writeJSON(w, http.StatusInternalServerError, PersistenceFailedResponse{
				Type:     "persistence_failed",
				Detail:   "analysis completed but could not be saved",
				Analysis: record.AnalysisResult,
			})
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, toAnalysisView(record))
}

func (h *Handler) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := domain.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]AnalysisView, 0, len(records))
	for _, record := range records {
		items = append(items, toAnalysisView(record))
	}
	writeJSON(w, http.StatusOK, ListAnalysesResponse{Items: items})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	reply, err := h.service.Chat(r.Context(), domain.ChatTurn{
		Message:         req.Message,
		AnalysisContext: req.AnalysisContext,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		case errors.Is(err, domain.ErrCompletion):
			h.logger.Warn().Err(err).Msg("chat completion failed")
			writeError(w, http.StatusBadGateway, "upstream_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
}

// AnalysisView is the response shape for one analysis: the result fields plus record metadata.
type AnalysisView struct {
	ID string `json:"id"`
	domain.AnalysisResult
	OriginalName string    `json:"originalName"`
	Outcome      string    `json:"analysisOutcome"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ListAnalysesResponse packages recent analyses, newest first.
type ListAnalysesResponse struct {
	Items []AnalysisView `json:"items"`
}

// PersistenceFailedResponse carries the computed analysis alongside the error.
type PersistenceFailedResponse struct {
	Type     string                `json:"type"`
	Detail   string                `json:"detail"`
	Analysis domain.AnalysisResult `json:"analysis"`
}

// ChatRequest is the payload for POST /v1/chat.
type ChatRequest struct {
	Message         string                 `json:"message"`
	AnalysisContext *domain.AnalysisResult `json:"analysisContext,omitempty"`
}

// ChatResponse wraps the provider's raw text.
type ChatResponse struct {
	Response string `json:"response"`
}

func toAnalysisView(record domain.WorkoutAnalysisRecord) AnalysisView {
	result := record.AnalysisResult
	if result.Feedback == nil {
		result.Feedback = []string{}
	}
	return AnalysisView{
		ID:             record.ID,
		AnalysisResult: result,
		OriginalName:   record.OriginalName,
		Outcome:        string(record.Outcome),
		CreatedAt:      record.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
