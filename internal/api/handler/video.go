package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
	"github.com/vellum-stream/pipeline/internal/usecase"
)

// createSessionRequest is the body of POST /api/v1/video/create.
type createSessionRequest struct {
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize"`
	Type        string `json:"type"`
	CallbackURL string `json:"callbackUrl"`
	S3Path      string `json:"s3Path"`
	UploadToS3  bool   `json:"uploadToS3"`
}

type createSessionResponse struct {
	UploadID  string `json:"uploadId"`
	UploadURL string `json:"uploadUrl"`
	VideoURL  string `json:"videoUrl"`
	ExpiresIn int    `json:"expiresIn"`
	MP4URL    string `json:"mp4Url,omitempty"`
}

type uploadAcceptedResponse struct {
	UploadID string `json:"uploadId"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

type callbackStatusResponse struct {
	CallbackURL         string     `json:"callbackUrl"`
	CallbackStatus      string     `json:"callbackStatus"`
	CallbackRetryCount  int        `json:"callbackRetryCount"`
	CallbackLastAttempt *time.Time `json:"callbackLastAttempt,omitempty"`
}

// VideoHandler serves the five JSON routes of the pipeline's HTTP surface.
// The resumable (TUS) route is served by a separate handler
// (infrastructure/ingress.NewTUSHandler), mounted alongside this one.
type VideoHandler struct {
	sessions  usecase.SessionService
	ingress   *usecase.IngressService
	repo      repository.VideoRepository
	uploadDir string
}

// NewVideoHandler constructs a VideoHandler. uploadDir is where direct
// (non-resumable) upload bodies are written before the transcode task is
// published; it is the same UPLOAD_PATH the TUS store uses.
func NewVideoHandler(sessions usecase.SessionService, ingress *usecase.IngressService, repo repository.VideoRepository, uploadDir string) *VideoHandler {
	return &VideoHandler{sessions: sessions, ingress: ingress, repo: repo, uploadDir: uploadDir}
}

// Create handles POST /api/v1/video/create.
func (h *VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out, err := h.sessions.CreateSession(r.Context(), usecase.CreateSessionInput{
		Filename:    req.Filename,
		Filesize:    req.Filesize,
		Type:        req.Type,
		CallbackURL: req.CallbackURL,
		S3Path:      req.S3Path,
		UploadToS3:  req.UploadToS3,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	Success(w, http.StatusCreated, "upload session created", createSessionResponse{
		UploadID:  out.UploadID,
		UploadURL: out.UploadURL,
		VideoURL:  out.VideoURL,
		ExpiresIn: out.ExpiresIn,
		MP4URL:    out.MP4URL,
	})
}

// Upload handles POST /api/v1/video/{id}/upload, the direct (non-resumable)
// ingress path: a single multipart body, capped at
// usecase.MaxDirectUploadBytes before it ever reaches the validator.
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	uploadID := chi.URLParam(r, "id")

	record, err := h.repo.Get(r.Context(), uploadID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, usecase.MaxDirectUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		Error(w, http.StatusBadRequest, "multipart body missing or exceeds the size ceiling")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if err := h.ingress.ReceiveDirect(r.Context(), uploadID, file, h.uploadDir); err != nil {
		h.handleServiceError(w, err)
		return
	}

	Success(w, http.StatusOK, "upload received", uploadAcceptedResponse{
		UploadID: uploadID,
		Filename: record.Filename,
		Status:   string(model.StatusProcessing),
	})
}

// Status handles GET /api/v1/video/{id}/status.
func (h *VideoHandler) Status(w http.ResponseWriter, r *http.Request) {
	record, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	Success(w, http.StatusOK, "", record)
}

// CallbackStatus handles GET /api/v1/video/{id}/callback-status.
func (h *VideoHandler) CallbackStatus(w http.ResponseWriter, r *http.Request) {
	record, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	Success(w, http.StatusOK, "", callbackStatusResponse{
		CallbackURL:         record.CallbackURL,
		CallbackStatus:      string(record.CallbackStatus),
		CallbackRetryCount:  record.CallbackRetryCount,
		CallbackLastAttempt: record.CallbackLastAttempt,
	})
}

// List handles GET /api/v1/videos.
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.ListAll(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list video records")
		return
	}
	Success(w, http.StatusOK, "", records)
}

func (h *VideoHandler) handleServiceError(w http.ResponseWriter, err error) {
	var valErrs usecase.ValidationErrors
	switch {
	case errors.Is(err, repository.ErrVideoNotFound):
		Error(w, http.StatusNotFound, "video record not found")
	case errors.Is(err, repository.ErrInvalidState):
		Error(w, http.StatusConflict, "video record is not in a state that accepts this operation")
	case errors.As(err, &valErrs):
		Error(w, http.StatusBadRequest, valErrs.Error())
	case errors.Is(err, usecase.ErrInvalidS3Path):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "an unexpected error occurred")
	}
}
