package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dom/social-backend/internal/api/middleware"
	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxUploadSize = 10 << 20

// FileOpener serves stored objects back by public id.
type FileOpener interface {
	Open(publicID string) (*os.File, error)
}

type MediaHandler struct {
	mediaService *service.MediaService
	files        FileOpener
	logger       *zap.Logger
}

func NewMediaHandler(mediaService *service.MediaService, files FileOpener, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{mediaService: mediaService, files: files, logger: logger.Named("media_handler")}
}

type RegisterMediaRequest struct {
	PublicID     string `json:"publicId"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	URL          string `json:"url"`
}

type MediaResponse struct {
	ID           string    `json:"id"`
	PublicID     string    `json:"publicId"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	URL          string    `json:"url"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newMediaResponse(m *domain.Media) MediaResponse {
	return MediaResponse{
		ID:           m.ID.String(),
		PublicID:     m.PublicID,
		OriginalName: m.OriginalName,
		MimeType:     m.MimeType,
		URL:          m.URL,
		UserID:       m.UserID.String(),
		CreatedAt:    m.CreatedAt,
	}
}

// Register records an object that was uploaded elsewhere.
func (h *MediaHandler) Register(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RegisterMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	media, err := h.mediaService.Register(r.Context(), service.RegisterMediaInput{
		UserID:       userID,
		PublicID:     req.PublicID,
		OriginalName: req.OriginalName,
		MimeType:     req.MimeType,
		URL:          req.URL,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newMediaResponse(media))
}

// Upload stores the raw request body. The file name comes from the
// X-File-Name header and the type from Content-Type.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	media, err := h.mediaService.Upload(r.Context(), service.UploadInput{
		UserID:       userID,
		OriginalName: r.Header.Get("X-File-Name"),
		MimeType:     r.Header.Get("Content-Type"),
		Body:         body,
	})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newMediaResponse(media))
}

func (h *MediaHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	items, err := h.mediaService.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := make([]MediaResponse, 0, len(items))
	for _, m := range items {
		resp = append(resp, newMediaResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	f, err := h.files.Open(chi.URLParam(r, "publicID"))
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), io.ReadSeeker(f))
}
