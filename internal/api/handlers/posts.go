package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dom/social-backend/internal/api/middleware"
	"github.com/dom/social-backend/internal/domain"
	"github.com/dom/social-backend/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PostHandler struct {
	postService *service.PostService
	logger      *zap.Logger
}

func NewPostHandler(postService *service.PostService, logger *zap.Logger) *PostHandler {
	return &PostHandler{postService: postService, logger: logger.Named("post_handler")}
}

type CreatePostRequest struct {
	Content  string   `json:"content"`
	MediaIDs []string `json:"mediaIds"`
}

type PostResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"mediaIds"`
	CreatedAt time.Time `json:"createdAt"`
}

type PostListResponse struct {
	Posts       []PostResponse `json:"posts"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	TotalPosts  int64          `json:"totalPosts"`
}

func newPostResponse(post *domain.Post) PostResponse {
	mediaIDs := []string(post.MediaIDs)
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	return PostResponse{
		ID:        post.ID.String(),
		UserID:    post.UserID.String(),
		Content:   post.Content,
		MediaIDs:  mediaIDs,
		CreatedAt: post.CreatedAt,
	}
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	for _, id := range req.MediaIDs {
		if _, err := uuid.Parse(id); err != nil {
			http.Error(w, "Invalid media id", http.StatusBadRequest)
			return
		}
	}

	post, err := h.postService.Create(r.Context(), service.CreatePostInput{
		UserID:   userID,
		Content:  req.Content,
		MediaIDs: req.MediaIDs,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newPostResponse(post))
}

func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.postService.List(r.Context(), page, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := PostListResponse{
		Posts:       make([]PostResponse, 0, len(result.Posts)),
		CurrentPage: result.Page,
		TotalPages:  result.TotalPages,
		TotalPosts:  result.Total,
	}
	for _, post := range result.Posts {
		resp.Posts = append(resp.Posts, newPostResponse(post))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid post id", http.StatusBadRequest)
		return
	}

	post, err := h.postService.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newPostResponse(post))
}

func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid post id", http.StatusBadRequest)
		return
	}

	if err := h.postService.Delete(r.Context(), id, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
