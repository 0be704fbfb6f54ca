package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dom/social-backend/internal/service"
	"go.uber.org/zap"
)

type SearchHandler struct {
	searchService *service.SearchService
	logger        *zap.Logger
}

func NewSearchHandler(searchService *service.SearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{searchService: searchService, logger: logger.Named("search_handler")}
}

type SearchResultResponse struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, "Query parameter is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	docs, err := h.searchService.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := make([]SearchResultResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, SearchResultResponse{
			PostID:    d.PostID.String(),
			UserID:    d.UserID.String(),
			Content:   d.Content,
			CreatedAt: d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
