package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIClient handles HTTP communication with the backend
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL + "/api/v1",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Response types matching backend

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"mediaIds"`
	CreatedAt time.Time `json:"createdAt"`
}

type PostList struct {
	Posts       []Post `json:"posts"`
	CurrentPage int    `json:"currentPage"`
	TotalPages  int    `json:"totalPages"`
	TotalPosts  int64  `json:"totalPosts"`
}

type SearchResult struct {
	PostID  string `json:"postId"`
	Content string `json:"content"`
}

// StatusError carries the status of a failed call so callers can tell an
// expected rejection from a broken backend.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.Status, e.Body)
}

// RegisterUser creates a new user account
func (c *APIClient) RegisterUser(baseName string) (*AuthResponse, error) {
	username := fmt.Sprintf("%s_%d", baseName, time.Now().UnixNano()%1000000)

	body := map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "testpassword123",
	}

	var result AuthResponse
	if err := c.do(http.MethodPost, "/auth/register", body, "", http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refresh rotates a refresh token
func (c *APIClient) Refresh(refreshToken string) (*AuthResponse, error) {
	var result AuthResponse
	err := c.do(http.MethodPost, "/auth/refresh-token", map[string]string{"refreshToken": refreshToken}, "", http.StatusOK, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout revokes a refresh token
func (c *APIClient) Logout(refreshToken string) error {
	return c.do(http.MethodPost, "/auth/logout", map[string]string{"refreshToken": refreshToken}, "", http.StatusNoContent, nil)
}

// CreatePost publishes a post as the token's owner
func (c *APIClient) CreatePost(token, content string) (*Post, error) {
	var post Post
	if err := c.do(http.MethodPost, "/posts", map[string]interface{}{"content": content}, token, http.StatusCreated, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListPosts fetches one page of the newest posts
func (c *APIClient) ListPosts(token string, page, limit int) (*PostList, error) {
	path := fmt.Sprintf("/posts?page=%d&limit=%d", page, limit)
	var list PostList
	if err := c.do(http.MethodGet, path, nil, token, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeletePost removes a post owned by the token's user
func (c *APIClient) DeletePost(token, id string) error {
	return c.do(http.MethodDelete, "/posts/"+id, nil, token, http.StatusNoContent, nil)
}

// Search queries the search projection
func (c *APIClient) Search(token, query string, limit int) ([]SearchResult, error) {
	path := "/search?query=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	var results []SearchResult
	if err := c.do(http.MethodGet, path, nil, token, http.StatusOK, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// HTTP helpers

func (c *APIClient) do(method, path string, body interface{}, token string, expected int, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &StatusError{Op: method + " " + path, Status: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
