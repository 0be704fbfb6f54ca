package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dom/social-backend/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	username string
	email    string
	password string
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	suffix := uuid.New().String()[:8]
	return &UserBuilder{
		username: fmt.Sprintf("testuser_%s", suffix),
		email:    fmt.Sprintf("testuser_%s@example.com", suffix),
		password: "testpassword123",
	}
}

// WithUsername sets the username
func (b *UserBuilder) WithUsername(name string) *UserBuilder {
	b.username = name
	return b
}

// WithEmail sets the email
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

// WithPassword sets the password
func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// Build creates the user in the database and returns the user with the raw password
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     b.username,
		Email:        b.email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return user, b.password
}

// AuthResponse matches the API auth response
type AuthResponse struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// BuildAndAuthenticate registers the user via API and returns the user and
// the issued token pair
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, *AuthResponse) {
	t.Helper()

	reqBody := map[string]string{
		"username": b.username,
		"email":    b.email,
		"password": b.password,
	}
	body, _ := json.Marshal(reqBody)

	resp, err := http.Post(ts.APIURL("/auth/register"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	userID, _ := uuid.Parse(authResp.User.ID)
	user := &domain.User{
		ID:       userID,
		Username: authResp.User.Username,
		Email:    authResp.User.Email,
	}

	return user, &authResp
}

// PostBuilder creates test posts directly in the database
type PostBuilder struct {
	userID   uuid.UUID
	content  string
	mediaIDs []string
	created  time.Time
}

// NewPostBuilder creates a new PostBuilder with default values
func NewPostBuilder() *PostBuilder {
	return &PostBuilder{
		content: fmt.Sprintf("test post %s", uuid.New().String()[:8]),
		created: time.Now().UTC(),
	}
}

// WithAuthor sets the post owner
func (b *PostBuilder) WithAuthor(user *domain.User) *PostBuilder {
	b.userID = user.ID
	return b
}

// WithContent sets the post body
func (b *PostBuilder) WithContent(content string) *PostBuilder {
	b.content = content
	return b
}

// WithMedia attaches media ids
func (b *PostBuilder) WithMedia(ids ...string) *PostBuilder {
	b.mediaIDs = ids
	return b
}

// CreatedAt overrides the creation time
func (b *PostBuilder) CreatedAt(at time.Time) *PostBuilder {
	b.created = at
	return b
}

// Build inserts the post. A user is created when no author was set.
func (b *PostBuilder) Build(t *testing.T, db *gorm.DB) *domain.Post {
	t.Helper()

	if b.userID == uuid.Nil {
		user, _ := NewUserBuilder().Build(t, db)
		b.userID = user.ID
	}

	post := &domain.Post{
		ID:        uuid.New(),
		UserID:    b.userID,
		Content:   b.content,
		MediaIDs:  datatypes.JSONSlice[string](b.mediaIDs),
		CreatedAt: b.created,
	}

	if err := db.Create(post).Error; err != nil {
		t.Fatalf("failed to create post: %v", err)
	}

	return post
}

// NewMedia inserts a media row owned by userID pointing at publicID
func NewMedia(t *testing.T, db *gorm.DB, userID uuid.UUID, publicID string) *domain.Media {
	t.Helper()

	media := &domain.Media{
		ID:           uuid.New(),
		PublicID:     publicID,
		OriginalName: publicID,
		MimeType:     "image/png",
		URL:          "http://localhost/media/" + publicID,
		UserID:       userID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := db.Create(media).Error; err != nil {
		t.Fatalf("failed to create media: %v", err)
	}

	return media
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// Do sends req with the default client and fails the test on transport errors
func Do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", req.Method, req.URL, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
