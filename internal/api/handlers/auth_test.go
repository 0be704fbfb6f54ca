package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dom/social-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthHandler_Register(t *testing.T) {
	ts := testutil.NewTestServer(t)

	tests := []struct {
		name           string
		request        map[string]string
		setup          func(t *testing.T)
		expectedStatus int
		checkResponse  func(*testing.T, *http.Response)
	}{
		{
			name: "successful registration",
			request: map[string]string{
				"username": "newuser",
				"email":    "NewUser@Example.com",
				"password": "password123",
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, resp *http.Response) {
				var result testutil.AuthResponse
				testutil.AssertJSONResponse(t, resp, &result)
				assert.Equal(t, "newuser", result.User.Username)
				assert.Equal(t, "newuser@example.com", result.User.Email)
				assert.NotEmpty(t, result.AccessToken)
				assert.Len(t, result.RefreshToken, 80)
			},
		},
		{
			name:           "missing username",
			request:        map[string]string{"email": "a@example.com", "password": "password123"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "short password",
			request:        map[string]string{"username": "shorty", "email": "s@example.com", "password": "123"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid email",
			request:        map[string]string{"username": "bademail", "email": "nope", "password": "password123"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "duplicate username",
			request: map[string]string{
				"username": "existinguser",
				"email":    "fresh@example.com",
				"password": "password123",
			},
			setup: func(t *testing.T) {
				testutil.NewUserBuilder().WithUsername("existinguser").Build(t, ts.DB.DB)
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts.Reset(t)
			if tt.setup != nil {
				tt.setup(t)
			}

			resp := postJSON(t, ts.APIURL("/auth/register"), tt.request)
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)

			if tt.checkResponse != nil {
				tt.checkResponse(t, resp)
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	ts := testutil.NewTestServer(t)
	testutil.NewUserBuilder().WithUsername("loginuser").WithPassword("correctpassword").Build(t, ts.DB.DB)

	tests := []struct {
		name           string
		request        map[string]string
		expectedStatus int
	}{
		{"successful login", map[string]string{"username": "loginuser", "password": "correctpassword"}, http.StatusOK},
		{"wrong password", map[string]string{"username": "loginuser", "password": "wrongpassword"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "ghost", "password": "correctpassword"}, http.StatusUnauthorized},
		{"missing password", map[string]string{"username": "loginuser"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.APIURL("/auth/login"), tt.request)
			testutil.AssertStatusCode(t, resp, tt.expectedStatus)
		})
	}
}

func TestAuthHandler_RefreshToken(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, auth := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	t.Run("rotation returns a new pair", func(t *testing.T) {
		resp := postJSON(t, ts.APIURL("/auth/refresh-token"), map[string]string{"refreshToken": auth.RefreshToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rotated testutil.AuthResponse
		testutil.AssertJSONResponse(t, resp, &rotated)
		assert.NotEqual(t, auth.RefreshToken, rotated.RefreshToken)
		assert.NotEmpty(t, rotated.AccessToken)
	})

	t.Run("replay is rejected with the generic message", func(t *testing.T) {
		resp := postJSON(t, ts.APIURL("/auth/refresh-token"), map[string]string{"refreshToken": auth.RefreshToken})
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "invalid or expired token")
	})

	t.Run("unknown token", func(t *testing.T) {
		resp := postJSON(t, ts.APIURL("/auth/refresh-token"), map[string]string{"refreshToken": "deadbeef"})
		testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "invalid or expired token")
	})

	t.Run("missing token", func(t *testing.T) {
		resp := postJSON(t, ts.APIURL("/auth/refresh-token"), map[string]string{})
		testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	ts := testutil.NewTestServer(t)
	_, auth := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	resp := postJSON(t, ts.APIURL("/auth/logout"), map[string]string{"refreshToken": auth.RefreshToken})
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	// Revocation is idempotent.
	resp = postJSON(t, ts.APIURL("/auth/logout"), map[string]string{"refreshToken": auth.RefreshToken})
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	resp = postJSON(t, ts.APIURL("/auth/refresh-token"), map[string]string{"refreshToken": auth.RefreshToken})
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
}

func TestAuthHandler_Me(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user, auth := testutil.NewUserBuilder().WithUsername("meuser").BuildAndAuthenticate(t, ts)

	t.Run("authenticated", func(t *testing.T) {
		req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, auth.AccessToken)
		resp := testutil.Do(t, req)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var me struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		}
		testutil.AssertJSONResponse(t, resp, &me)
		assert.Equal(t, user.ID.String(), me.ID)
		assert.Equal(t, "meuser", me.Username)
	})

	t.Run("no token", func(t *testing.T) {
		req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, "")
		testutil.AssertStatusCode(t, testutil.Do(t, req), http.StatusUnauthorized)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		req := testutil.CreateAuthenticatedRequest(t, http.MethodGet, ts.APIURL("/auth/me"), nil, auth.RefreshToken)
		testutil.AssertStatusCode(t, testutil.Do(t, req), http.StatusUnauthorized)
	})
}
