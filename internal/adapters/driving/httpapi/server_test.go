package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/core/services"
)

const (
	testSecret = "test-signing-secret"
	testIssuer = "caseflow"
	testUser   = "google.tenant.abc123"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	hub := services.NewHub(1)
	require.NoError(t, hub.Register(domain.ModuleDescriptor{Name: "echo", Category: "test"}, []driving.Action{
		{
			Descriptor: domain.ActionDescriptor{
				Name:            "say",
				RequiredParams:  []string{"text"},
				Produces:        []string{"text", "user"},
				RequiresContext: []string{domain.ContextUserID},
				Timeout:         time.Second,
			},
			Handler: func(_ context.Context, actx driving.ActionContext, params map[string]any) (map[string]any, error) {
				return map[string]any{"text": params["text"], "user": actx.UserID()}, nil
			},
		},
		{
			Descriptor: domain.ActionDescriptor{Name: "flaky", Timeout: time.Second},
			Handler: func(context.Context, driving.ActionContext, map[string]any) (map[string]any, error) {
				return nil, domain.NewError(domain.KindTransientProvider, "provider unavailable")
			},
		},
	}))
	require.NoError(t, hub.Register(domain.ModuleDescriptor{Name: "failures", Category: "ops"}, []driving.Action{{
		Descriptor: domain.ActionDescriptor{Name: "list", Produces: []string{"count"}, Timeout: time.Second},
		Handler: func(context.Context, driving.ActionContext, map[string]any) (map[string]any, error) {
			return map[string]any{"count": 0}, nil
		},
	}}))

	s, err := New(hub, Config{Addr: "127.0.0.1:0", JWTSecret: testSecret, JWTIssuer: testIssuer})
	require.NoError(t, err)
	return s
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := IssueToken(testSecret, testIssuer, userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func do(t *testing.T, s *Server, method, path, auth string, body []byte) (int, driving.Result) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var res driving.Result
	require.NoError(t, json.Unmarshal(raw, &res), string(raw))
	return resp.StatusCode, res
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(services.NewHub(1), Config{Addr: ":0"})
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestHealthz_NoAuth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	resp, err := s.App().Test(req, -1)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvoke(t *testing.T) {
	s := newTestServer(t)

	status, res := do(t, s, http.MethodPost, "/api/modules/echo/actions/say", bearer(t, testUser), []byte(`{"text":"hello"}`))

	assert.Equal(t, http.StatusOK, status)
	require.True(t, res.OK)
	assert.Equal(t, "hello", res.Data["text"])
	assert.Equal(t, testUser, res.Data["user"])
}

func TestInvoke_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		kind   domain.ErrorKind
	}{
		{"missing param", "/api/modules/echo/actions/say", `{}`, http.StatusBadRequest, domain.KindValidation},
		{"unknown module", "/api/modules/calendar/actions/sync", ``, http.StatusNotFound, domain.KindNotFound},
		{"unknown action", "/api/modules/echo/actions/shout", ``, http.StatusNotFound, domain.KindNotFound},
		{"transient", "/api/modules/echo/actions/flaky", ``, http.StatusServiceUnavailable, domain.KindTransientProvider},
		{"body not an object", "/api/modules/echo/actions/say", `["hello"]`, http.StatusBadRequest, domain.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			status, res := do(t, s, http.MethodPost, tt.path, bearer(t, testUser), []byte(tt.body))

			assert.Equal(t, tt.status, status)
			assert.False(t, res.OK)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.kind, res.Error.Kind)
		})
	}
}

func TestAuth(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   testUser,
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	wrongKey, err := IssueToken("another-secret", testIssuer, testUser, time.Hour)
	require.NoError(t, err)

	wrongIssuer, err := IssueToken(testSecret, "someone-else", testUser, time.Hour)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: testUser,
		Issuer:  testIssuer,
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name string
		auth string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"wrong issuer", "Bearer " + wrongIssuer},
		{"no expiry", "Bearer " + noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			status, res := do(t, s, http.MethodPost, "/api/modules/echo/actions/say", tt.auth, []byte(`{"text":"hi"}`))

			assert.Equal(t, http.StatusUnauthorized, status)
			require.NotNil(t, res.Error)
			assert.Equal(t, domain.KindAuthentication, res.Error.Kind)
		})
	}
}

func TestIssueToken_Validation(t *testing.T) {
	_, err := IssueToken("", testIssuer, testUser, time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = IssueToken(testSecret, testIssuer, "", time.Hour)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestListModules(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/modules?category=ops", nil)
	req.Header.Set("Authorization", bearer(t, testUser))
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Modules []domain.ModuleDescriptor `json:"modules"`
		Count   int                       `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "failures", body.Modules[0].Name)
}

func TestDescribeModule(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/modules/echo", nil)
	req.Header.Set("Authorization", bearer(t, testUser))
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Module  domain.ModuleDescriptor   `json:"module"`
		Actions []domain.ActionDescriptor `json:"actions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "echo", body.Module.Name)
	require.Len(t, body.Actions, 2)
	assert.Equal(t, "flaky", body.Actions[0].Name)

	status, res := do(t, s, http.MethodGet, "/api/modules/calendar", bearer(t, testUser), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, domain.KindNotFound, res.Error.Kind)
}
