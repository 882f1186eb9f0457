package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"agent-overlay-server/internal/codes"
	"agent-overlay-server/internal/config"
	"agent-overlay-server/internal/profile"
)

type fakeAuthProvider struct {
	accounts map[string]string // email -> password
	tiers    map[string]string // email -> tier
	err      error
}

func (f *fakeAuthProvider) Login(_ context.Context, email, password string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	if pw, ok := f.accounts[email]; !ok || pw != password {
		return "", "", errInvalidCredentials
	}
	return "acct-" + email, f.tiers[email], nil
}

func newTestServer(t *testing.T) (*Server, *fakeAuthProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := profile.Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("open profile store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	auth := &fakeAuthProvider{
		accounts: map[string]string{"user@example.com": "hunter2"},
		tiers:    map[string]string{"user@example.com": "pro"},
	}

	cfg := config.APIConfig{Port: 0, JWTSecret: "test-secret"}
	srv := New(cfg, store, codes.NewMailbox(time.Minute), nil).WithAuthProvider(auth)
	return srv, auth
}

func doJSON(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func login(t *testing.T, srv *Server) string {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/v1/auth/login", "",
		`{"email":"user@example.com","password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		Tier  string `json:"tier"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login response missing token")
	}
	if resp.Tier != "pro" {
		t.Errorf("tier = %q, want pro", resp.Tier)
	}
	return resp.Token
}

func TestLoginAndTokenVerification(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv)

	claims, err := srv.tokens.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify minted token: %v", err)
	}
	if claims.AccountID != "acct-user@example.com" || claims.Tier != "pro" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/v1/auth/login", "",
		`{"email":"user@example.com","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginProviderFailureIsBadGateway(t *testing.T) {
	srv, auth := newTestServer(t)
	auth.err = fmt.Errorf("provider down")

	w := doJSON(t, srv, http.MethodPost, "/v1/auth/login", "",
		`{"email":"user@example.com","password":"hunter2"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method, path, token string
	}{
		{http.MethodGet, "/v1/profiles", ""},
		{http.MethodGet, "/v1/profiles", "garbage"},
	}
	for _, tt := range tests {
		w := doJSON(t, srv, tt.method, tt.path, tt.token, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s token=%q: status = %d, want 401", tt.method, tt.path, tt.token, w.Code)
		}
	}
}

func TestProfileCRUDOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv)

	if w := doJSON(t, srv, http.MethodPut, "/v1/profiles/preferences", token, `{"theme":"dark"}`); w.Code != http.StatusOK {
		t.Fatalf("put: %d %s", w.Code, w.Body.String())
	}

	w := doJSON(t, srv, http.MethodGet, "/v1/profiles/preferences", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var resp struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(resp.Value), "dark") {
		t.Errorf("unexpected value: %s", resp.Value)
	}

	w = doJSON(t, srv, http.MethodGet, "/v1/profiles", token, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "preferences") {
		t.Errorf("list: %d %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, srv, http.MethodDelete, "/v1/profiles/preferences", token, ""); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := doJSON(t, srv, http.MethodGet, "/v1/profiles/preferences", token, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d, want 404", w.Code)
	}
}

func TestProfilePutRejectsInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv)

	if w := doJSON(t, srv, http.MethodPut, "/v1/profiles/bad", token, `{broken`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCodeRelayOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv)

	if w := doJSON(t, srv, http.MethodGet, "/v1/codes/pending", token, ""); !strings.Contains(w.Body.String(), "false") {
		t.Errorf("expected pending=false before publish: %s", w.Body.String())
	}

	if w := doJSON(t, srv, http.MethodPost, "/v1/codes", token, `{"code":"424242"}`); w.Code != http.StatusOK {
		t.Fatalf("publish: %d", w.Code)
	}

	if w := doJSON(t, srv, http.MethodGet, "/v1/codes/pending", token, ""); !strings.Contains(w.Body.String(), "true") {
		t.Errorf("expected pending=true after publish: %s", w.Body.String())
	}

	w := doJSON(t, srv, http.MethodPost, "/v1/codes/consume", token, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "424242") {
		t.Fatalf("consume: %d %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, srv, http.MethodPost, "/v1/codes/consume", token, ""); w.Code != http.StatusNotFound {
		t.Errorf("second consume: %d, want 404", w.Code)
	}
}
