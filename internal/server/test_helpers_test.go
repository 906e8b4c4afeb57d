package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AbadAidjah/nuitdeinfo/internal/auth"
	"github.com/AbadAidjah/nuitdeinfo/internal/notes"
	"github.com/AbadAidjah/nuitdeinfo/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testFrontendURL = "http://frontend.example.com"

type stubVerifier struct {
	claims map[string]auth.TokenClaims
}

func (s *stubVerifier) Verify(_ context.Context, token string) (auth.TokenClaims, error) {
	claims, ok := s.claims[token]
	if !ok {
		return auth.TokenClaims{}, errors.New("unknown token")
	}
	return claims, nil
}

func (s *stubVerifier) accept(token, subject, username, email string) {
	claims := auth.TokenClaims{
		PreferredUsername: username,
		Email:             email,
		GivenName:         "Test",
		FamilyName:        "User",
	}
	claims.Subject = subject
	s.claims[token] = claims
}

type routerFixture struct {
	handler  http.Handler
	db       *gorm.DB
	sessions *auth.SessionManager
	verifier *stubVerifier
	users    *users.Service
	notes    *notes.Service
	keycloak *httptest.Server
}

// defaultKeycloakHandler answers the token, userinfo and admin endpoints the
// way a permissive realm would.
func defaultKeycloakHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/realms/notes/protocol/openid-connect/token":
			if err := r.ParseForm(); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if r.PostFormValue("grant_type") == "password" && r.PostFormValue("password") != "correct-horse" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "granted-token",
				"token_type":   "Bearer",
				"expires_in":   300,
			})
		case r.URL.Path == "/realms/notes/protocol/openid-connect/userinfo":
			_ = json.NewEncoder(w).Encode(auth.UserInfo{
				Subject:           "subject-oauth",
				PreferredUsername: "browserer",
				Email:             "browserer@example.com",
				GivenName:         "Brow",
				FamilyName:        "Ser",
			})
		case r.Method == http.MethodPost && r.URL.Path == "/admin/realms/notes/users":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodDelete && len(r.URL.Path) > len("/admin/realms/notes/users/"):
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keycloak := httptest.NewServer(defaultKeycloakHandler(t))
	t.Cleanup(keycloak.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &notes.Note{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	provider, err := auth.NewProvider(auth.ProviderConfig{
		BaseURL:      keycloak.URL,
		Realm:        "notes",
		ClientID:     "notes-frontend",
		ClientSecret: "secret",
		BackendURL:   "http://backend.example.com",
		FrontendURL:  testFrontendURL,
		HTTPClient:   keycloak.Client(),
	})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte("test-secret"),
		CookieName:    "notes_session",
		TTL:           time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create notes service: %v", err)
	}

	verifier := &stubVerifier{claims: map[string]auth.TokenClaims{}}

	handler, err := NewHTTPHandler(Dependencies{
		Verifier:    verifier,
		Sessions:    sessions,
		Provider:    provider,
		Users:       usersService,
		Notes:       notesService,
		FrontendURL: testFrontendURL,
	})
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}

	return &routerFixture{
		handler:  handler,
		db:       db,
		sessions: sessions,
		verifier: verifier,
		users:    usersService,
		notes:    notesService,
		keycloak: keycloak,
	}
}

func (f *routerFixture) do(t *testing.T, method, target, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body != "" {
		request = httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
		request.Header.Set("Content-Type", "application/json")
	} else {
		request = httptest.NewRequest(method, target, nil)
	}
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	payload := map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func decodeJSONList(t *testing.T, recorder *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	payload := []map[string]any{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
