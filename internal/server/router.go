package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AbadAidjah/nuitdeinfo/internal/auth"
	"github.com/AbadAidjah/nuitdeinfo/internal/notes"
	"github.com/AbadAidjah/nuitdeinfo/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	identityContextKey = "notes_identity"
	userContextKey     = "notes_current_user"

	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

var (
	errMissingVerifier     = errors.New("token verifier dependency required")
	errMissingSessions     = errors.New("session manager dependency required")
	errMissingProvider     = errors.New("identity provider dependency required")
	errMissingUsersService = errors.New("users service dependency required")
	errMissingNotesService = errors.New("notes service dependency required")
)

// TokenVerifier validates directly-issued provider access tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.TokenClaims, error)
}

// SessionStore carries browser-login principals across requests.
type SessionStore interface {
	Issue(info auth.UserInfo) (string, time.Time, error)
	Validate(token string) (auth.UserInfo, error)
	ReadRequest(r *http.Request) (auth.UserInfo, error)
	CookieName() string
}

// Dependencies wires the HTTP surface to the domain services.
type Dependencies struct {
	Verifier    TokenVerifier
	Sessions    SessionStore
	Provider    *auth.Provider
	Users       *users.Service
	Notes       *notes.Service
	FrontendURL string
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router with all routes registered.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Provider == nil {
		return nil, errMissingProvider
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	frontendURL := strings.TrimRight(strings.TrimSpace(deps.FrontendURL), "/")

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if frontendURL != "" {
		corsConfig.AllowOrigins = []string{frontendURL}
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(cors.New(corsConfig))

	handler := &httpHandler{
		verifier:    deps.Verifier,
		sessions:    deps.Sessions,
		provider:    deps.Provider,
		users:       deps.Users,
		notes:       deps.Notes,
		frontendURL: frontendURL,
		logger:      logger,
	}

	router.GET("/auth/login-url", handler.handleLoginURL)
	router.GET("/auth/register-url", handler.handleRegisterURL)
	router.GET("/auth/logout-url", handler.handleLogoutURL)
	router.POST("/auth/token", handler.handleTokenEndpoint)
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.GET("/auth/success", handler.handleLoginSuccess)
	router.GET("/auth/public/logged-out", handler.handleLoggedOut)
	router.GET(auth.CallbackPath, handler.handleLoginCallback)

	authenticated := router.Group("/")
	authenticated.Use(handler.authenticate)
	authenticated.GET("/auth/user", handler.handleCurrentUser)
	authenticated.GET("/auth/me", handler.handleCurrentUser)
	authenticated.PUT("/auth/profile", handler.handleUpdateProfile)
	authenticated.DELETE("/auth/profile", handler.handleDeleteProfile)

	api := router.Group("/api/notes")
	api.GET("/:userId", handler.handleNotesByUserID)

	protected := api.Group("/")
	protected.Use(handler.authenticate)
	protected.GET("/my-notes", handler.handleMyNotes)
	protected.POST("/create/", handler.handleCreateNote)
	protected.GET("/note/:noteId", handler.handleGetNote)
	protected.PUT("/update/:noteId", handler.handleUpdateNote)
	protected.DELETE("/delete/:noteId", handler.handleDeleteNote)
	protected.GET("/search", handler.handleSearchNotes)
	protected.GET("/count", handler.handleNotesCount)

	return router, nil
}

type httpHandler struct {
	verifier    TokenVerifier
	sessions    SessionStore
	provider    *auth.Provider
	users       *users.Service
	notes       *notes.Service
	frontendURL string
	logger      *zap.Logger
}

// authenticate resolves the caller's credential, syncs the local user record
// and stores both on the request context. Requests without a usable credential
// are rejected before any domain logic runs.
func (h *httpHandler) authenticate(c *gin.Context) {
	credential, ok := h.resolveCredential(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	identity, err := credential.Identity()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	user, err := h.users.Sync(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("user sync failed during authentication", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request could not be processed"})
		return
	}

	c.Set(identityContextKey, identity)
	c.Set(userContextKey, user)
	c.Next()
}

// resolveCredential checks the bearer token first, then the session cookie.
// Exactly one leg of the returned credential is populated.
func (h *httpHandler) resolveCredential(c *gin.Context) (auth.Credential, bool) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			return auth.Credential{}, false
		}
		claims, err := h.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			h.logger.Warn("bearer token verification failed", zap.Error(err))
			return auth.Credential{}, false
		}
		return auth.Credential{Claims: &claims}, true
	}

	info, err := h.sessions.ReadRequest(c.Request)
	if err != nil {
		return auth.Credential{}, false
	}
	return auth.Credential{Principal: &info}, true
}

func (h *httpHandler) currentUser(c *gin.Context) (users.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return users.User{}, false
	}
	user, ok := value.(users.User)
	return user, ok
}

func (h *httpHandler) currentIdentity(c *gin.Context) (auth.Identity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

// respondError maps domain outcomes to transport statuses. Anything outside
// the expected taxonomy is reported as a generic 400; this service never
// surfaces a 5xx for note operations.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, notes.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
	case errors.Is(err, notes.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied: this note does not belong to you"})
	case errors.Is(err, users.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		h.logger.Error("unexpected handler failure", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "request could not be processed"})
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, notes.ErrTitleRequired):
		return "Title is required"
	case errors.Is(err, notes.ErrContentRequired):
		return "Content is required"
	case errors.Is(err, notes.ErrQueryRequired):
		return "Search query is required"
	default:
		return err.Error()
	}
}
