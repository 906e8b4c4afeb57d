package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AbadAidjah/nuitdeinfo/internal/auth"
	"github.com/AbadAidjah/nuitdeinfo/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequestPayload struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type tokenResponsePayload struct {
	Token     string `json:"token"`
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (h *httpHandler) handleLoginURL(c *gin.Context) {
	state := h.issueStateCookie(c)
	c.JSON(http.StatusOK, gin.H{"loginUrl": h.provider.AuthCodeURL(state)})
}

func (h *httpHandler) handleRegisterURL(c *gin.Context) {
	state := h.issueStateCookie(c)
	c.JSON(http.StatusOK, gin.H{"registerUrl": h.provider.RegistrationURL(state)})
}

func (h *httpHandler) handleLogoutURL(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logoutUrl": h.provider.LogoutURL()})
}

// handleTokenEndpoint returns the provider token-endpoint metadata. The body
// matches the login shape for client convenience but is not used; the client
// exchanges its credentials with the provider directly.
func (h *httpHandler) handleTokenEndpoint(c *gin.Context) {
	var request loginRequestPayload
	_ = c.ShouldBindJSON(&request)
	c.JSON(http.StatusOK, h.provider.TokenEndpoint())
}

// handleLoginCallback completes the browser authorization-code flow: exchange
// the code, fetch the provider principal, sync the local user and start a
// session before handing the browser to /auth/success.
func (h *httpHandler) handleLoginCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	expectedState, err := c.Cookie(stateCookieName)
	h.clearCookie(c, stateCookieName)
	if code == "" || err != nil || state == "" || state != expectedState {
		h.redirectLoginFailure(c)
		return
	}

	token, err := h.provider.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Warn("authorization code exchange failed", zap.Error(err))
		h.redirectLoginFailure(c)
		return
	}

	info, err := h.provider.FetchUserInfo(c.Request.Context(), token)
	if err != nil {
		h.logger.Warn("userinfo fetch failed", zap.Error(err))
		h.redirectLoginFailure(c)
		return
	}

	identity, err := auth.Credential{Principal: &info}.Identity()
	if err != nil {
		h.redirectLoginFailure(c)
		return
	}
	if _, err := h.users.Sync(c.Request.Context(), identity); err != nil {
		h.logger.Error("user sync failed after login", zap.Error(err))
		h.redirectLoginFailure(c)
		return
	}

	session, expiresAt, err := h.sessions.Issue(info)
	if err != nil {
		h.logger.Error("session issue failed", zap.Error(err))
		h.redirectLoginFailure(c)
		return
	}

	c.SetCookie(h.sessions.CookieName(), session, int(time.Until(expiresAt).Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/auth/success")
}

// handleLoginSuccess is the post-login landing: refresh the user record and
// send the browser back to the frontend.
func (h *httpHandler) handleLoginSuccess(c *gin.Context) {
	info, err := h.sessions.ReadRequest(c.Request)
	if err != nil {
		h.redirectLoginFailure(c)
		return
	}

	identity, err := auth.Credential{Principal: &info}.Identity()
	if err != nil {
		h.redirectLoginFailure(c)
		return
	}
	if _, err := h.users.Sync(c.Request.Context(), identity); err != nil {
		// The session is already established; report and continue.
		h.logger.Error("user sync failed on login success", zap.Error(err))
	}

	c.Redirect(http.StatusFound, h.frontendURL)
}

func (h *httpHandler) handleLoggedOut(c *gin.Context) {
	h.clearCookie(c, h.sessions.CookieName())
	c.Redirect(http.StatusFound, h.frontendURL)
}

func (h *httpHandler) handleCurrentUser(c *gin.Context) {
	identity, ok := h.currentIdentity(c)
	user, userOK := h.currentUser(c)
	if !ok || !userOK {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"username":  user.Username,
		"email":     user.Email,
		"name":      identity.DisplayName(),
		"firstName": user.FirstName,
		"lastName":  user.LastName,
	})
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	request.Username = strings.TrimSpace(request.Username)
	request.Email = strings.TrimSpace(request.Email)
	if request.Username == "" || request.Password == "" || request.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username, password and email are required"})
		return
	}

	err := h.provider.Register(c.Request.Context(), auth.RegistrationRequest{
		Username:  request.Username,
		Password:  request.Password,
		Email:     request.Email,
		FirstName: strings.TrimSpace(request.FirstName),
		LastName:  strings.TrimSpace(request.LastName),
	})
	if errors.Is(err, auth.ErrDuplicateUser) {
		c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
		return
	}
	if err != nil {
		h.logger.Error("provider registration failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "registration could not be completed"})
		return
	}

	h.completePasswordLogin(c, request.Username, request.Password)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(request.Username) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	h.completePasswordLogin(c, strings.TrimSpace(request.Username), request.Password)
}

// completePasswordLogin runs the password grant, verifies the returned access
// token locally and syncs the user so the response ids come from the local
// directory.
func (h *httpHandler) completePasswordLogin(c *gin.Context, username, password string) {
	token, err := h.provider.LoginWithPassword(c.Request.Context(), username, password)
	if errors.Is(err, auth.ErrBadCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if err != nil {
		h.logger.Error("password grant failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "request could not be processed"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), token.AccessToken)
	if err != nil {
		h.logger.Error("issued token failed local verification", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "request could not be processed"})
		return
	}

	identity, err := auth.Credential{Claims: &claims}.Identity()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	user, err := h.users.Sync(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("user sync failed after login", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "request could not be processed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		Token:     token.AccessToken,
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	identity, ok := h.currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), identity.ExternalID, usersProfileUpdate(request))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleDeleteProfile(c *gin.Context) {
	identity, ok := h.currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	if err := h.users.DeleteAccount(c.Request.Context(), identity.ExternalID); err != nil {
		h.respondError(c, err)
		return
	}

	// Provider-side removal is best effort; the local account is already gone.
	if err := h.provider.DeleteUser(c.Request.Context(), identity.ExternalID); err != nil {
		h.logger.Warn("provider account deletion failed", zap.String("external_id", identity.ExternalID), zap.Error(err))
	}

	h.clearCookie(c, h.sessions.CookieName())
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}

func usersProfileUpdate(request registerRequestPayload) users.ProfileUpdate {
	return users.ProfileUpdate{
		Username:  request.Username,
		Email:     request.Email,
		FirstName: request.FirstName,
		LastName:  request.LastName,
	}
}

func (h *httpHandler) issueStateCookie(c *gin.Context) string {
	state := uuid.NewString()
	c.SetCookie(stateCookieName, state, int(stateCookieTTL.Seconds()), "/", "", false, true)
	return state
}

func (h *httpHandler) clearCookie(c *gin.Context, name string) {
	c.SetCookie(name, "", -1, "/", "", false, true)
}

func (h *httpHandler) redirectLoginFailure(c *gin.Context) {
	c.Redirect(http.StatusFound, h.frontendURL+"?error=authentication_failed")
}
