package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer     = "notes-backend"
	defaultSessionTTL = time.Hour
)

var (
	ErrMissingSessionSigningKey = errors.New("session: signing key required")
	ErrMissingSessionCookieName = errors.New("session: cookie name required")
	ErrMissingSessionToken      = errors.New("session: token required")
	ErrInvalidSessionToken      = errors.New("session: invalid token")
	ErrExpiredSessionToken      = errors.New("session: token expired")
)

type sessionClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Name              string `json:"name"`
	jwt.RegisteredClaims
}

// SessionManagerConfig describes how browser-login principals are carried
// across requests.
type SessionManagerConfig struct {
	SigningSecret []byte
	CookieName    string
	TTL           time.Duration
	Clock         func() time.Time
}

// SessionManager issues and validates HS256 session tokens that carry the
// provider userinfo attributes obtained during the OAuth2 login callback.
type SessionManager struct {
	signingSecret []byte
	cookieName    string
	ttl           time.Duration
	clock         func() time.Time
}

// NewSessionManager constructs a manager with the provided configuration.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionManager{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		cookieName:    cookieName,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// CookieName returns the cookie name configured for session lookups.
func (m *SessionManager) CookieName() string {
	return m.cookieName
}

// Issue produces a signed session token for the provided principal along with
// its expiry time.
func (m *SessionManager) Issue(info UserInfo) (string, time.Time, error) {
	if strings.TrimSpace(info.Subject) == "" {
		return "", time.Time{}, ErrNoCredential
	}

	now := m.clock().UTC()
	expiresAt := now.Add(m.ttl)

	claims := sessionClaims{
		PreferredUsername: info.PreferredUsername,
		Email:             info.Email,
		GivenName:         info.GivenName,
		FamilyName:        info.FamilyName,
		Name:              info.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   info.Subject,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks the supplied session token and returns the carried principal.
func (m *SessionManager) Validate(tokenString string) (UserInfo, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return UserInfo{}, ErrMissingSessionToken
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidSessionToken, t.Method.Alg())
			}
			return m.signingSecret, nil
		},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(m.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return UserInfo{}, ErrExpiredSessionToken
		}
		return UserInfo{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return UserInfo{}, ErrInvalidSessionToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return UserInfo{}, ErrInvalidSessionToken
	}

	return UserInfo{
		Subject:           claims.Subject,
		PreferredUsername: claims.PreferredUsername,
		Email:             claims.Email,
		GivenName:         claims.GivenName,
		FamilyName:        claims.FamilyName,
		Name:              claims.Name,
	}, nil
}

// ReadRequest extracts the configured cookie from the request and validates it.
func (m *SessionManager) ReadRequest(r *http.Request) (UserInfo, error) {
	if r == nil {
		return UserInfo{}, ErrMissingSessionToken
	}
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie == nil {
		return UserInfo{}, ErrMissingSessionToken
	}
	return m.Validate(cookie.Value)
}
