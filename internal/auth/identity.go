package auth

import (
	"errors"
	"strings"
)

// ErrNoCredential indicates the request carried no usable authentication evidence.
var ErrNoCredential = errors.New("auth: no usable credential")

// Identity is the canonical record extracted from either credential form.
type Identity struct {
	ExternalID string
	Username   string
	Email      string
	FirstName  string
	LastName   string
}

// DisplayName joins the first and last names the way the provider's "name"
// attribute would.
func (i Identity) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
}

// UserInfo mirrors the provider userinfo-endpoint attributes carried by a
// browser-login principal.
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Name              string `json:"name"`
}

// Credential is the tagged union of the two evidence forms a request may carry:
// a verified bearer-token payload or a provider userinfo principal. Exactly one
// leg is set per request.
type Credential struct {
	Claims    *TokenClaims
	Principal *UserInfo
}

// Identity extracts the canonical identity from whichever leg is present.
// A leg whose subject is blank after trimming counts as absent.
func (c Credential) Identity() (Identity, error) {
	if c.Claims != nil {
		identity := Identity{
			ExternalID: strings.TrimSpace(c.Claims.Subject),
			Username:   strings.TrimSpace(c.Claims.PreferredUsername),
			Email:      strings.TrimSpace(c.Claims.Email),
			FirstName:  strings.TrimSpace(c.Claims.GivenName),
			LastName:   strings.TrimSpace(c.Claims.FamilyName),
		}
		if identity.ExternalID != "" {
			return identity, nil
		}
	}
	if c.Principal != nil {
		identity := Identity{
			ExternalID: strings.TrimSpace(c.Principal.Subject),
			Username:   strings.TrimSpace(c.Principal.PreferredUsername),
			Email:      strings.TrimSpace(c.Principal.Email),
			FirstName:  strings.TrimSpace(c.Principal.GivenName),
			LastName:   strings.TrimSpace(c.Principal.FamilyName),
		}
		if identity.ExternalID != "" {
			return identity, nil
		}
	}
	return Identity{}, ErrNoCredential
}
