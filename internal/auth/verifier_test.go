package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://idp.example.com/realms/notes"

func newJWKSServer(t *testing.T, publicKey rsa.PublicKey) *httptest.Server {
	t.Helper()
	jwksResponse := map[string]any{
		"keys": []any{map[string]string{
			"kty": "RSA",
			"alg": "RS256",
			"kid": "test-key",
			"use": "sig",
			"n":   encodeBigInt(publicKey.N),
			"e":   encodeBigInt(publicKey.E),
		}},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/protocol/openid-connect/certs" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(jwksResponse)
	}))
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifierValidatesTokenUsingJWKS(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	jwksServer := newJWKSServer(t, privateKey.PublicKey)
	defer jwksServer.Close()

	now := time.Now().UTC()
	signedToken := signTestToken(t, privateKey, jwt.MapClaims{
		"iss":                testIssuer,
		"sub":                "user-123",
		"preferred_username": "jdoe",
		"email":              "jdoe@example.com",
		"given_name":         "Jane",
		"family_name":        "Doe",
		"exp":                now.Add(5 * time.Minute).Unix(),
		"iat":                now.Unix(),
	})

	verifier, err := NewVerifier(VerifierConfig{
		Issuer:     testIssuer,
		JWKSURL:    jwksServer.URL + "/protocol/openid-connect/certs",
		HTTPClient: jwksServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	claims, err := verifier.Verify(context.Background(), signedToken)
	if err != nil {
		t.Fatalf("expected verification to succeed: %v", err)
	}

	if claims.Subject != "user-123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.PreferredUsername != "jdoe" {
		t.Fatalf("unexpected username %s", claims.PreferredUsername)
	}
	if claims.GivenName != "Jane" || claims.FamilyName != "Doe" {
		t.Fatalf("unexpected name claims: %s %s", claims.GivenName, claims.FamilyName)
	}
}

func TestVerifierRejectsForeignIssuer(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	jwksServer := newJWKSServer(t, privateKey.PublicKey)
	defer jwksServer.Close()

	now := time.Now().UTC()
	signedToken := signTestToken(t, privateKey, jwt.MapClaims{
		"iss": "https://rogue.example.com",
		"sub": "user-123",
		"exp": now.Add(5 * time.Minute).Unix(),
		"iat": now.Unix(),
	})

	verifier, err := NewVerifier(VerifierConfig{
		Issuer:     testIssuer,
		JWKSURL:    jwksServer.URL + "/protocol/openid-connect/certs",
		HTTPClient: jwksServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), signedToken); err == nil {
		t.Fatal("expected verification to fail for foreign issuer")
	}
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	jwksServer := newJWKSServer(t, privateKey.PublicKey)
	defer jwksServer.Close()

	now := time.Now().UTC()
	signedToken := signTestToken(t, privateKey, jwt.MapClaims{
		"iss": testIssuer,
		"sub": "user-123",
		"exp": now.Add(-5 * time.Minute).Unix(),
		"iat": now.Add(-10 * time.Minute).Unix(),
	})

	verifier, err := NewVerifier(VerifierConfig{
		Issuer:     testIssuer,
		JWKSURL:    jwksServer.URL + "/protocol/openid-connect/certs",
		HTTPClient: jwksServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), signedToken); err == nil {
		t.Fatal("expected verification to fail for expired token")
	}
}

func TestVerifierRejectsEmptyToken(t *testing.T) {
	verifier, err := NewVerifier(VerifierConfig{
		Issuer:  testIssuer,
		JWKSURL: "http://127.0.0.1:1/certs",
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), "  "); err == nil {
		t.Fatal("expected verification to fail for empty token")
	}
}

func TestVerifierRequiresConfiguration(t *testing.T) {
	if _, err := NewVerifier(VerifierConfig{JWKSURL: "http://example.com"}); err == nil {
		t.Fatal("expected constructor to fail without issuer")
	}
	if _, err := NewVerifier(VerifierConfig{Issuer: testIssuer}); err == nil {
		t.Fatal("expected constructor to fail without jwks url")
	}
}

func encodeBigInt(value interface{}) string {
	switch v := value.(type) {
	case *big.Int:
		return base64.RawURLEncoding.EncodeToString(v.Bytes())
	case int:
		return encodeBigInt(int64(v))
	case int64:
		return base64.RawURLEncoding.EncodeToString(big.NewInt(v).Bytes())
	default:
		return ""
	}
}
