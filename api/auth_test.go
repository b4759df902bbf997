package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func newTestModeAuth(t *testing.T) *Auth {
	t.Helper()
	t.Setenv(envTestAuthMode, "1")
	t.Setenv(envTestJWTSecret, testSecret)
	return NewAuth(nil, "test-audience", "https://issuer.example.com/")
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"sub":     "user-123",
		"email":   "u@example.com",
		"name":    "Test User",
		"picture": "https://example.com/avatar.png",
		"aud":     "test-audience",
		"iss":     "https://issuer.example.com/",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	}
}

func TestProfileFromValidToken(t *testing.T) {
	auth := newTestModeAuth(t)
	token := signedToken(t, validClaims())

	profile, err := auth.ProfileFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if profile.UserID != "user-123" {
		t.Fatalf("sub not extracted: %q", profile.UserID)
	}
	if profile.Email != "u@example.com" || profile.DisplayName != "Test User" {
		t.Fatalf("profile claims not extracted: %+v", profile)
	}
	if profile.PhotoURL != "https://example.com/avatar.png" {
		t.Fatalf("picture not extracted: %q", profile.PhotoURL)
	}
}

func TestProfileRejectsBadHeaders(t *testing.T) {
	auth := newTestModeAuth(t)
	token := signedToken(t, validClaims())

	cases := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no scheme", token},
		{"wrong scheme", "Basic " + token},
		{"not a jwt", "Bearer notatoken"},
		{"trailing segment", "Bearer a.b.c.d"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := auth.ProfileFromAuthHeader(tc.header); err == nil {
				t.Fatalf("header %q accepted", tc.header)
			}
		})
	}
}

func TestProfileRejectsExpiredToken(t *testing.T) {
	auth := newTestModeAuth(t)
	claims := validClaims()
	claims["exp"] = time.Now().Add(-2 * time.Hour).Unix()
	claims["iat"] = time.Now().Add(-3 * time.Hour).Unix()

	if _, err := auth.ProfileFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestProfileRejectsWrongAudience(t *testing.T) {
	auth := newTestModeAuth(t)
	claims := validClaims()
	claims["aud"] = "someone-else"

	if _, err := auth.ProfileFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatalf("wrong audience accepted")
	}
}

func TestProfileRejectsWrongIssuer(t *testing.T) {
	auth := newTestModeAuth(t)
	claims := validClaims()
	claims["iss"] = "https://evil.example.com/"

	if _, err := auth.ProfileFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatalf("wrong issuer accepted")
	}
}

func TestProfileRejectsMissingSub(t *testing.T) {
	auth := newTestModeAuth(t)
	claims := validClaims()
	delete(claims, "sub")

	if _, err := auth.ProfileFromAuthHeader("Bearer " + signedToken(t, claims)); err == nil {
		t.Fatalf("token without sub accepted")
	}
}

func TestProfileRejectsWrongSecret(t *testing.T) {
	auth := newTestModeAuth(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ProfileFromAuthHeader("Bearer " + token); err == nil {
		t.Fatalf("token with wrong secret accepted")
	}
}

func TestBearerTokenFromHeader(t *testing.T) {
	if _, err := bearerTokenFromHeader("  "); err != errMissingAuthorization {
		t.Fatalf("blank header: %v", err)
	}
	got, err := bearerTokenFromHeader("bearer a.b.c")
	if err != nil || got != "a.b.c" {
		t.Fatalf("case-insensitive scheme: %q %v", got, err)
	}
}
