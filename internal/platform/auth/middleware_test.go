package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestVerifier(t *testing.T, issuer, audience string) *JWTVerifier {
	t.Helper()
	verifier, err := NewJWTVerifier(testSecret, issuer, audience)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func TestJWTVerifier(t *testing.T) {
	verifier := newTestVerifier(t, "back-orders", "")

	token := signToken(t, Claims{
		Email: "user@example.com",
		Roles: []string{"User", "ADMIN", "user"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "back-orders",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Subject != "user-1" || identity.Email != "user@example.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if len(identity.Roles) != 2 || !identity.HasRole("admin") || !identity.HasRole("user") {
		t.Fatalf("unexpected roles %v", identity.Roles)
	}
}

func TestJWTVerifierRejections(t *testing.T) {
	verifier := newTestVerifier(t, "back-orders", "orders-api")
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		claims Claims
		want   error
	}{
		{
			name: "expired",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    "back-orders",
				Audience:  jwt.ClaimStrings{"orders-api"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			}},
			want: ErrTokenExpired,
		},
		{
			name: "wrong issuer",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: "user-1", Issuer: "someone-else", Audience: jwt.ClaimStrings{"orders-api"}, ExpiresAt: future,
			}},
			want: ErrTokenInvalid,
		},
		{
			name: "wrong audience",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Subject: "user-1", Issuer: "back-orders", Audience: jwt.ClaimStrings{"other-api"}, ExpiresAt: future,
			}},
			want: ErrTokenInvalid,
		},
		{
			name: "missing subject",
			claims: Claims{RegisteredClaims: jwt.RegisteredClaims{
				Issuer: "back-orders", Audience: jwt.ClaimStrings{"orders-api"}, ExpiresAt: future,
			}},
			want: ErrTokenInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), signToken(t, tc.claims))
			if err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestJWTVerifierRejectsWrongAlgorithm(t *testing.T) {
	verifier := newTestVerifier(t, "", "")

	// Token signed with none must not pass.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := verifier.Verify(context.Background(), signed); err == nil {
		t.Fatalf("expected rejection of alg=none token")
	}
}

func TestRequireAuthMiddleware(t *testing.T) {
	verifier := newTestVerifier(t, "", "")
	authenticator := NewAuthenticator(verifier)

	var captured *Identity
	handler := authenticator.RequireAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token := signToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rec.Code, rec.Body.String())
	}
	if captured == nil || captured.Subject != "user-1" {
		t.Fatalf("expected identity in context got %+v", captured)
	}
	// Tokens without roles get the fallback role.
	if !captured.HasRole(RoleUser) {
		t.Fatalf("expected fallback role got %v", captured.Roles)
	}
}

func TestRequireAuthMiddlewareRejections(t *testing.T) {
	verifier := newTestVerifier(t, "", "")
	authenticator := NewAuthenticator(verifier)

	adminOnly := authenticator.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// No Authorization header.
	req := httptest.NewRequest(http.MethodGet, "/orders/report", nil)
	rec := httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}

	// Valid token, insufficient role.
	token := signToken(t, Claims{
		Roles: []string{RoleUser},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	req = httptest.NewRequest(http.MethodGet, "/orders/report", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}

	// Garbage token.
	req = httptest.NewRequest(http.MethodGet, "/orders/report", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	adminOnly.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
