package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/require"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func buyerToken(claims map[string]any) *firebaseauth.Token {
	return &firebaseauth.Token{UID: "buyer-42", Claims: claims}
}

func TestRequireFirebaseAuth(t *testing.T) {
	cases := []struct {
		name      string
		header    string
		verifier  *stubTokenVerifier
		roles     []string
		wantCode  int
		wantError string
		check     func(t *testing.T, identity *Identity)
	}{
		{
			name:     "staff token with duplicate roles",
			header:   "Bearer staff-token",
			verifier: &stubTokenVerifier{token: buyerToken(map[string]any{"role": []any{"staff", "admin", "STAFF"}, "email": "ops@example.com"})},
			roles:    []string{RoleStaff},
			wantCode: http.StatusNoContent,
			check: func(t *testing.T, identity *Identity) {
				require.Equal(t, []string{"staff", "admin"}, identity.Roles)
				require.Equal(t, "ops@example.com", identity.Email)
				require.True(t, identity.IsStaff())
			},
		},
		{
			name:     "no role claim means buyer",
			header:   "bearer buyer-token",
			verifier: &stubTokenVerifier{token: buyerToken(map[string]any{})},
			wantCode: http.StatusNoContent,
			check: func(t *testing.T, identity *Identity) {
				require.Equal(t, "buyer-42", identity.UID)
				require.True(t, identity.HasRole(RoleUser))
				require.False(t, identity.IsStaff())
			},
		},
		{
			name:     "role map keeps enabled roles",
			header:   "Bearer admin-token",
			verifier: &stubTokenVerifier{token: buyerToken(map[string]any{"role": map[string]any{"admin": true, "staff": false}})},
			roles:    []string{RoleAdmin},
			wantCode: http.StatusNoContent,
			check: func(t *testing.T, identity *Identity) {
				require.Equal(t, []string{RoleAdmin}, identity.Roles)
			},
		},
		{
			name:      "buyer on staff route",
			header:    "Bearer buyer-token",
			verifier:  &stubTokenVerifier{token: buyerToken(map[string]any{"role": "user"})},
			roles:     []string{RoleStaff, RoleAdmin},
			wantCode:  http.StatusForbidden,
			wantError: "insufficient_role",
		},
		{
			name:      "expired token",
			header:    "Bearer expired",
			verifier:  &stubTokenVerifier{err: ErrTokenExpired},
			wantCode:  http.StatusUnauthorized,
			wantError: "token_expired",
		},
		{
			name:      "revoked session reported as expired",
			header:    "Bearer revoked",
			verifier:  &stubTokenVerifier{err: fmt.Errorf("%w: session revoked", ErrTokenExpired)},
			wantCode:  http.StatusUnauthorized,
			wantError: "token_expired",
		},
		{
			name:      "verification failure",
			header:    "Bearer forged",
			verifier:  &stubTokenVerifier{err: errors.New("bad signature")},
			wantCode:  http.StatusUnauthorized,
			wantError: "invalid_token",
		},
		{name: "missing header", verifier: &stubTokenVerifier{}, wantCode: http.StatusUnauthorized, wantError: "unauthenticated"},
		{name: "basic scheme", header: "Basic abc", verifier: &stubTokenVerifier{}, wantCode: http.StatusUnauthorized, wantError: "unauthenticated"},
		{name: "blank bearer", header: "Bearer   ", verifier: &stubTokenVerifier{}, wantCode: http.StatusUnauthorized, wantError: "unauthenticated"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reached := false
			handler := NewAuthenticator(tc.verifier).RequireFirebaseAuth(tc.roles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				identity, ok := IdentityFromContext(r.Context())
				require.True(t, ok)
				if tc.check != nil {
					tc.check(t, identity)
				}
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.wantCode, rr.Code)
			require.Equal(t, tc.wantError == "", reached)
			if tc.wantError != "" {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				require.Equal(t, tc.wantError, body["error"])
			}
		})
	}
}

func TestRequireFirebaseAuthPassesRawToken(t *testing.T) {
	verifier := &stubTokenVerifier{token: buyerToken(nil)}
	handler := NewAuthenticator(verifier).RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer  token-value ")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "token-value", verifier.received)
}

func TestIdentityRoles(t *testing.T) {
	var missing *Identity
	require.False(t, missing.HasRole(RoleUser))
	require.False(t, (&Identity{Roles: []string{"user"}}).HasRole(" "))
	require.True(t, (&Identity{Roles: []string{" Admin "}}).IsStaff())

	_, ok := IdentityFromContext(context.Background())
	require.False(t, ok)
}
