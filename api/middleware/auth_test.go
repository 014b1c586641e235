package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/google/uuid"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	return s.ok, s.err
}

type stubResolver struct {
	role   enums.Role
	active bool
	err    error
}

func (s stubResolver) ResolveIdentity(ctx context.Context, userID uuid.UUID) (enums.Role, bool, error) {
	return s.role, s.active, s.err
}

func mintTestToken(t *testing.T, role enums.Role) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role, JTI: "jti-1"})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, userID
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func serve(handler http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil, nil)(okHandler())
	if rec := serve(handler, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, nil, nil)(okHandler())
	if rec := serve(handler, "invalid"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	token, _ := mintTestToken(t, enums.RoleCustomer)
	handler := Auth(testJWT, stubSessionVerifier{ok: false}, nil, nil)(okHandler())
	if rec := serve(handler, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthSessionStoreFailureIs503(t *testing.T) {
	token, _ := mintTestToken(t, enums.RoleCustomer)
	handler := Auth(testJWT, stubSessionVerifier{err: errors.New("redis down")}, nil, nil)(okHandler())
	if rec := serve(handler, token); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestAuthRejectsInactiveOrMissingUser(t *testing.T) {
	token, _ := mintTestToken(t, enums.RoleVendor)

	inactive := Auth(testJWT, stubSessionVerifier{ok: true}, stubResolver{role: enums.RoleVendor, active: false}, nil)(okHandler())
	if rec := serve(inactive, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive user, got %d", rec.Code)
	}

	missing := Auth(testJWT, stubSessionVerifier{ok: true}, stubResolver{err: pkgerrors.New(pkgerrors.CodeNotFound, "user not found")}, nil)(okHandler())
	if rec := serve(missing, token); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user, got %d", rec.Code)
	}
}

func TestAuthUsesStoredRole(t *testing.T) {
	token, userID := mintTestToken(t, enums.RoleAdmin)

	var capturedUser, capturedRole, capturedAccess string
	handler := Auth(testJWT, stubSessionVerifier{ok: true}, stubResolver{role: enums.RoleCustomer, active: true}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedUser = UserIDFromContext(r.Context())
			capturedRole = RoleFromContext(r.Context())
			capturedAccess = AccessIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	if rec := serve(handler, token); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if capturedUser != userID.String() {
		t.Fatalf("expected user %s, got %s", userID, capturedUser)
	}
	if capturedRole != string(enums.RoleCustomer) {
		t.Fatalf("expected stored role customer, got %s", capturedRole)
	}
	if capturedAccess != "jti-1" {
		t.Fatalf("expected access id jti-1, got %s", capturedAccess)
	}
}

func TestOptionalAuthAllowsAnonymousAndBadTokens(t *testing.T) {
	var sawUser bool
	handler := OptionalAuth(testJWT, stubSessionVerifier{ok: true}, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _, sawUser = ActorFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	if rec := serve(handler, ""); rec.Code != http.StatusOK || sawUser {
		t.Fatalf("expected anonymous pass-through, code=%d user=%v", rec.Code, sawUser)
	}
	if rec := serve(handler, "garbage"); rec.Code != http.StatusOK || sawUser {
		t.Fatalf("expected bad token to be ignored, code=%d user=%v", rec.Code, sawUser)
	}

	token, _ := mintTestToken(t, enums.RoleModerator)
	if rec := serve(handler, token); rec.Code != http.StatusOK || !sawUser {
		t.Fatalf("expected identity for valid token, code=%d user=%v", rec.Code, sawUser)
	}
}

func TestRequireRoles(t *testing.T) {
	handler := RequireRoles(nil, enums.RoleAdmin, enums.RoleModerator)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}

	ctx := WithRole(WithUserID(context.Background(), uuid.NewString()), string(enums.RoleCustomer))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rec.Code)
	}

	ctx = WithRole(WithUserID(context.Background(), uuid.NewString()), string(enums.RoleModerator))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for moderator, got %d", rec.Code)
	}
}
