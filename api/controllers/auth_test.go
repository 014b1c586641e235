package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/bazaar-backend/internal/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/google/uuid"
)

type stubAuth struct {
	auth.Service
	tokens       *auth.TokenResponse
	err          error
	gotAccess    string
	gotRefresh   string
	gotAccessID  string
	loggedOutFor uuid.UUID
}

func (s *stubAuth) Login(ctx context.Context, req auth.LoginRequest) (*auth.TokenResponse, error) {
	return s.tokens, s.err
}

func (s *stubAuth) Register(ctx context.Context, req auth.RegisterRequest) (*auth.TokenResponse, error) {
	return s.tokens, s.err
}

func (s *stubAuth) Refresh(ctx context.Context, accessToken, refreshToken string) (*auth.RefreshResponse, error) {
	s.gotAccess, s.gotRefresh = accessToken, refreshToken
	if s.err != nil {
		return nil, s.err
	}
	return &auth.RefreshResponse{AccessToken: "next", RefreshToken: "next-refresh"}, nil
}

func (s *stubAuth) Logout(ctx context.Context, userID uuid.UUID, accessID string) error {
	s.loggedOutFor, s.gotAccessID = userID, accessID
	return s.err
}

func TestAuthLoginSetsTokenHeader(t *testing.T) {
	svc := &stubAuth{tokens: &auth.TokenResponse{AccessToken: "access", RefreshToken: "refresh"}}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.io","password":"secret"}`))

	resp, body := serve(t, AuthLogin(svc, nil), req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Bazaar-Token") != "access" {
		t.Fatalf("token header not set")
	}
	if !strings.Contains(string(body.Data), `"refreshToken":"refresh"`) {
		t.Fatalf("unexpected body %s", body.Data)
	}
}

func TestAuthLoginRejectsBadCredentials(t *testing.T) {
	svc := &stubAuth{err: pkgerrors.New(pkgerrors.CodeInvalidCredentials, "invalid email or password")}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.io","password":"nope"}`))

	resp, body := serve(t, AuthLogin(svc, nil), req)
	if resp.Code != http.StatusUnauthorized || body.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 INVALID_CREDENTIALS got %d %s", resp.Code, body.Error.Code)
	}
}

func TestAuthRegisterValidatesBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"not-an-email"}`))
	resp, body := serve(t, AuthRegister(&stubAuth{}, nil), req)
	if resp.Code != http.StatusBadRequest || body.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected 400 VALIDATION_ERROR got %d %s", resp.Code, body.Error.Code)
	}
}

func TestAuthRefreshReadsHeaderAndBody(t *testing.T) {
	svc := &stubAuth{}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refreshToken":"r1"}`))
	resp, _ := serve(t, AuthRefresh(svc, nil), req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refreshToken":"r1"}`))
	req.Header.Set("Authorization", "Bearer old-access")
	resp, _ = serve(t, AuthRefresh(svc, nil), req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.gotAccess != "old-access" || svc.gotRefresh != "r1" {
		t.Fatalf("tokens not forwarded: %q %q", svc.gotAccess, svc.gotRefresh)
	}
}

func TestAuthLogoutRequiresActor(t *testing.T) {
	svc := &stubAuth{}
	resp, _ := serve(t, AuthLogout(svc, nil), httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	userID := uuid.New()
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), userID, enums.RoleCustomer)
	resp, _ = serve(t, AuthLogout(svc, nil), req)
	if resp.Code != http.StatusOK || svc.loggedOutFor != userID {
		t.Fatalf("expected logout for %s got %d %s", userID, resp.Code, svc.loggedOutFor)
	}
}

func TestAuthServiceUnavailable(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	resp, body := serve(t, AuthLogin(nil, nil), req)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
	if body.Message != "internal server error" {
		t.Fatalf("internal message leaked: %q", body.Message)
	}
}
