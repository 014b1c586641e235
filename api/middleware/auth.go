package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	pkgAuth "github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/auth/session"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/google/uuid"
)

// IdentityResolver loads the current role and active flag of a token subject.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID uuid.UUID) (enums.Role, bool, error)
}

// Auth validates a bearer token, confirms the session and the account, and
// seeds the request context with the caller identity.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, resolver IdentityResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "no token provided"))
				return
			}
			ctx, err := authenticate(r, cfg, verifier, resolver, logg)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the caller identity when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, resolver IdentityResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r, cfg, verifier, resolver, logg)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker, resolver IdentityResolver, logg *logger.Logger) (context.Context, error) {
	token, err := validators.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "no token provided")
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if errors.Is(err, pkgAuth.ErrTokenExpired) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token expired")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	ctx := r.Context()
	if verifier != nil {
		ok, err := verifier.HasSession(ctx, claims.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired")
		}
	}

	role := claims.Role
	if resolver != nil {
		current, active, err := resolver.ResolveIdentity(ctx, claims.UserID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user no longer exists")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve identity")
		}
		if !active {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account is deactivated")
		}
		// the stored role wins so demotions apply before the token expires
		role = current
	}

	ctx = WithUserID(ctx, claims.UserID.String())
	ctx = WithRole(ctx, string(role))
	ctx = withAccessID(ctx, claims.ID)

	if logg != nil {
		ctx = logg.WithActor(ctx, claims.UserID.String(), string(role))
	}
	return ctx, nil
}
