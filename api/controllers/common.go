package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// requireActor returns the authenticated caller or an Unauthorized error.
func requireActor(ctx context.Context) (types.Actor, error) {
	id, role, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return types.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return types.Actor{UserID: id, Role: role}, nil
}

// optionalActor returns nil for anonymous requests.
func optionalActor(ctx context.Context) *types.Actor {
	id, role, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return nil
	}
	return &types.Actor{UserID: id, Role: role}
}

func pageParams(r *http.Request) (pagination.Params, error) {
	page, err := validators.ParseQueryInt(r, "page", 1, 1, 100000)
	if err != nil {
		return pagination.Params{}, err
	}
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Page: page, Limit: limit}, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
}
