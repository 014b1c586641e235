package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/angelmondragon/bazaar-backend/internal/reviews"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
)

type stubReviews struct {
	reviews.Service
	queue   string
	removed uuid.UUID
}

func (s *stubReviews) Queue(ctx context.Context, actor types.Actor, queue string, page pagination.Params) ([]reviews.ReviewDTO, types.PaginationMeta, error) {
	s.queue = queue
	if queue == "archived" {
		return nil, types.PaginationMeta{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown review queue")
	}
	return []reviews.ReviewDTO{{ID: uuid.New(), IsFlagged: true}}, types.PaginationMeta{Page: 1, Limit: 20, Total: 1, Pages: 1}, nil
}

func (s *stubReviews) Remove(ctx context.Context, actor types.Actor, id uuid.UUID) error {
	s.removed = id
	return nil
}

func TestModeratorReviewQueue(t *testing.T) {
	svc := &stubReviews{}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/moderator/reviews?state=flagged", nil), uuid.New(), enums.RoleModerator)
	resp, body := serve(t, ModeratorReviewQueue(svc, nil), req)
	if resp.Code != http.StatusOK || svc.queue != "flagged" {
		t.Fatalf("expected flagged queue, got %d %q", resp.Code, svc.queue)
	}
	if body.Count == nil || *body.Count != 1 {
		t.Fatalf("expected count 1")
	}

	req = asUser(httptest.NewRequest(http.MethodGet, "/api/moderator/reviews?state=archived", nil), uuid.New(), enums.RoleModerator)
	resp, _ = serve(t, ModeratorReviewQueue(svc, nil), req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestModeratorRemoveReview(t *testing.T) {
	svc := &stubReviews{}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/moderator/reviews/"+id.String(), nil)
	req = withParams(asUser(req, uuid.New(), enums.RoleModerator), "id", id.String())

	resp, body := serve(t, ModeratorRemoveReview(svc, nil), req)
	if resp.Code != http.StatusOK || svc.removed != id {
		t.Fatalf("expected removal of %s got %d", id, resp.Code)
	}
	if len(body.Data) != 0 {
		t.Fatalf("expected no data, got %s", body.Data)
	}
}
