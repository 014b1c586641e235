package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/reviews"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
)

func ReviewsCreate(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("reviews"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reviews.CreateReviewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Create(r.Context(), actor, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, "review submitted for moderation", review)
	}
}

// ReviewsForProduct lists the approved reviews of a product.
func ReviewsForProduct(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("reviews"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, meta, err := svc.ListForProduct(r.Context(), productID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, rows, len(rows), &meta)
	}
}

func ReviewsUpdate(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("reviews"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reviews.UpdateReviewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Update(r.Context(), actor, reviewID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "review updated", review)
	}
}

func ReviewsDelete(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("reviews"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), actor, reviewID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "review deleted", nil)
	}
}

func ReviewsReport(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("reviews"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reviews.ReportRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Report(r.Context(), actor, reviewID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "review reported", review)
	}
}

// ModeratorReviewQueue lists reviews awaiting approval or flagged by users.
func ModeratorReviewQueue(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("reviews"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, meta, err := svc.Queue(r.Context(), actor, strings.TrimSpace(r.URL.Query().Get("state")), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, rows, len(rows), &meta)
	}
}

type reviewAction func(svc reviews.Service, r *http.Request, actor reviewActor) (*reviews.ReviewDTO, error)

func ModeratorApproveReview(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return moderateReview(svc, logg, "review approved", func(svc reviews.Service, r *http.Request, a reviewActor) (*reviews.ReviewDTO, error) {
		return svc.Approve(r.Context(), a.actor, a.reviewID)
	})
}

func ModeratorUnflagReview(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return moderateReview(svc, logg, "review unflagged", func(svc reviews.Service, r *http.Request, a reviewActor) (*reviews.ReviewDTO, error) {
		return svc.Unflag(r.Context(), a.actor, a.reviewID)
	})
}

func ModeratorRemoveReview(svc reviews.Service, logg *logger.Logger) http.HandlerFunc {
	return moderateReview(svc, logg, "review removed", func(svc reviews.Service, r *http.Request, a reviewActor) (*reviews.ReviewDTO, error) {
		return nil, svc.Remove(r.Context(), a.actor, a.reviewID)
	})
}

type reviewActor struct {
	actor    types.Actor
	reviewID uuid.UUID
}

func moderateReview(svc reviews.Service, logg *logger.Logger, message string, action reviewAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("reviews"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reviewID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := action(svc, r, reviewActor{actor: actor, reviewID: reviewID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if review == nil {
			responses.WriteMessage(w, message, nil)
			return
		}
		responses.WriteMessage(w, message, review)
	}
}
