package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uniqueReviewConstraint = "reviews_product_customer_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Service owns review submission, moderation and the product rating aggregate.
type Service interface {
	Create(ctx context.Context, actor types.Actor, req CreateReviewRequest) (*ReviewDTO, error)
	Update(ctx context.Context, actor types.Actor, reviewID uuid.UUID, req UpdateReviewRequest) (*ReviewDTO, error)
	Delete(ctx context.Context, actor types.Actor, reviewID uuid.UUID) error
	ListForProduct(ctx context.Context, productID uuid.UUID, page pagination.Params) ([]ReviewDTO, types.PaginationMeta, error)
	Report(ctx context.Context, actor types.Actor, reviewID uuid.UUID, req ReportRequest) (*ReviewDTO, error)
	Approve(ctx context.Context, actor types.Actor, reviewID uuid.UUID) (*ReviewDTO, error)
	Unflag(ctx context.Context, actor types.Actor, reviewID uuid.UUID) (*ReviewDTO, error)
	Remove(ctx context.Context, actor types.Actor, reviewID uuid.UUID) error
	Queue(ctx context.Context, actor types.Actor, queue string, page pagination.Params) ([]ReviewDTO, types.PaginationMeta, error)
}

type ServiceParams struct {
	Tx       txRunner
	Reviews  *Repository
	Products *product.Repository
	Orders   orderReader
	Metrics  *metrics.MarketplaceMetrics
}

type service struct {
	tx       txRunner
	reviews  *Repository
	products *product.Repository
	orders   orderReader
	metrics  *metrics.MarketplaceMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Reviews == nil {
		return nil, fmt.Errorf("reviews repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	return &service{
		tx:       params.Tx,
		reviews:  params.Reviews,
		products: params.Products,
		orders:   params.Orders,
		metrics:  params.Metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create records an unapproved review. The referenced order must be the
// caller's, delivered, and contain the product.
func (s *service) Create(ctx context.Context, actor types.Actor, req CreateReviewRequest) (*ReviewDTO, error) {
	if !actor.Is(enums.RoleCustomer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can review products")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	title := strings.TrimSpace(req.Title)
	comment := strings.TrimSpace(req.Comment)
	if title == "" || comment == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title and comment are required")
	}

	if _, err := s.products.FindByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
	}
	order, err := s.orders.FindByID(ctx, req.OrderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load order")
	}
	if order == nil || !actor.Owns(order.CustomerID) ||
		order.OrderStatus != enums.OrderStatusDelivered || !order.ContainsProduct(req.ProductID) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product not in order")
	}

	review := &models.Review{
		ProductID:  req.ProductID,
		CustomerID: actor.UserID,
		OrderID:    req.OrderID,
		Rating:     req.Rating,
		Title:      title,
		Comment:    comment,
		Reports:    []models.ReviewReport{},
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		if db.IsUniqueViolation(err, uniqueReviewConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateReview, "you have already reviewed this product")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert review")
	}
	s.metrics.ReviewSubmitted()
	dto := FromModel(review, false)
	return &dto, nil
}

// Update lets the author edit their review. Any edit sends it back to moderation.
func (s *service) Update(ctx context.Context, actor types.Actor, reviewID uuid.UUID, req UpdateReviewRequest) (*ReviewDTO, error) {
	var out *models.Review
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reviews, products := s.reviews.WithTx(tx), s.products.WithTx(tx)
		review, err := loadForUpdate(ctx, reviews, reviewID)
		if err != nil {
			return err
		}
		if !actor.Owns(review.CustomerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the author can edit this review")
		}
		if req.Rating != nil {
			if *req.Rating < 1 || *req.Rating > 5 {
				return pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
			}
			review.Rating = *req.Rating
		}
		if req.Title != nil {
			if review.Title = strings.TrimSpace(*req.Title); review.Title == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
			}
		}
		if req.Comment != nil {
			if review.Comment = strings.TrimSpace(*req.Comment); review.Comment == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "comment cannot be empty")
			}
		}
		wasApproved := review.IsApproved
		review.IsApproved = false
		review.ApprovedBy = nil
		review.ApprovedAt = nil
		if err := reviews.Save(ctx, review); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update review")
		}
		if wasApproved {
			if err := recompute(ctx, reviews, products, review.ProductID); err != nil {
				return err
			}
		}
		out = review
		return nil
	})
	if err != nil {
		return nil, asTyped(err)
	}
	dto := FromModel(out, false)
	return &dto, nil
}

// Delete removes a review on behalf of its author or an admin.
func (s *service) Delete(ctx context.Context, actor types.Actor, reviewID uuid.UUID) error {
	return s.remove(ctx, reviewID, func(review *models.Review) error {
		if actor.Owns(review.CustomerID) || actor.Is(enums.RoleAdmin) {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the author or an admin can delete this review")
	})
}

// ListForProduct is the public listing; only approved reviews are shown.
func (s *service) ListForProduct(ctx context.Context, productID uuid.UUID, page pagination.Params) ([]ReviewDTO, types.PaginationMeta, error) {
	return s.list(ctx, ListFilter{ProductID: &productID, ApprovedOnly: true}, page, false)
}

// Report flags a review. Each user reports a review at most once.
func (s *service) Report(ctx context.Context, actor types.Actor, reviewID uuid.UUID, req ReportRequest) (*ReviewDTO, error) {
	reason, err := enums.ParseReportReason(strings.TrimSpace(req.Reason))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	var out *models.Review
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reviews := s.reviews.WithTx(tx)
		review, err := loadForUpdate(ctx, reviews, reviewID)
		if err != nil {
			return err
		}
		if actor.Owns(review.CustomerID) {
			return pkgerrors.New(pkgerrors.CodeValidation, "you cannot report your own review")
		}
		if review.ReportedBy(actor.UserID) {
			return pkgerrors.New(pkgerrors.CodeConflict, "you have already reported this review")
		}
		review.Reports = append(review.Reports, models.ReviewReport{
			ReporterID: actor.UserID,
			Reason:     reason,
			Note:       strings.TrimSpace(req.Note),
			ReportedAt: s.now(),
		})
		review.IsFlagged = true
		if err := reviews.SaveFlags(ctx, review); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: flag review")
		}
		out = review
		return nil
	})
	if err != nil {
		return nil, asTyped(err)
	}
	s.metrics.ReviewModerated("flag")
	dto := FromModel(out, false)
	return &dto, nil
}

// Approve publishes a review, clearing any flag, and refreshes the product rating.
func (s *service) Approve(ctx context.Context, actor types.Actor, reviewID uuid.UUID) (*ReviewDTO, error) {
	if !isModerator(actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only moderators can approve reviews")
	}
	var out *models.Review
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reviews, products := s.reviews.WithTx(tx), s.products.WithTx(tx)
		review, err := loadForUpdate(ctx, reviews, reviewID)
		if err != nil {
			return err
		}
		now := s.now()
		approver := actor.UserID
		review.IsApproved = true
		review.IsFlagged = false
		review.ApprovedBy = &approver
		review.ApprovedAt = &now
		if err := reviews.Save(ctx, review); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: approve review")
		}
		if err := recompute(ctx, reviews, products, review.ProductID); err != nil {
			return err
		}
		out = review
		return nil
	})
	if err != nil {
		return nil, asTyped(err)
	}
	s.metrics.ReviewModerated("approve")
	dto := FromModel(out, true)
	return &dto, nil
}

// Unflag clears the flag without changing approval.
func (s *service) Unflag(ctx context.Context, actor types.Actor, reviewID uuid.UUID) (*ReviewDTO, error) {
	if !isModerator(actor) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only moderators can unflag reviews")
	}
	var (
		out     *models.Review
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reviews := s.reviews.WithTx(tx)
		review, err := loadForUpdate(ctx, reviews, reviewID)
		if err != nil {
			return err
		}
		out = review
		if !review.IsFlagged {
			return nil
		}
		review.IsFlagged = false
		if err := reviews.SaveFlags(ctx, review); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: unflag review")
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, asTyped(err)
	}
	if changed {
		s.metrics.ReviewModerated("unflag")
	}
	dto := FromModel(out, true)
	return &dto, nil
}

// Remove deletes a review from the moderation queue.
func (s *service) Remove(ctx context.Context, actor types.Actor, reviewID uuid.UUID) error {
	if !isModerator(actor) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only moderators can remove reviews")
	}
	if err := s.remove(ctx, reviewID, nil); err != nil {
		return err
	}
	s.metrics.ReviewModerated("remove")
	return nil
}

func (s *service) Queue(ctx context.Context, actor types.Actor, queue string, page pagination.Params) ([]ReviewDTO, types.PaginationMeta, error) {
	if !isModerator(actor) {
		return nil, types.PaginationMeta{}, pkgerrors.New(pkgerrors.CodeForbidden, "only moderators can view the review queue")
	}
	parsed, err := enums.ParseReviewQueue(strings.TrimSpace(queue))
	if err != nil {
		return nil, types.PaginationMeta{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	filter := ListFilter{PendingOnly: true}
	if parsed == enums.ReviewQueueFlagged {
		filter = ListFilter{FlaggedOnly: true}
	}
	return s.list(ctx, filter, page, true)
}

func (s *service) list(ctx context.Context, filter ListFilter, page pagination.Params, withReports bool) ([]ReviewDTO, types.PaginationMeta, error) {
	rows, total, err := s.reviews.List(ctx, filter, page)
	if err != nil {
		return nil, types.PaginationMeta{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list reviews")
	}
	out := make([]ReviewDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i], withReports))
	}
	return out, page.Meta(total), nil
}

func (s *service) remove(ctx context.Context, reviewID uuid.UUID, authorize func(*models.Review) error) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reviews, products := s.reviews.WithTx(tx), s.products.WithTx(tx)
		review, err := loadForUpdate(ctx, reviews, reviewID)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(review); err != nil {
				return err
			}
		}
		if err := reviews.Delete(ctx, review.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete review")
		}
		if review.IsApproved {
			return recompute(ctx, reviews, products, review.ProductID)
		}
		return nil
	})
	return asTyped(err)
}

// recompute stores the mean of the product's approved ratings.
func recompute(ctx context.Context, reviews *Repository, products *product.Repository, productID uuid.UUID) error {
	scores, err := reviews.ApprovedRatings(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load ratings")
	}
	if err := products.UpdateRatings(ctx, productID, types.ComputeRatings(scores)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product ratings")
	}
	return nil
}

func loadForUpdate(ctx context.Context, repo *Repository, reviewID uuid.UUID) (*models.Review, error) {
	review, err := repo.FindByIDForUpdate(ctx, reviewID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "review not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load review")
	}
	return review, nil
}

func asTyped(err error) error {
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: commit review change")
}

func isModerator(actor types.Actor) bool {
	return actor.Is(enums.RoleModerator, enums.RoleAdmin)
}
