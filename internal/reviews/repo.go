package reviews

import (
	"context"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists reviews.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ListFilter narrows a review listing. Zero values match everything.
type ListFilter struct {
	ProductID    *uuid.UUID
	ApprovedOnly bool
	PendingOnly  bool
	FlaggedOnly  bool
}

func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// FindByIDForUpdate loads a review and locks its row until the transaction ends.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&review, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// SaveFlags writes only the report list and flag, leaving approval untouched.
func (r *Repository) SaveFlags(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).
		Model(review).
		Select("reports", "is_flagged", "updated_at").
		Updates(review).Error
}

// Save writes every mutable column of review.
func (r *Repository) Save(ctx context.Context, review *models.Review) error {
	return r.db.WithContext(ctx).
		Model(review).
		Select("*").
		Omit("id", "created_at").
		Updates(review).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Review{}, "id = ?", id).Error
}

// ApprovedRatings returns the scores of every approved review of productID.
func (r *Repository) ApprovedRatings(ctx context.Context, productID uuid.UUID) ([]int, error) {
	var scores []int
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("product_id = ? AND is_approved = ?", productID, true).
		Pluck("rating", &scores).Error
	return scores, err
}

func (r *Repository) List(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Review{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.ApprovedOnly {
		query = query.Where("is_approved = ?", true)
	}
	if filter.PendingOnly {
		query = query.Where("is_approved = ?", false)
	}
	if filter.FlaggedOnly {
		query = query.Where("is_flagged = ?", true)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	var rows []models.Review
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
