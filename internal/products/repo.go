package product

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository wires together all product persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads every listed product keyed by id. Missing ids are absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// Create inserts a new product row.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// listingColumns are the columns owned by catalogue edits and moderation.
// Stock, sales, views and ratings move through their own atomic updates.
var listingColumns = []string{
	"name", "description", "category", "sub_category", "brand", "sku",
	"price", "compare_at_price", "images", "tags", "variants",
	"is_active", "is_featured", "is_approved", "approval_status",
	"approved_by", "approved_at", "rejection_reason", "updated_at",
}

// UpdateListing writes the listing columns of product plus any extra columns
// named by the caller. It reports whether a row matched.
func (r *Repository) UpdateListing(ctx context.Context, product *models.Product, extra ...string) (bool, error) {
	columns := append(append([]string{}, listingColumns...), extra...)
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Select(columns).
		Updates(product)
	return res.RowsAffected > 0, res.Error
}

// Delete removes a product by ID and reports whether a row matched.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

// IncrementViews bumps the view counter without touching updated_at.
func (r *Repository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
}

// SetStock overwrites the stock level and reports whether a row matched.
func (r *Repository) SetStock(ctx context.Context, id uuid.UUID, stock int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{"stock": stock, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

// DecrementStock atomically takes qty units off the shelf and adds them to the
// sales counter. It reports false when the product has fewer than qty units.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumns(map[string]any{
			"stock":       gorm.Expr("stock - ?", qty),
			"sales_count": gorm.Expr("sales_count + ?", qty),
		})
	return res.RowsAffected > 0, res.Error
}

// UpdateRatings stores the aggregate of approved reviews.
func (r *Repository) UpdateRatings(ctx context.Context, id uuid.UUID, ratings types.Ratings) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"rating_average": ratings.Average,
			"rating_count":   ratings.Count,
		}).Error
}

// List executes plan and returns one page plus the unpaged total.
func (r *Repository) List(ctx context.Context, plan ListPlan) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	for _, cond := range plan.Conditions {
		if cond.Op == "IN" {
			query = query.Where(clause.IN{Column: clause.Column{Name: cond.Column}, Values: cond.Value.([]any)})
			continue
		}
		query = query.Where(fmt.Sprintf("%s %s ?", quoteColumn(cond.Column), cond.Op), cond.Value)
	}
	if plan.Search != "" {
		like := "%" + plan.Search + "%"
		query = query.Where("(LOWER(name) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?) OR LOWER(category) LIKE LOWER(?))", like, like, like)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if len(plan.Columns) > 0 {
		query = query.Select(plan.Columns)
	}
	if len(plan.Sort) == 0 {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true})
	}
	for _, key := range plan.Sort {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: key.Column}, Desc: key.Desc})
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true})

	page := plan.Page.Normalize()
	var rows []models.Product
	if err := query.Offset(page.Offset()).Limit(page.Limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// quoteColumn only ever receives whitelisted column names.
func quoteColumn(column string) string {
	return `"` + column + `"`
}
