package orders

import (
	"context"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository persists orders and their delivery history.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListFilter scopes an order listing. Nil ids are not applied.
type ListFilter struct {
	CustomerID *uuid.UUID
	VendorID   *uuid.UUID
	AgentID    *uuid.UUID
	Status     enums.OrderStatus
}

// StatusCount is one row of the vendor stats aggregate.
type StatusCount struct {
	Status  enums.OrderStatus
	Count   int64
	Revenue decimal.Decimal
}

func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// NumberExists reports whether an order already carries number.
func (r *Repository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_number = ?", number).
		Count(&count).Error
	return count > 0, err
}

// SaveIfUnchanged writes every column of order provided the stored order and
// delivery states still equal the given ones. It reports false when another
// writer moved the order first.
func (r *Repository) SaveIfUnchanged(ctx context.Context, order *models.Order, orderStatus enums.OrderStatus, deliveryStatus *enums.DeliveryStatus) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(order).
		Where("order_status = ?", orderStatus)
	if deliveryStatus == nil {
		query = query.Where("delivery_status IS NULL")
	} else {
		query = query.Where("delivery_status = ?", *deliveryStatus)
	}
	res := query.
		Select("*").
		Omit("id", "created_at").
		Updates(order)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) List(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.VendorID != nil {
		query = query.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.AgentID != nil {
		query = query.Where("delivery_agent_id = ?", *filter.AgentID)
	}
	if filter.Status != "" {
		query = query.Where("order_status = ?", filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page = page.Normalize()
	var rows []models.Order
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

// VendorStatusCounts groups a vendor's orders by status with the summed totals.
func (r *Repository) VendorStatusCounts(ctx context.Context, vendorID uuid.UUID) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("order_status AS status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS revenue").
		Where("vendor_id = ?", vendorID).
		Group("order_status").
		Scan(&rows).Error
	return rows, err
}

func (r *Repository) CreateDeliveryStatus(ctx context.Context, status *models.DeliveryStatus) error {
	return r.db.WithContext(ctx).Create(status).Error
}

func (r *Repository) FindDeliveryStatus(ctx context.Context, id uuid.UUID) (*models.DeliveryStatus, error) {
	var status models.DeliveryStatus
	if err := r.db.WithContext(ctx).First(&status, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &status, nil
}

// DeliveryHistory returns an order's delivery records oldest first.
func (r *Repository) DeliveryHistory(ctx context.Context, orderID uuid.UUID) ([]models.DeliveryStatus, error) {
	var rows []models.DeliveryStatus
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("recorded_at ASC").
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// LatestDeliveryStatus returns the newest record, optionally restricted to status.
func (r *Repository) LatestDeliveryStatus(ctx context.Context, orderID uuid.UUID, status enums.DeliveryStatus) (*models.DeliveryStatus, error) {
	query := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var row models.DeliveryStatus
	if err := query.Order("recorded_at DESC").Order("created_at DESC").First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateDeliveryAnnotations writes the issue and feedback columns only; the rest
// of a delivery record is immutable.
func (r *Repository) UpdateDeliveryAnnotations(ctx context.Context, status *models.DeliveryStatus) error {
	return r.db.WithContext(ctx).
		Model(status).
		Select("issue", "feedback").
		Updates(status).Error
}
