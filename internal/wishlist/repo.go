package wishlist

import (
	"context"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Wishlist, error) {
	var list models.Wishlist
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&list).Error; err != nil {
		return nil, err
	}
	return &list, nil
}

// FindShared loads a public wishlist by its share token.
func (r *Repository) FindShared(ctx context.Context, token string) (*models.Wishlist, error) {
	var list models.Wishlist
	err := r.db.WithContext(ctx).
		Where("share_token = ? AND is_public = ?", token, true).
		First(&list).Error
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (r *Repository) Save(ctx context.Context, list *models.Wishlist) error {
	return r.db.WithContext(ctx).Save(list).Error
}
