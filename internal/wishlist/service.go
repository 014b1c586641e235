package wishlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultName          = "My Wishlist"
	shareTokenBytes      = 18
	shareTokenAttempts   = 3
	shareTokenConstraint = "wishlists_share_token_key"
	customerConstraint   = "wishlists_customer_id_key"
)

// Service manages saved-for-later lists.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*WishlistDTO, error)
	AddItem(ctx context.Context, customerID uuid.UUID, req AddItemRequest) (*WishlistDTO, error)
	UpdateItem(ctx context.Context, customerID, productID uuid.UUID, req UpdateItemRequest) (*WishlistDTO, error)
	RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*WishlistDTO, error)
	Share(ctx context.Context, customerID uuid.UUID) (*ShareDTO, error)
	Unshare(ctx context.Context, customerID uuid.UUID) (*WishlistDTO, error)
	GetShared(ctx context.Context, token string) (*WishlistDTO, error)
	MoveToCart(ctx context.Context, customerID, productID uuid.UUID, req MoveToCartRequest) (*cart.CartDTO, error)
}

type wishlistRepository interface {
	FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Wishlist, error)
	FindShared(ctx context.Context, token string) (*models.Wishlist, error)
	Save(ctx context.Context, list *models.Wishlist) error
}

type productReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type cartAdder interface {
	AddItem(ctx context.Context, customerID uuid.UUID, req cart.AddItemRequest) (*cart.CartDTO, error)
}

type service struct {
	repo     wishlistRepository
	products productReader
	carts    cartAdder
	now      func() time.Time
	token    func() (string, error)
}

// NewService builds a wishlist service.
func NewService(repo wishlistRepository, products productReader, carts cartAdder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wishlist repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	return &service{
		repo:     repo,
		products: products,
		carts:    carts,
		now:      func() time.Time { return time.Now().UTC() },
		token:    func() (string, error) { return security.RandomToken(shareTokenBytes) },
	}, nil
}

func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*WishlistDTO, error) {
	list, err := s.load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, list, false)
}

func (s *service) AddItem(ctx context.Context, customerID uuid.UUID, req AddItemRequest) (*WishlistDTO, error) {
	priority, err := enums.ParseWishlistPriority(strings.TrimSpace(req.Priority))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	product, err := s.products.FindByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
	}
	if !product.IsPubliclyVisible() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	return s.mutate(ctx, customerID, func(list *models.Wishlist) error {
		if list.IndexOf(product.ID) >= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "product is already in the wishlist")
		}
		list.Items = append(list.Items, models.WishlistItem{
			ProductID:  product.ID,
			PriceAtAdd: product.Price,
			Category:   strings.TrimSpace(req.Category),
			Notes:      strings.TrimSpace(req.Notes),
			Priority:   priority,
			AddedAt:    s.now(),
		})
		return nil
	})
}

func (s *service) UpdateItem(ctx context.Context, customerID, productID uuid.UUID, req UpdateItemRequest) (*WishlistDTO, error) {
	var priority enums.WishlistPriority
	if req.Priority != nil {
		parsed, err := enums.ParseWishlistPriority(strings.TrimSpace(*req.Priority))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		priority = parsed
	}
	return s.mutate(ctx, customerID, func(list *models.Wishlist) error {
		idx := list.IndexOf(productID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the wishlist")
		}
		item := &list.Items[idx]
		if req.Category != nil {
			item.Category = strings.TrimSpace(*req.Category)
		}
		if req.Notes != nil {
			item.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.Priority != nil {
			item.Priority = priority
		}
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, customerID, productID uuid.UUID) (*WishlistDTO, error) {
	return s.mutate(ctx, customerID, func(list *models.Wishlist) error {
		_, err := removeItem(list, productID)
		return err
	})
}

// Share publishes the wishlist under a fresh token. An existing token is kept.
func (s *service) Share(ctx context.Context, customerID uuid.UUID) (*ShareDTO, error) {
	for attempt := 1; ; attempt++ {
		list, err := s.load(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if list.ShareToken == nil {
			token, err := s.token()
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate share token")
			}
			list.ShareToken = &token
		}
		list.IsPublic = true
		err = s.repo.Save(ctx, list)
		if err == nil {
			return &ShareDTO{
				ShareToken: *list.ShareToken,
				SharePath:  "/api/users/wishlist/shared/" + *list.ShareToken,
			}, nil
		}
		retryable := db.IsUniqueViolation(err, shareTokenConstraint) || db.IsUniqueViolation(err, customerConstraint)
		if retryable && attempt < shareTokenAttempts {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: share wishlist")
	}
}

func (s *service) Unshare(ctx context.Context, customerID uuid.UUID) (*WishlistDTO, error) {
	return s.mutate(ctx, customerID, func(list *models.Wishlist) error {
		list.IsPublic = false
		list.ShareToken = nil
		return nil
	})
}

func (s *service) GetShared(ctx context.Context, token string) (*WishlistDTO, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wishlist not found")
	}
	list, err := s.repo.FindShared(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wishlist not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load shared wishlist")
	}
	return s.present(ctx, list, true)
}

// MoveToCart takes the product off the wishlist and then adds it to the cart.
// The two writes are not atomic: when the cart rejects the item it is put back
// on the wishlist.
func (s *service) MoveToCart(ctx context.Context, customerID, productID uuid.UUID, req MoveToCartRequest) (*cart.CartDTO, error) {
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	var removed models.WishlistItem
	if _, err := s.mutate(ctx, customerID, func(list *models.Wishlist) error {
		item, err := removeItem(list, productID)
		removed = item
		return err
	}); err != nil {
		return nil, err
	}

	out, err := s.carts.AddItem(ctx, customerID, cart.AddItemRequest{
		ProductID: productID,
		Quantity:  quantity,
		Variants:  req.Variants,
	})
	if err == nil {
		return out, nil
	}

	_, restoreErr := s.mutate(ctx, customerID, func(list *models.Wishlist) error {
		if list.IndexOf(productID) < 0 {
			list.Items = append(list.Items, removed)
		}
		return nil
	})
	if restoreErr != nil {
		return nil, multierr.Append(err, restoreErr)
	}
	return nil, err
}

func removeItem(list *models.Wishlist, productID uuid.UUID) (models.WishlistItem, error) {
	idx := list.IndexOf(productID)
	if idx < 0 {
		return models.WishlistItem{}, pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the wishlist")
	}
	item := list.Items[idx]
	list.Items = append(list.Items[:idx], list.Items[idx+1:]...)
	return item, nil
}

// load returns the stored wishlist or an unsaved empty one.
func (s *service) load(ctx context.Context, customerID uuid.UUID) (*models.Wishlist, error) {
	list, err := s.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Wishlist{CustomerID: customerID, Name: defaultName, Items: []models.WishlistItem{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load wishlist")
	}
	return list, nil
}

func (s *service) mutate(ctx context.Context, customerID uuid.UUID, fn func(list *models.Wishlist) error) (*WishlistDTO, error) {
	for attempt := 0; ; attempt++ {
		list, err := s.load(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if err := fn(list); err != nil {
			return nil, err
		}
		err = s.repo.Save(ctx, list)
		if err == nil {
			return s.present(ctx, list, false)
		}
		if attempt == 0 && db.IsUniqueViolation(err, customerConstraint) {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: save wishlist")
	}
}

func (s *service) present(ctx context.Context, list *models.Wishlist, shared bool) (*WishlistDTO, error) {
	if len(list.Items) == 0 {
		return FromModel(list, nil, shared), nil
	}
	ids := make([]uuid.UUID, 0, len(list.Items))
	for _, item := range list.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load wishlist products")
	}
	return FromModel(list, products, shared), nil
}
