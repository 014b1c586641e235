package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const cartCustomerConstraint = "carts_customer_id_key"

// Service manages a customer's cart.
type Service interface {
	Get(ctx context.Context, customerID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, customerID uuid.UUID, req AddItemRequest) (*CartDTO, error)
	UpdateItem(ctx context.Context, customerID, itemID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, customerID, itemID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, customerID uuid.UUID) (*CartDTO, error)
	Sync(ctx context.Context, customerID uuid.UUID, items []AddItemRequest) (*CartDTO, error)
}

type cartRepository interface {
	FindByCustomer(ctx context.Context, customerID uuid.UUID) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart) error
}

type productReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type service struct {
	repo     cartRepository
	products productReader
	now      func() time.Time
}

// NewService builds a cart service.
func NewService(repo cartRepository, products productReader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	return &service{
		repo:     repo,
		products: products,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, customerID uuid.UUID) (*CartDTO, error) {
	cart, err := s.load(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, cart)
}

func (s *service) AddItem(ctx context.Context, customerID uuid.UUID, req AddItemRequest) (*CartDTO, error) {
	if req.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	variants := req.Variants.Normalize()
	return s.mutate(ctx, customerID, func(cart *models.Cart) error {
		idx := cart.FindLine(req.ProductID, variants)
		quantity := req.Quantity
		if idx >= 0 {
			quantity += cart.Items[idx].Quantity
		}
		product, err := s.checkProduct(ctx, req.ProductID, quantity, variants)
		if err != nil {
			return err
		}
		if idx >= 0 {
			cart.Items[idx].Quantity = quantity
			cart.Items[idx].Price = product.Price
			return nil
		}
		cart.Items = append(cart.Items, s.newLine(product, quantity, variants))
		return nil
	})
}

func (s *service) UpdateItem(ctx context.Context, customerID, itemID uuid.UUID, quantity int) (*CartDTO, error) {
	return s.mutate(ctx, customerID, func(cart *models.Cart) error {
		idx := cart.FindLineByID(itemID)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		if quantity <= 0 {
			cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
			return nil
		}
		item := cart.Items[idx]
		product, err := s.checkProduct(ctx, item.ProductID, quantity, item.Variants)
		if err != nil {
			return err
		}
		cart.Items[idx].Quantity = quantity
		cart.Items[idx].Price = product.Price
		return nil
	})
}

func (s *service) RemoveItem(ctx context.Context, customerID, itemID uuid.UUID) (*CartDTO, error) {
	return s.UpdateItem(ctx, customerID, itemID, 0)
}

func (s *service) Clear(ctx context.Context, customerID uuid.UUID) (*CartDTO, error) {
	return s.mutate(ctx, customerID, func(cart *models.Cart) error {
		cart.Items = []models.CartItem{}
		return nil
	})
}

// Sync replaces the cart wholesale. Every line is validated first; a single bad
// line rejects the whole request and leaves the stored cart untouched.
func (s *service) Sync(ctx context.Context, customerID uuid.UUID, items []AddItemRequest) (*CartDTO, error) {
	type merged struct {
		req      AddItemRequest
		quantity int
	}
	lines := make([]*merged, 0, len(items))
	for _, req := range items {
		req.Variants = req.Variants.Normalize()
		var existing *merged
		for _, line := range lines {
			if line.req.ProductID == req.ProductID && line.req.Variants.Equal(req.Variants) {
				existing = line
				break
			}
		}
		if existing != nil {
			existing.quantity += req.Quantity
			continue
		}
		lines = append(lines, &merged{req: req, quantity: req.Quantity})
	}

	var errs error
	next := make([]models.CartItem, 0, len(lines))
	for i, line := range lines {
		if line.quantity < 1 {
			errs = multierr.Append(errs, pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be at least 1", i+1))
			continue
		}
		product, err := s.checkProduct(ctx, line.req.ProductID, line.quantity, line.req.Variants)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		next = append(next, s.newLine(product, line.quantity, line.req.Variants))
	}
	if errs != nil {
		return nil, pkgerrors.Aggregate(errs, "cart sync rejected")
	}

	return s.mutate(ctx, customerID, func(cart *models.Cart) error {
		cart.Items = next
		return nil
	})
}

// checkProduct verifies the product can be bought in the requested quantity
// and variant combination.
func (s *service) checkProduct(ctx context.Context, productID uuid.UUID, quantity int, variants types.VariantSelection) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", productID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
	}
	if !product.IsPurchasable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is not available for purchase", product.Name)
	}
	if err := product.Variants.Validate(variants); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	if product.Stock < quantity {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "only %d of %s in stock", product.Stock, product.Name)
	}
	return product, nil
}

func (s *service) newLine(product *models.Product, quantity int, variants types.VariantSelection) models.CartItem {
	return models.CartItem{
		ID:        uuid.New(),
		ProductID: product.ID,
		Quantity:  quantity,
		Price:     product.Price,
		Variants:  variants,
		AddedAt:   s.now(),
	}
}

// load returns the stored cart or an unsaved empty one.
func (s *service) load(ctx context.Context, customerID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Cart{CustomerID: customerID, Items: []models.CartItem{}}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load cart")
	}
	return cart, nil
}

// mutate applies fn to the customer's cart and persists it. A concurrent first
// write for the same customer loses the unique race once and is replayed on
// the stored cart.
func (s *service) mutate(ctx context.Context, customerID uuid.UUID, fn func(cart *models.Cart) error) (*CartDTO, error) {
	for attempt := 0; ; attempt++ {
		cart, err := s.load(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if err := fn(cart); err != nil {
			return nil, err
		}
		err = s.repo.Save(ctx, cart)
		if err == nil {
			return s.present(ctx, cart)
		}
		if attempt == 0 && db.IsUniqueViolation(err, cartCustomerConstraint) {
			continue
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: save cart")
	}
}

func (s *service) present(ctx context.Context, cart *models.Cart) (*CartDTO, error) {
	cart.RecomputeTotals()
	if len(cart.Items) == 0 {
		return FromModel(cart, nil), nil
	}
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load cart products")
	}
	return FromModel(cart, products), nil
}
