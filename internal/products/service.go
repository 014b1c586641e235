package product

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes catalogue management and browsing.
type Service interface {
	Create(ctx context.Context, actor types.Actor, req CreateProductRequest, images []*multipart.FileHeader) (*ProductDTO, error)
	Get(ctx context.Context, actor *types.Actor, productID uuid.UUID) (*ProductDTO, error)
	List(ctx context.Context, q ListQuery, privileged bool) (*ListResult, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, q ListQuery, publicOnly bool) (*ListResult, error)
	ListPending(ctx context.Context, page pagination.Params) (*ListResult, error)
	Update(ctx context.Context, actor types.Actor, productID uuid.UUID, req UpdateProductRequest) (*ProductDTO, error)
	Delete(ctx context.Context, actor types.Actor, productID uuid.UUID) error
	Approve(ctx context.Context, actor types.Actor, productID uuid.UUID) (*ProductDTO, error)
	Reject(ctx context.Context, actor types.Actor, productID uuid.UUID, reason string) (*ProductDTO, error)
	SetStock(ctx context.Context, actor types.Actor, productID uuid.UUID, stock int) (*ProductDTO, error)
}

// ListResult is one page of listings. Items hold ProductDTO values, or
// field-projected maps when the query selected fields.
type ListResult struct {
	Items      []any
	Pagination types.PaginationMeta
}

type imageStore interface {
	SaveImages(files []*multipart.FileHeader) ([]string, error)
	Remove(urls []string) error
}

type productRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	UpdateListing(ctx context.Context, product *models.Product, extra ...string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	IncrementViews(ctx context.Context, id uuid.UUID) error
	SetStock(ctx context.Context, id uuid.UUID, stock int) (bool, error)
	List(ctx context.Context, plan ListPlan) ([]models.Product, int64, error)
}

type vendorDirectory interface {
	FindByIDAndRole(ctx context.Context, id uuid.UUID, role enums.Role) (*models.User, error)
}

type service struct {
	repo    productRepository
	images  imageStore
	vendors vendorDirectory
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs a product service instance.
func NewService(repo productRepository, images imageStore, vendors vendorDirectory, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if images == nil {
		return nil, fmt.Errorf("image store required")
	}
	if vendors == nil {
		return nil, fmt.Errorf("vendor directory required")
	}
	return &service{
		repo:    repo,
		images:  images,
		vendors: vendors,
		logg:    logg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor types.Actor, req CreateProductRequest, images []*multipart.FileHeader) (*ProductDTO, error) {
	if !actor.Is(enums.RoleVendor, enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and admins can create products")
	}
	if len(images) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product image is required").
			WithDetails(map[string]string{"images": "at least one image is required"})
	}
	if err := validatePrices(req.Price, req.CompareAtPrice); err != nil {
		return nil, err
	}
	vendorID, err := s.listingVendor(ctx, actor, req.VendorID)
	if err != nil {
		return nil, err
	}

	urls, err := s.images.SaveImages(images)
	if err != nil {
		return nil, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	product := &models.Product{
		VendorID:       vendorID,
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		Category:       strings.TrimSpace(req.Category),
		SubCategory:    trimmedOrNil(req.SubCategory),
		Brand:          trimmedOrNil(req.Brand),
		SKU:            trimmedOrNil(req.SKU),
		Price:          req.Price.Round(2),
		CompareAtPrice: roundedOrNil(req.CompareAtPrice),
		Stock:          req.Stock,
		Images:         types.StringList(urls),
		Tags:           normalizeTags(req.Tags),
		Variants:       req.Variants,
		IsActive:       isActive,
		// New listings always wait for review whatever the caller sent.
		IsApproved:     false,
		ApprovalStatus: enums.ApprovalStatusPending,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		if removeErr := s.images.Remove(urls); removeErr != nil && s.logg != nil {
			s.logg.Error(ctx, "discard product images", removeErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
	}
	return FromModel(product), nil
}

// listingVendor picks the owner of a new listing. Vendors list for themselves;
// admins default to themselves or name an active vendor.
func (s *service) listingVendor(ctx context.Context, actor types.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if requested == nil || *requested == actor.UserID {
		return actor.UserID, nil
	}
	if !actor.Is(enums.RoleAdmin) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendors can only list their own products")
	}
	vendor, err := s.vendors.FindByIDAndRole(ctx, *requested, enums.RoleVendor)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor not found").
				WithDetails(map[string]string{"vendorId": "must reference a vendor account"})
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load vendor")
	}
	if !vendor.IsActive {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor account is inactive").
			WithDetails(map[string]string{"vendorId": "vendor account is inactive"})
	}
	return vendor.ID, nil
}

func (s *service) Get(ctx context.Context, actor *types.Actor, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsPubliclyVisible() && !canSeeHidden(actor, product) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err := s.repo.IncrementViews(ctx, product.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: increment views")
	}
	product.Views++
	return FromModel(product), nil
}

func (s *service) List(ctx context.Context, q ListQuery, privileged bool) (*ListResult, error) {
	return s.list(ctx, q, q.Plan(!privileged))
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, q ListQuery, publicOnly bool) (*ListResult, error) {
	plan := q.Plan(publicOnly)
	plan.Conditions = append(plan.Conditions, Condition{Column: "vendor_id", Op: "=", Value: vendorID})
	return s.list(ctx, q, plan)
}

func (s *service) ListPending(ctx context.Context, page pagination.Params) (*ListResult, error) {
	q := ListQuery{
		Page: page,
		Sort: []SortKey{{Column: "created_at"}},
	}
	plan := q.Plan(false)
	plan.Conditions = append(plan.Conditions, Condition{Column: "approval_status", Op: "=", Value: string(enums.ApprovalStatusPending)})
	return s.list(ctx, q, plan)
}

func (s *service) list(ctx context.Context, q ListQuery, plan ListPlan) (*ListResult, error) {
	rows, total, err := s.repo.List(ctx, plan)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list products")
	}
	items := make([]any, 0, len(rows))
	for i := range rows {
		dto := FromModel(&rows[i])
		if len(q.Select) == 0 {
			items = append(items, dto)
			continue
		}
		projected, err := project(dto, append([]string{"id"}, q.Select...))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "project product fields")
		}
		items = append(items, projected)
	}
	return &ListResult{Items: items, Pagination: plan.Page.Meta(total)}, nil
}

func (s *service) Update(ctx context.Context, actor types.Actor, productID uuid.UUID, req UpdateProductRequest) (*ProductDTO, error) {
	product, err := s.loadOwned(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	if req.IsFeatured != nil && !actor.Is(enums.RoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can feature products")
	}

	price := product.Price
	if req.Price != nil {
		price = *req.Price
	}
	compareAt := product.CompareAtPrice
	if req.CompareAtPrice != nil {
		compareAt = req.CompareAtPrice
	}
	if err := validatePrices(price, compareAt); err != nil {
		return nil, err
	}

	var removedImages []string
	if req.Images != nil {
		kept, removed, err := reorderImages(product.Images, *req.Images)
		if err != nil {
			return nil, err
		}
		removedImages = removed
		req.Images = &kept
	}

	changed := applyUpdate(product, req)
	// Vendor edits to what shoppers see go back through review; admin edits keep the state.
	if changed && actor.Is(enums.RoleVendor) && product.ApprovalStatus != enums.ApprovalStatusPending {
		resetApproval(product)
	}

	var extra []string
	if req.Stock != nil {
		extra = append(extra, "stock")
	}
	if err := s.saveListing(ctx, product, "update", extra...); err != nil {
		return nil, err
	}
	if len(removedImages) > 0 {
		if err := s.images.Remove(removedImages); err != nil && s.logg != nil {
			s.logg.Error(ctx, "remove dropped product images", err)
		}
	}
	return FromModel(product), nil
}

func (s *service) Delete(ctx context.Context, actor types.Actor, productID uuid.UUID) error {
	product, err := s.loadOwned(ctx, actor, productID)
	if err != nil {
		return err
	}
	found, err := s.repo.Delete(ctx, product.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete product")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err := s.images.Remove(product.Images); err != nil && s.logg != nil {
		s.logg.Error(ctx, "remove product images", err)
	}
	return nil
}

func (s *service) Approve(ctx context.Context, actor types.Actor, productID uuid.UUID) (*ProductDTO, error) {
	if !actor.Is(enums.RoleAdmin, enums.RoleModerator) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins and moderators can approve products")
	}
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	reviewer := actor.UserID
	product.ApprovalStatus = enums.ApprovalStatusApproved
	product.IsApproved = true
	product.ApprovedBy = &reviewer
	product.ApprovedAt = &now
	product.RejectionReason = nil
	if err := s.saveListing(ctx, product, "approve"); err != nil {
		return nil, err
	}
	return FromModel(product), nil
}

func (s *service) Reject(ctx context.Context, actor types.Actor, productID uuid.UUID, reason string) (*ProductDTO, error) {
	if !actor.Is(enums.RoleAdmin, enums.RoleModerator) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admins and moderators can reject products")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required").
			WithDetails(map[string]string{"reason": "is required"})
	}
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	reviewer := actor.UserID
	product.ApprovalStatus = enums.ApprovalStatusRejected
	product.IsApproved = false
	product.ApprovedBy = &reviewer
	product.ApprovedAt = &now
	product.RejectionReason = &reason
	if err := s.saveListing(ctx, product, "reject"); err != nil {
		return nil, err
	}
	return FromModel(product), nil
}

func (s *service) SetStock(ctx context.Context, actor types.Actor, productID uuid.UUID, stock int) (*ProductDTO, error) {
	if stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !actor.Is(enums.RoleAdmin, enums.RoleInventoryManager) && !(actor.Is(enums.RoleVendor) && actor.Owns(product.VendorID)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to change stock for this product")
	}
	found, err := s.repo.SetStock(ctx, product.ID, stock)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: set stock")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	product.Stock = stock
	return FromModel(product), nil
}

func (s *service) saveListing(ctx context.Context, product *models.Product, op string, extra ...string) error {
	product.UpdatedAt = s.now()
	found, err := s.repo.UpdateListing(ctx, product, extra...)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: "+op+" product")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func (s *service) load(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
	}
	return product, nil
}

// loadOwned loads a product the actor may mutate: its vendor or an admin.
func (s *service) loadOwned(ctx context.Context, actor types.Actor, productID uuid.UUID) (*models.Product, error) {
	product, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if actor.Is(enums.RoleAdmin) || (actor.Is(enums.RoleVendor) && actor.Owns(product.VendorID)) {
		return product, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to modify this product")
}

func canSeeHidden(actor *types.Actor, product *models.Product) bool {
	if actor == nil {
		return false
	}
	if actor.Is(enums.RoleAdmin, enums.RoleModerator, enums.RoleInventoryManager) {
		return true
	}
	return actor.Is(enums.RoleVendor) && actor.Owns(product.VendorID)
}

// applyUpdate mutates product and reports whether a shopper-visible field changed.
func applyUpdate(product *models.Product, req UpdateProductRequest) bool {
	changed := false
	setString := func(dst *string, src *string) {
		if src == nil {
			return
		}
		value := strings.TrimSpace(*src)
		if value != *dst {
			*dst = value
			changed = true
		}
	}
	setOptional := func(dst **string, src *string) {
		if src == nil {
			return
		}
		value := trimmedOrNil(src)
		if !sameString(*dst, value) {
			*dst = value
			changed = true
		}
	}

	setString(&product.Name, req.Name)
	setString(&product.Description, req.Description)
	setString(&product.Category, req.Category)
	setOptional(&product.SubCategory, req.SubCategory)
	setOptional(&product.Brand, req.Brand)
	setOptional(&product.SKU, req.SKU)

	if req.Price != nil && !req.Price.Round(2).Equal(product.Price) {
		product.Price = req.Price.Round(2)
		changed = true
	}
	if req.CompareAtPrice != nil {
		product.CompareAtPrice = roundedOrNil(req.CompareAtPrice)
		changed = true
	}
	if req.Images != nil && !equalStrings(product.Images, *req.Images) {
		product.Images = types.StringList(*req.Images)
		changed = true
	}
	if req.Tags != nil {
		tags := normalizeTags(*req.Tags)
		if !equalStrings(product.Tags, tags) {
			product.Tags = tags
			changed = true
		}
	}
	if req.Variants != nil {
		product.Variants = *req.Variants
		changed = true
	}

	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if req.IsFeatured != nil {
		product.IsFeatured = *req.IsFeatured
	}
	return changed
}

func resetApproval(product *models.Product) {
	product.ApprovalStatus = enums.ApprovalStatusPending
	product.IsApproved = false
	product.ApprovedBy = nil
	product.ApprovedAt = nil
	product.RejectionReason = nil
}

// reorderImages accepts a subset of the stored images in a new order and
// returns the ones dropped.
func reorderImages(current types.StringList, requested []string) ([]string, []string, error) {
	if len(requested) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one product image is required")
	}
	kept := make(map[string]struct{}, len(requested))
	for _, url := range requested {
		if !current.Contains(url) {
			return nil, nil, pkgerrors.Newf(pkgerrors.CodeValidation, "image %s does not belong to this product", url)
		}
		kept[url] = struct{}{}
	}
	var removed []string
	for _, url := range current {
		if _, ok := kept[url]; !ok {
			removed = append(removed, url)
		}
	}
	return requested, removed, nil
}

func validatePrices(price decimal.Decimal, compareAt *decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative").
			WithDetails(map[string]string{"price": "must be greater than or equal to 0"})
	}
	if compareAt != nil && compareAt.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "compareAtPrice cannot be negative")
	}
	return nil
}

func normalizeTags(tags []string) types.StringList {
	out := types.StringList{}
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func roundedOrNil(value *decimal.Decimal) *decimal.Decimal {
	if value == nil {
		return nil
	}
	rounded := value.Round(2)
	return &rounded
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
