package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service covers profile self-service, identity resolution and admin account management.
type Service interface {
	Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateMe(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*UserDTO, error)
	UpdateAvailability(ctx context.Context, userID uuid.UUID, req AvailabilityRequest) (*UserDTO, error)
	ResolveIdentity(ctx context.Context, userID uuid.UUID) (enums.Role, bool, error)
	List(ctx context.Context, q ListQuery) ([]UserDTO, types.PaginationMeta, error)
	SetStatus(ctx context.Context, actorID, targetID uuid.UUID, active bool) (*UserDTO, error)
	Delete(ctx context.Context, actorID, targetID uuid.UUID) error
	ListVendors(ctx context.Context, page pagination.Params) ([]VendorDTO, types.PaginationMeta, error)
	GetVendor(ctx context.Context, vendorID uuid.UUID) (*VendorDTO, error)
}

type userRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDAndRole(ctx context.Context, id uuid.UUID, role enums.Role) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	List(ctx context.Context, filter ListFilter, page pagination.Params) ([]models.User, int64, error)
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo     userRepository
	sessions sessionRevoker
}

// NewService wires the users service. sessions may be nil in tests.
func NewService(repo userRepository, sessions sessionRevoker) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	return &service{repo: repo, sessions: sessions}, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) UpdateMe(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = trimmedOrNil(*req.Phone)
	}
	if req.Avatar != nil {
		user.Avatar = trimmedOrNil(*req.Avatar)
	}
	if req.Addresses != nil {
		user.Addresses = normalizeAddresses(*req.Addresses)
	}
	if err := applyRoleFields(user, req); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
	}
	return FromModel(user), nil
}

func (s *service) UpdateAvailability(ctx context.Context, userID uuid.UUID, req AvailabilityRequest) (*UserDTO, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	agent := user.Profile.DeliveryAgent
	if user.Role != enums.RoleDeliveryAgent || agent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only delivery agents have availability")
	}
	if req.IsAvailable != nil {
		agent.IsAvailable = *req.IsAvailable
	}
	if req.CurrentLocation != nil {
		loc := *req.CurrentLocation
		now := time.Now().UTC()
		loc.UpdatedAt = &now
		agent.CurrentLocation = &loc
	}
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update availability")
	}
	return FromModel(user), nil
}

func (s *service) ResolveIdentity(ctx context.Context, userID uuid.UUID) (enums.Role, bool, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return "", false, err
	}
	return user.Role, user.IsActive, nil
}

func (s *service) List(ctx context.Context, q ListQuery) ([]UserDTO, types.PaginationMeta, error) {
	filter := ListFilter{IsActive: q.IsActive, Search: strings.TrimSpace(q.Search)}
	if q.Role != "" {
		role, err := enums.ParseRole(q.Role)
		if err != nil {
			return nil, types.PaginationMeta{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role filter")
		}
		filter.Role = role
	}
	page := pagination.Params{Page: q.Page, Limit: q.Limit}
	rows, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, types.PaginationMeta{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users")
	}
	return FromModels(rows), page.Meta(total), nil
}

func (s *service) SetStatus(ctx context.Context, actorID, targetID uuid.UUID, active bool) (*UserDTO, error) {
	if actorID == targetID && !active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admins cannot deactivate themselves")
	}
	found, err := s.repo.SetActive(ctx, targetID, active)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user status")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	if !active {
		if err := s.revokeSessions(ctx, targetID); err != nil {
			return nil, err
		}
	}
	return s.Me(ctx, targetID)
}

func (s *service) Delete(ctx context.Context, actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return pkgerrors.New(pkgerrors.CodeValidation, "admins cannot delete themselves")
	}
	found, err := s.repo.Delete(ctx, targetID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return pkgerrors.New(pkgerrors.CodeConflict, "user has order history; deactivate the account instead")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete user")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return s.revokeSessions(ctx, targetID)
}

func (s *service) ListVendors(ctx context.Context, page pagination.Params) ([]VendorDTO, types.PaginationMeta, error) {
	active := true
	rows, total, err := s.repo.List(ctx, ListFilter{Role: enums.RoleVendor, IsActive: &active}, page)
	if err != nil {
		return nil, types.PaginationMeta{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list vendors")
	}
	out := make([]VendorDTO, 0, len(rows))
	for i := range rows {
		out = append(out, VendorFromModel(&rows[i]))
	}
	return out, page.Meta(total), nil
}

func (s *service) GetVendor(ctx context.Context, vendorID uuid.UUID) (*VendorDTO, error) {
	user, err := s.repo.FindByIDAndRole(ctx, vendorID, enums.RoleVendor)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load vendor")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	dto := VendorFromModel(user)
	return &dto, nil
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

func (s *service) revokeSessions(ctx context.Context, userID uuid.UUID) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	return nil
}

func applyRoleFields(user *models.User, req UpdateProfileRequest) error {
	p := &user.Profile
	customer := req.DateOfBirth != nil || req.NewsletterOptIn != nil
	vendor := req.StoreName != nil || req.StoreDescription != nil || req.BusinessLicense != nil || req.TaxID != nil
	agent := req.VehicleType != nil || req.VehicleNumber != nil || req.LicenseNumber != nil
	inventory := req.Warehouse != nil

	switch {
	case customer && user.Role != enums.RoleCustomer,
		vendor && user.Role != enums.RoleVendor,
		agent && user.Role != enums.RoleDeliveryAgent,
		inventory && user.Role != enums.RoleInventoryManager:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "profile fields do not apply to role %s", user.Role)
	}

	switch user.Role {
	case enums.RoleCustomer:
		if p.Customer == nil {
			p.Customer = &types.CustomerProfile{}
		}
		if req.DateOfBirth != nil {
			dob := req.DateOfBirth.UTC()
			p.Customer.DateOfBirth = &dob
		}
		if req.NewsletterOptIn != nil {
			p.Customer.NewsletterOptIn = *req.NewsletterOptIn
		}
	case enums.RoleVendor:
		if p.Vendor == nil {
			p.Vendor = &types.VendorProfile{}
		}
		if req.StoreName != nil {
			p.Vendor.StoreName = strings.TrimSpace(*req.StoreName)
		}
		if req.StoreDescription != nil {
			p.Vendor.StoreDescription = strings.TrimSpace(*req.StoreDescription)
		}
		if req.BusinessLicense != nil {
			p.Vendor.BusinessLicense = strings.TrimSpace(*req.BusinessLicense)
		}
		if req.TaxID != nil {
			p.Vendor.TaxID = strings.TrimSpace(*req.TaxID)
		}
	case enums.RoleDeliveryAgent:
		if p.DeliveryAgent == nil {
			p.DeliveryAgent = &types.DeliveryAgentProfile{ActiveDeliveries: []uuid.UUID{}}
		}
		if req.VehicleType != nil {
			if !req.VehicleType.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid vehicle type")
			}
			p.DeliveryAgent.VehicleType = *req.VehicleType
		}
		if req.VehicleNumber != nil {
			p.DeliveryAgent.VehicleNumber = strings.TrimSpace(*req.VehicleNumber)
		}
		if req.LicenseNumber != nil {
			p.DeliveryAgent.LicenseNumber = strings.TrimSpace(*req.LicenseNumber)
		}
	case enums.RoleInventoryManager:
		if p.InventoryManager == nil {
			p.InventoryManager = &types.InventoryManagerProfile{}
		}
		if req.Warehouse != nil {
			p.InventoryManager.Warehouse = strings.TrimSpace(*req.Warehouse)
		}
	}
	return nil
}

// normalizeAddresses trims every entry and keeps at most one default.
func normalizeAddresses(in []types.Address) []types.Address {
	out := make([]types.Address, 0, len(in))
	seenDefault := false
	for _, addr := range in {
		addr = addr.Normalize()
		if addr.IsDefault {
			if seenDefault {
				addr.IsDefault = false
			}
			seenDefault = true
		}
		out = append(out, addr)
	}
	if !seenDefault && len(out) > 0 {
		out[0].IsDefault = true
	}
	return out
}

func trimmedOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
