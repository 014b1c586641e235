package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/internal/users"
	pkgAuth "github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/auth/session"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	invalidCredentialsMessage = "invalid email or password"
	emailConstraint           = "users_email_key"
)

var defaultCommissionRate = decimal.RequireFromString("0.10")

// Service defines the behavior needed by the auth controller.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error)
	CreateUser(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*RefreshResponse, error)
	Logout(ctx context.Context, userID uuid.UUID, accessID string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) (*TokenResponse, error)
}

type userRepository interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error)
	Rotate(ctx context.Context, userID uuid.UUID, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, userID uuid.UUID, accessID string) error
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	UserRepo              userRepository
	SessionManager        sessionManager
	JWTConfig             config.JWTConfig
	PasswordConfig        config.PasswordConfig
	AllowPrivilegedSignup bool
}

type service struct {
	users           userRepository
	session         sessionManager
	jwtCfg          config.JWTConfig
	passwords       *security.Hasher
	allowPrivileged bool
	now             func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		users:           params.UserRepo,
		session:         params.SessionManager,
		jwtCfg:          params.JWTConfig,
		passwords:       security.NewHasher(params.PasswordConfig),
		allowPrivileged: params.AllowPrivilegedSignup,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	if req.Role == "" {
		req.Role = enums.RoleCustomer
	}
	if req.Role.IsValid() && !req.Role.IsSelfService() && !s.allowPrivileged {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s cannot self-register", req.Role)
	}
	user, err := s.createAccount(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *service) CreateUser(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	if req.Role == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role is required")
	}
	user, err := s.createAccount(ctx, req)
	if err != nil {
		return nil, err
	}
	return users.FromModel(user), nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCredentials, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidCredentials, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, stale, err := s.passwords.Verify(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCredentials, invalidCredentialsMessage)
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account is deactivated")
	}
	if stale {
		// upgrading the hash is opportunistic; the old one still verifies
		if hash, err := s.passwords.Hash(req.Password); err == nil {
			if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err == nil {
				user.PasswordHash = hash
			}
		}
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &now

	return s.issueTokens(ctx, user)
}

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*RefreshResponse, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	newAccessID, newRefreshToken, err := s.session.Rotate(ctx, claims.UserID, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	// Role and status are re-read so a refresh never resurrects a stale identity.
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		_ = s.session.Revoke(ctx, claims.UserID, newAccessID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user no longer active")
	}

	token, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now(), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &RefreshResponse{AccessToken: token, RefreshToken: newRefreshToken}, nil
}

func (s *service) Logout(ctx context.Context, userID uuid.UUID, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.session.Revoke(ctx, userID, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) (*TokenResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	valid, _, err := s.passwords.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCredentials, "current password is incorrect")
	}
	if err := security.CheckPasswordPolicy(req.NewPassword); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	hash, err := s.passwords.Hash(req.NewPassword)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update password")
	}
	if err := s.session.RevokeAll(ctx, user.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	user.PasswordHash = hash
	return s.issueTokens(ctx, user)
}

func (s *service) createAccount(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if !req.Role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", req.Role)
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if err := security.CheckPasswordPolicy(req.Password); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	profile, err := buildProfile(req)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDuplicateEmail, "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var addresses []types.Address
	if req.Address != nil {
		addr := req.Address.Normalize()
		addr.IsDefault = true
		addresses = append(addresses, addr)
	}

	user, err := s.users.Create(ctx, users.CreateUserDTO{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         req.Role,
		Phone:        req.Phone,
		Addresses:    addresses,
		Profile:      profile,
	})
	if err != nil {
		// Concurrent registrations race past the lookup; the unique index decides.
		if db.IsUniqueViolation(err, emailConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateEmail, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return user, nil
}

func (s *service) issueTokens(ctx context.Context, user *models.User) (*TokenResponse, error) {
	accessID := session.NewAccessID()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now(), pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, user.ID, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return &TokenResponse{
		AccessToken:  token,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}, nil
}

// buildProfile shapes the role variant and rejects fields that belong to another role.
func buildProfile(req RegisterRequest) (types.RoleProfile, error) {
	vendorFields := req.StoreName != "" || req.StoreDescription != "" || req.BusinessLicense != "" || req.TaxID != ""
	agentFields := req.VehicleType != "" || req.VehicleNumber != "" || req.LicenseNumber != "" || req.Location != nil
	inventoryFields := req.Warehouse != ""

	if (vendorFields && req.Role != enums.RoleVendor) ||
		(agentFields && req.Role != enums.RoleDeliveryAgent) ||
		(inventoryFields && req.Role != enums.RoleInventoryManager) {
		return types.RoleProfile{}, pkgerrors.Newf(pkgerrors.CodeValidation, "profile fields do not apply to role %s", req.Role)
	}

	switch req.Role {
	case enums.RoleCustomer:
		return types.RoleProfile{Customer: &types.CustomerProfile{}}, nil
	case enums.RoleVendor:
		storeName := strings.TrimSpace(req.StoreName)
		if storeName == "" {
			return types.RoleProfile{}, pkgerrors.New(pkgerrors.CodeValidation, "storeName is required for vendors").
				WithDetails(map[string]string{"storeName": "is required"})
		}
		return types.RoleProfile{Vendor: &types.VendorProfile{
			StoreName:        storeName,
			StoreDescription: strings.TrimSpace(req.StoreDescription),
			BusinessLicense:  strings.TrimSpace(req.BusinessLicense),
			TaxID:            strings.TrimSpace(req.TaxID),
			CommissionRate:   defaultCommissionRate,
		}}, nil
	case enums.RoleDeliveryAgent:
		if !req.VehicleType.IsValid() {
			return types.RoleProfile{}, pkgerrors.New(pkgerrors.CodeValidation, "a valid vehicleType is required for delivery agents").
				WithDetails(map[string]string{"vehicleType": "is required"})
		}
		agent := &types.DeliveryAgentProfile{
			VehicleType:      req.VehicleType,
			VehicleNumber:    strings.TrimSpace(req.VehicleNumber),
			LicenseNumber:    strings.TrimSpace(req.LicenseNumber),
			ActiveDeliveries: []uuid.UUID{},
		}
		if req.Location != nil {
			loc := *req.Location
			agent.CurrentLocation = &loc
		}
		return types.RoleProfile{DeliveryAgent: agent}, nil
	case enums.RoleAdmin:
		return types.RoleProfile{Admin: &types.AdminProfile{}}, nil
	case enums.RoleModerator:
		return types.RoleProfile{Moderator: &types.ModeratorProfile{}}, nil
	case enums.RoleInventoryManager:
		return types.RoleProfile{InventoryManager: &types.InventoryManagerProfile{Warehouse: strings.TrimSpace(req.Warehouse)}}, nil
	}
	return types.RoleProfile{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", req.Role)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
