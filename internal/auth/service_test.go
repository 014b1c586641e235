package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/bazaar-backend/internal/users"
	pkgAuth "github.com/angelmondragon/bazaar-backend/pkg/auth"
	"github.com/angelmondragon/bazaar-backend/pkg/auth/session"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/security"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "bazaar", ExpirationMinutes: 30}

func TestRegisterCustomerIssuesTokens(t *testing.T) {
	svc, repo, sessions := buildTestService(t, false)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Name:     "Casey",
		Email:    "  Casey@Example.com ",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if resp.User.Email != "casey@example.com" {
		t.Fatalf("expected lowercased email, got %q", resp.User.Email)
	}
	if resp.User.Role != enums.RoleCustomer || resp.User.Profile.Customer == nil {
		t.Fatalf("expected customer profile, got %+v", resp.User.Profile)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != resp.User.ID || claims.Role != enums.RoleCustomer {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if sessions.generated[claims.ID] != resp.User.ID {
		t.Fatalf("expected session stored for jti %s", claims.ID)
	}
	if len(repo.byEmail) != 1 {
		t.Fatalf("expected one stored user, got %d", len(repo.byEmail))
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := buildTestService(t, false)
	req := RegisterRequest{Name: "Dana", Email: "dana@example.com", Password: "correct-horse"}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register: %v", err)
	}
	req.Email = "DANA@example.com"
	_, err := svc.Register(context.Background(), req)
	if !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
}

func TestRegisterMapsUniqueViolationToDuplicate(t *testing.T) {
	svc, repo, _ := buildTestService(t, false)
	repo.createErr = errors.New(`UNIQUE constraint failed: users.email`)

	_, err := svc.Register(context.Background(), RegisterRequest{Name: "Eve", Email: "eve@example.com", Password: "correct-horse"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDuplicateEmail) {
		t.Fatalf("expected duplicate email from constraint, got %v", err)
	}
}

func TestRegisterRoleGating(t *testing.T) {
	svc, _, _ := buildTestService(t, false)
	_, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "correct-horse", Role: enums.RoleAdmin,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for admin self-signup, got %v", err)
	}

	devSvc, _, _ := buildTestService(t, true)
	resp, err := devSvc.Register(context.Background(), RegisterRequest{
		Name: "Ada", Email: "ada@example.com", Password: "correct-horse", Role: enums.RoleAdmin,
	})
	if err != nil {
		t.Fatalf("expected privileged signup when enabled: %v", err)
	}
	if resp.User.Profile.Admin == nil {
		t.Fatalf("expected admin profile")
	}
}

func TestRegisterVendorAndAgentProfiles(t *testing.T) {
	svc, _, _ := buildTestService(t, false)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "Vic", Email: "vic@example.com", Password: "correct-horse", Role: enums.RoleVendor})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected vendor without store name to fail validation, got %v", err)
	}

	vendor, err := svc.Register(ctx, RegisterRequest{
		Name: "Vic", Email: "vic@example.com", Password: "correct-horse", Role: enums.RoleVendor, StoreName: "Vic's",
	})
	if err != nil {
		t.Fatalf("register vendor: %v", err)
	}
	if vendor.User.Profile.Vendor.StoreName != "Vic's" || !vendor.User.Profile.Vendor.CommissionRate.Equal(defaultCommissionRate) {
		t.Fatalf("unexpected vendor profile %+v", vendor.User.Profile.Vendor)
	}

	_, err = svc.Register(ctx, RegisterRequest{
		Name: "Cat", Email: "cat@example.com", Password: "correct-horse", StoreName: "Not a vendor",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected foreign profile fields to fail, got %v", err)
	}

	agent, err := svc.Register(ctx, RegisterRequest{
		Name: "Axel", Email: "axel@example.com", Password: "correct-horse",
		Role: enums.RoleDeliveryAgent, VehicleType: enums.VehicleTypeMotorcycle,
	})
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
	if agent.User.Profile.DeliveryAgent == nil || agent.User.Profile.DeliveryAgent.ActiveDeliveries == nil {
		t.Fatalf("expected agent profile with empty deliveries, got %+v", agent.User.Profile)
	}
}

func TestRegisterEnforcesPasswordPolicy(t *testing.T) {
	svc, _, _ := buildTestService(t, false)
	_, err := svc.Register(context.Background(), RegisterRequest{Name: "Sam", Email: "sam@example.com", Password: "short"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateUserAllowsStaffRoles(t *testing.T) {
	svc, _, sessions := buildTestService(t, false)
	dto, err := svc.CreateUser(context.Background(), RegisterRequest{
		Name: "Mo", Email: "mo@example.com", Password: "correct-horse", Role: enums.RoleModerator,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if dto.Role != enums.RoleModerator || !dto.IsActive {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if len(sessions.generated) != 0 {
		t.Fatalf("admin creation must not open a session")
	}
}

func TestLogin(t *testing.T) {
	svc, repo, _ := buildTestService(t, false)
	user := repo.seed(t, "login@example.com", "correct-horse", enums.RoleVendor, true)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "LOGIN@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.ID != user.ID || resp.User.LastLoginAt == nil {
		t.Fatalf("expected last login stamped, got %+v", resp.User)
	}
	if repo.lastLogin[user.ID].IsZero() {
		t.Fatalf("expected repo last login update")
	}

	_, err = svc.Login(context.Background(), LoginRequest{Email: "login@example.com", Password: "wrong-horse"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	_, err = svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
}

func TestLoginRejectsDeactivatedAccount(t *testing.T) {
	svc, repo, _ := buildTestService(t, false)
	repo.seed(t, "off@example.com", "correct-horse", enums.RoleCustomer, false)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "off@example.com", Password: "correct-horse"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRefreshRotatesAndReadsStoredRole(t *testing.T) {
	svc, repo, sessions := buildTestService(t, false)
	user := repo.seed(t, "r@example.com", "correct-horse", enums.RoleCustomer, true)

	token, err := pkgAuth.MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), pkgAuth.AccessTokenPayload{
		UserID: user.ID, Role: enums.RoleCustomer, JTI: "old-jti",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	sessions.generated["old-jti"] = user.ID
	sessions.tokens["old-jti"] = "refresh-old"
	user.Role = enums.RoleVendor

	resp, err := svc.Refresh(context.Background(), token, "refresh-old")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse refreshed token: %v", err)
	}
	if claims.Role != enums.RoleVendor {
		t.Fatalf("expected stored role on refresh, got %s", claims.Role)
	}
	if _, ok := sessions.generated["old-jti"]; ok {
		t.Fatalf("expected old session revoked")
	}

	_, err = svc.Refresh(context.Background(), token, "refresh-old")
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected reuse to fail, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, sessions := buildTestService(t, false)
	user := repo.seed(t, "pw@example.com", "correct-horse", enums.RoleCustomer, true)
	sessions.generated["existing"] = user.ID

	_, err := svc.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{CurrentPassword: "nope-nope", NewPassword: "battery-staple"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	resp, err := svc.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{CurrentPassword: "correct-horse", NewPassword: "battery-staple"})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected fresh tokens")
	}
	if _, ok := sessions.generated["existing"]; ok {
		t.Fatalf("expected existing sessions revoked")
	}
	ok, _, err := security.NewHasher(config.PasswordConfig{}).Verify("battery-staple", repo.byID[user.ID].PasswordHash)
	if err != nil || !ok {
		t.Fatalf("expected new password stored, ok=%v err=%v", ok, err)
	}
}

func TestLoginUpgradesStaleHash(t *testing.T) {
	svc, repo, _ := buildTestService(t, false)
	user := repo.seed(t, "legacy@example.com", "correct-horse", enums.RoleCustomer, true)
	legacy, err := security.NewHasher(config.PasswordConfig{ArgonTime: 2}).Hash("correct-horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user.PasswordHash = legacy

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "legacy@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if repo.byID[user.ID].PasswordHash == legacy {
		t.Fatalf("expected hash rewritten with current params")
	}
	ok, stale, err := security.NewHasher(config.PasswordConfig{}).Verify("correct-horse", repo.byID[user.ID].PasswordHash)
	if err != nil || !ok || stale {
		t.Fatalf("expected current hash, ok=%v stale=%v err=%v", ok, stale, err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _, sessions := buildTestService(t, false)
	userID := uuid.New()
	sessions.generated["jti-1"] = userID

	if err := svc.Logout(context.Background(), userID, "jti-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(sessions.generated) != 0 {
		t.Fatalf("expected session removed")
	}
	if err := svc.Logout(context.Background(), userID, ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized without session id, got %v", err)
	}
}

func buildTestService(t *testing.T, allowPrivileged bool) (Service, *stubUserRepo, *stubSessionManager) {
	t.Helper()
	repo := newStubUserRepo()
	sessions := newStubSessionManager()
	svc, err := NewService(ServiceParams{
		UserRepo:              repo,
		SessionManager:        sessions,
		JWTConfig:             testJWT,
		AllowPrivilegedSignup: allowPrivileged,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, repo, sessions
}

type stubUserRepo struct {
	byID      map[uuid.UUID]*models.User
	byEmail   map[string]*models.User
	lastLogin map[uuid.UUID]time.Time
	createErr error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byID:      map[uuid.UUID]*models.User{},
		byEmail:   map[string]*models.User{},
		lastLogin: map[uuid.UUID]time.Time{},
	}
}

func (s *stubUserRepo) seed(t *testing.T, email, password string, role enums.Role, active bool) *models.User {
	t.Helper()
	hash, err := security.NewHasher(config.PasswordConfig{}).Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{ID: uuid.New(), Name: "Seed", Email: email, PasswordHash: hash, Role: role, IsActive: active}
	s.byID[user.ID] = user
	s.byEmail[email] = user
	return user
}

func (s *stubUserRepo) Create(_ context.Context, dto users.CreateUserDTO) (*models.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	user := dto.ToModel()
	user.ID = uuid.New()
	s.byID[user.ID] = user
	s.byEmail[user.Email] = user
	return user, nil
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := s.byEmail[strings.ToLower(email)]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	s.lastLogin[id] = at
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	s.byID[id].PasswordHash = hash
	return nil
}

type stubSessionManager struct {
	generated map[string]uuid.UUID
	tokens    map[string]string
	counter   int
}

func newStubSessionManager() *stubSessionManager {
	return &stubSessionManager{generated: map[string]uuid.UUID{}, tokens: map[string]string{}}
}

func (s *stubSessionManager) Generate(_ context.Context, userID uuid.UUID, accessID string) (string, error) {
	s.counter++
	token := "refresh-" + accessID
	s.generated[accessID] = userID
	s.tokens[accessID] = token
	return token, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, userID uuid.UUID, oldAccessID, provided string) (string, string, error) {
	if stored, ok := s.tokens[oldAccessID]; !ok || stored != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	newID := session.NewAccessID()
	token, _ := s.Generate(ctx, userID, newID)
	_ = s.Revoke(ctx, userID, oldAccessID)
	return newID, token, nil
}

func (s *stubSessionManager) Revoke(_ context.Context, _ uuid.UUID, accessID string) error {
	delete(s.generated, accessID)
	delete(s.tokens, accessID)
	return nil
}

func (s *stubSessionManager) RevokeAll(_ context.Context, userID uuid.UUID) error {
	for id, owner := range s.generated {
		if owner == userID {
			delete(s.generated, id)
			delete(s.tokens, id)
		}
	}
	return nil
}
