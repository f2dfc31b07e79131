package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

const (
	minPasswordLength  = 4
	BootstrapAdminName = "admin"
)

// Authenticate checks a username/password pair and records the access.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if !verifyPassword(user.PasswordHash, password) {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.Active {
		return domain.User{}, ErrInactiveAccount
	}

	at := s.now().UTC()
	if err := s.repo.TouchLastAccess(ctx, user.ID, at); err != nil {
		s.logger.Warn("failed to record last access", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastAccess = &at
	}
	return *user, nil
}

// BootstrapAdmin creates the first admin account when the store has no
// users at all. It reports whether an account was created.
func (s *Service) BootstrapAdmin(ctx context.Context, password string) (bool, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := ValidateBootstrapPassword(password); err != nil {
		return false, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return false, err
	}
	created, err := s.repo.CreateUser(ctx, domain.User{
		ID:           xid.New("usr"),
		Username:     BootstrapAdminName,
		FullName:     "Administrador",
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return false, err
	}
	s.logAudit(ctx, "user_bootstrap", "user", created.ID, "username="+created.Username)
	return true, nil
}

// ValidateBootstrapPassword rejects passwords an operator would guess.
func ValidateBootstrapPassword(password string) error {
	if len(password) < 8 {
		return errors.New("bootstrap admin password must be at least 8 characters")
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("bootstrap admin password must be at most %d bytes", maxPasswordBytes)
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return errors.New("bootstrap admin password must mix letters and digits")
	}
	switch strings.ToLower(password) {
	case "password1", "admin1234", "admin12345", "12345678a", "veterinaria1":
		return errors.New("bootstrap admin password is too common")
	}
	return nil
}

func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return domain.User{}, invalid("username is required")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return domain.User{}, invalid("username must not contain spaces")
	}
	if err := checkPassword(req.Password); err != nil {
		return domain.User{}, err
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleCashier
	}
	if role != domain.RoleAdmin && role != domain.RoleCashier {
		return domain.User{}, invalid("unknown role %q", role)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.User{}, err
	}
	created, err := s.repo.CreateUser(ctx, domain.User{
		ID:           xid.New("usr"),
		Username:     username,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_create", "user", created.ID, fmt.Sprintf("username=%s,role=%s", created.Username, created.Role))
	return *created, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.User, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.User{}, err
	}

	existing, err := s.repo.GetUserByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.User{}, err
	}

	updated := *existing
	if name := trimPtr(req.FullName); name != nil {
		updated.FullName = *name
	}
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		if role != domain.RoleAdmin && role != domain.RoleCashier {
			return domain.User{}, invalid("unknown role %q", role)
		}
		updated.Role = role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		if err := checkPassword(*req.Password); err != nil {
			return domain.User{}, err
		}
		hash, err := hashPassword(*req.Password)
		if err != nil {
			return domain.User{}, err
		}
		updated.PasswordHash = hash
	}

	if existing.ID == actor.UserID && !updated.Active {
		return domain.User{}, invalid("you cannot deactivate your own account")
	}
	if err := s.guardLastAdmin(ctx, *existing, updated); err != nil {
		return domain.User{}, err
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user_update", "user", saved.ID, fmt.Sprintf("role=%s,active=%t,password_changed=%t", saved.Role, saved.Active, req.Password != nil))
	return *saved, nil
}

func (s *Service) DeactivateUser(ctx context.Context, id string) (domain.User, error) {
	inactive := false
	return s.UpdateUser(ctx, id, domain.UserUpdateRequest{Active: &inactive})
}

// guardLastAdmin keeps at least one active admin able to log in.
func (s *Service) guardLastAdmin(ctx context.Context, before domain.User, after domain.User) error {
	wasAdmin := before.Active && before.Role == domain.RoleAdmin
	stillAdmin := after.Active && after.Role == domain.RoleAdmin
	if !wasAdmin || stillAdmin {
		return nil
	}
	admins, err := s.repo.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if admins <= 1 {
		return fmt.Errorf("%w: at least one active admin is required", store.ErrConflict)
	}
	return nil
}

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return invalid("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", invalid("password must be at most %d bytes", maxPasswordBytes)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(bytes), nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || input == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
