package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/studex/apiserver/internal/store"
	"github.com/studex/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
	maxNameLength     = 128
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// Registration is the data a visitor submits to open an account.
type Registration struct {
	Email      string
	Password   string
	Name       string
	University string
}

// GoogleProfile is the identity returned by Google sign-in.
type GoogleProfile struct {
	Subject   string
	Email     string
	Name      string
	AvatarURL string
	Verified  bool
}

// ProfileUpdate changes the non-nil fields of a profile.
type ProfileUpdate struct {
	Name       *string
	University *string
	AvatarURL  *string
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFound("user not found")
		}
		return types.User{}, err
	}
	return user, nil
}

// Register opens a buyer account with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, reg Registration) (types.User, error) {
	email, err := normalizeEmail(reg.Email)
	if err != nil {
		return types.User{}, err
	}
	name := strings.TrimSpace(reg.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return types.User{}, validationError("name must be between 1 and %d characters", maxNameLength)
	}
	hash, err := hashPassword(reg.Password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        email,
		Name:         name,
		University:   strings.TrimSpace(reg.University),
		Role:         types.RoleBuyer,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflict("email is already registered", err)
		}
		return types.User{}, internal("failed to create user", err)
	}
	return user, nil
}

// Authenticate checks credentials and that the account may sign in.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	invalid := newError(KindAuth, "invalid credentials", nil)

	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, invalid
		}
		return types.User{}, internal("failed to authenticate", err)
	}
	if user.PasswordHash == "" {
		return types.User{}, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, invalid
	}
	if !user.CanSignIn() {
		return types.User{}, forbidden("account is blocked or inactive")
	}
	return user, nil
}

// SignInWithGoogle returns the account linked to profile, linking an
// existing account with the same email or creating a new one when needed.
func (s *UserService) SignInWithGoogle(ctx context.Context, profile GoogleProfile) (types.User, error) {
	if strings.TrimSpace(profile.Subject) == "" {
		return types.User{}, newError(KindAuth, "google profile has no subject", nil)
	}

	user, err := s.repo.GetByGoogleID(ctx, profile.Subject)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		user, err = s.linkOrCreateGoogleUser(ctx, profile)
		if err != nil {
			return types.User{}, err
		}
	default:
		return types.User{}, internal("failed to load user", err)
	}

	if !user.CanSignIn() {
		return types.User{}, forbidden("account is blocked or inactive")
	}
	return user, nil
}

func (s *UserService) linkOrCreateGoogleUser(ctx context.Context, profile GoogleProfile) (types.User, error) {
	email, err := normalizeEmail(profile.Email)
	if err != nil {
		return types.User{}, err
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		existing.GoogleID = profile.Subject
		existing.IsVerified = existing.IsVerified || profile.Verified
		if existing.AvatarURL == "" {
			existing.AvatarURL = profile.AvatarURL
		}
		return s.repo.Update(ctx, existing)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, internal("failed to load user", err)
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user, err := s.repo.Create(ctx, types.User{
		Email:      email,
		Name:       name,
		AvatarURL:  profile.AvatarURL,
		Role:       types.RoleBuyer,
		GoogleID:   profile.Subject,
		IsVerified: profile.Verified,
		IsActive:   true,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflict("email is already registered", err)
		}
		return types.User{}, internal("failed to create user", err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id int, update ProfileUpdate) (types.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" || utf8.RuneCountInString(name) > maxNameLength {
			return types.User{}, validationError("name must be between 1 and %d characters", maxNameLength)
		}
		user.Name = name
	}
	if update.University != nil {
		user.University = strings.TrimSpace(*update.University)
	}
	if update.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*update.AvatarURL)
	}
	return s.repo.Update(ctx, user)
}

// ChangePassword replaces the password after checking the current one.
// Accounts created through Google may set a first password without it.
func (s *UserService) ChangePassword(ctx context.Context, id int, current, next string) error {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
			return newError(KindAuth, "current password is incorrect", nil)
		}
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	_, err = s.repo.Update(ctx, user)
	return err
}

func (s *UserService) SetRole(ctx context.Context, id int, role string) (types.User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !types.ValidRole(role) {
		return types.User{}, validationError("role must be one of buyer, seller or admin")
	}
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.Role = role
	return s.repo.Update(ctx, user)
}

// SetBlocked blocks or unblocks an account. Admins cannot block themselves.
func (s *UserService) SetBlocked(ctx context.Context, actorID, id int, blocked bool) (types.User, error) {
	if actorID == id && blocked {
		return types.User{}, validationError("you cannot block your own account")
	}
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	user.IsBlocked = blocked
	return s.repo.Update(ctx, user)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationError("a valid email is required")
	}
	return email, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return "", validationError("password must be between %d and %d characters", minPasswordLength, maxPasswordLength)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", internal("failed to hash password", err)
	}
	return string(hashed), nil
}
