package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/phenrril/kitehouse/internal/domain"
)

const minPasswordLen = 6

// AuthUC checks credentials for both roles. Session tokens are issued by the HTTP layer.
type AuthUC struct {
	Users         domain.UserRepo
	AdminUsername string
	AdminPassword string
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

func (uc *AuthUC) Register(ctx context.Context, name, email, phone, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case name == "":
		return nil, domain.Validationf("name is required")
	case !domain.ValidEmail(email):
		return nil, domain.Validationf("a valid email is required")
	case len(password) < minPasswordLen:
		return nil, domain.Validationf("password must be at least %d characters", minPasswordLen)
	}
	_, err := uc.Users.FindByEmail(ctx, email)
	if err == nil {
		return nil, domain.ErrConflict
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	cost := uc.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{Name: name, Email: email, Phone: strings.TrimSpace(phone), PasswordHash: string(hash)}
	if err := uc.Users.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login answers ErrUnauthorized for unknown emails, password-less (OAuth) accounts and bad passwords alike.
func (uc *AuthUC) Login(ctx context.Context, email, password string) (*domain.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, domain.Validationf("email and password are required")
	}
	u, err := uc.Users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, domain.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrUnauthorized
	}
	return u, nil
}

// AdminLogin compares against the configured credentials. Unset credentials never match.
func (uc *AuthUC) AdminLogin(username, password string) error {
	if uc.AdminUsername == "" || uc.AdminPassword == "" {
		return domain.ErrUnauthorized
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(uc.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(uc.AdminPassword)) == 1
	if !userOK || !passOK {
		return domain.ErrUnauthorized
	}
	return nil
}

// OAuthUser finds the shopper by the email the provider vouched for, creating it on first login.
func (uc *AuthUC) OAuthUser(ctx context.Context, email, name string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !domain.ValidEmail(email) {
		return nil, domain.Validationf("provider returned no usable email")
	}
	u, err := uc.Users.FindByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	u = &domain.User{Email: email, Name: strings.TrimSpace(name)}
	if u.Name == "" {
		u.Name = email[:strings.Index(email, "@")]
	}
	if err := uc.Users.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (uc *AuthUC) User(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return uc.Users.FindByID(ctx, id)
}
