package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleShopper Role = "shopper"
)

var ErrNoSession = errors.New("no valid session")

// Principal is the authenticated caller attached to a request.
type Principal struct {
	Role   Role      `json:"role"`
	UserID uuid.UUID `json:"id,omitempty"`
	Email  string    `json:"email,omitempty"`
	Name   string    `json:"name,omitempty"`
}

// Scheme issues, verifies and revokes one kind of session.
type Scheme interface {
	Role() Role
	Issue(w http.ResponseWriter, p Principal) error
	Verify(r *http.Request) (*Principal, error)
	Revoke(w http.ResponseWriter)
}

type claims struct {
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenScheme keeps an HS256 JWT in an httpOnly cookie. A bearer token in the
// Authorization header is accepted as well, for API clients.
type TokenScheme struct {
	role   Role
	cookie string
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

type TokenConfig struct {
	Role   Role
	Cookie string
	Secret string
	TTL    time.Duration
	Secure bool
}

func NewTokenScheme(cfg TokenConfig) *TokenScheme {
	return &TokenScheme{
		role:   cfg.Role,
		cookie: cfg.Cookie,
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		secure: cfg.Secure,
		now:    time.Now,
	}
}

func (s *TokenScheme) Role() Role { return s.role }

func (s *TokenScheme) Issue(w http.ResponseWriter, p Principal) error {
	tok, err := s.Sign(p)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    tok,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Sign returns the raw token for p.
func (s *TokenScheme) Sign(p Principal) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("token secret is not configured")
	}
	now := s.now()
	c := claims{
		Role:  s.role,
		Email: p.Email,
		Name:  p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Issuer:    "kitehouse",
		},
	}
	if p.UserID != uuid.Nil {
		c.Subject = p.UserID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *TokenScheme) Verify(r *http.Request) (*Principal, error) {
	raw := bearer(r)
	if raw == "" {
		if c, err := r.Cookie(s.cookie); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return nil, ErrNoSession
	}
	return s.Parse(raw)
}

func (s *TokenScheme) Parse(raw string) (*Principal, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSession
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || c.Role != s.role {
		return nil, ErrNoSession
	}
	p := &Principal{Role: c.Role, Email: c.Email, Name: c.Name}
	if c.Subject != "" {
		id, err := uuid.Parse(c.Subject)
		if err != nil {
			return nil, ErrNoSession
		}
		p.UserID = id
	}
	if s.role == RoleShopper && p.UserID == uuid.Nil {
		return nil, ErrNoSession
	}
	return p, nil
}

func (s *TokenScheme) Revoke(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal attached by the Dispatcher, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}
