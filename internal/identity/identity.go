package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	RoleLearner = "learner"
	RoleAdmin   = "admin"
)

// User is the authenticated caller. ID is the opaque user id the session
// engine seeds with.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type contextKey string

const userContextKey contextKey = "identity_user"

func ContextWithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func CurrentUser(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userContextKey).(User)
	return u, ok && u.ID != ""
}

type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// DevAccount is a locally configured login used to mint tokens when no external
// identity provider issues them.
type DevAccount struct {
	Username     string
	PasswordHash string
	Role         string
}

type Config struct {
	Secret      string
	Issuer      string
	TTL         time.Duration
	DevAccounts []DevAccount
}

// Service verifies HS256 bearer tokens and mints them for dev accounts.
type Service struct {
	hmac     []byte
	issuer   string
	ttl      time.Duration
	accounts map[string]DevAccount
	now      func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "certprep"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 8 * time.Hour
	}
	accounts := make(map[string]DevAccount, len(cfg.DevAccounts))
	for _, a := range cfg.DevAccounts {
		name := strings.ToLower(strings.TrimSpace(a.Username))
		if name == "" || a.PasswordHash == "" {
			continue
		}
		if a.Role == "" {
			a.Role = RoleLearner
		}
		accounts[name] = a
	}
	return &Service{
		hmac:     []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		ttl:      cfg.TTL,
		accounts: accounts,
		now:      time.Now,
	}, nil
}

func (s *Service) Issue(u User) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := &Claims{
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.hmac)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tok, exp, nil
}

func (s *Service) Parse(tokenStr string) (User, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := token.Claims.(*Claims)
	if !ok || strings.TrimSpace(c.Subject) == "" {
		return User{}, ErrInvalidToken
	}
	role := c.Role
	if role == "" {
		role = RoleLearner
	}
	return User{ID: c.Subject, Name: c.Name, Role: role}, nil
}

// Authenticate checks a dev account password against its bcrypt hash.
func (s *Service) Authenticate(username, password string) (User, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	acct, ok := s.accounts[name]
	if !ok || password == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return User{ID: name, Name: acct.Username, Role: acct.Role}, nil
}
