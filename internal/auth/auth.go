// Package auth implements the session gate: it checks submitted credentials
// against the credential store and issues short-lived HS256 bearer tokens
// binding a caller to exactly one role.
//
// Sessions are time-bounded, not revocable: a token stays valid for its full
// lifetime even if the underlying user record changes afterwards.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Session gate errors. Handlers map these onto 401 responses; a verified
// token with the wrong role is a 403 decided at the middleware layer.
var (
	// ErrUserNotFound indicates no credential record exists for the username.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials indicates the password did not match the stored hash.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenMissing indicates no bearer token was presented.
	ErrTokenMissing = errors.New("missing token")

	// ErrTokenInvalid indicates the token failed signature or claim checks.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired indicates the token's fixed lifetime has elapsed.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the verified identity carried by a session token.
type Claims struct {
	Username string
	Role     string
}

// UserStore is the credential lookup contract required by the Service.
type UserStore interface {
	// GetUserByUsername loads a credential record, or gorm.ErrRecordNotFound.
	GetUserByUsername(ctx context.Context, username string) (username2, passwordHash, role string, err error)
}

// Service issues and verifies session tokens. Safe for concurrent use.
type Service struct {
	Users    UserStore
	Secret   []byte
	TokenTTL time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewService constructs a Service signing with secret and issuing tokens
// valid for ttl.
func NewService(users UserStore, secret string, ttl time.Duration) *Service {
	return &Service{Users: users, Secret: []byte(secret), TokenTTL: ttl, now: time.Now}
}

// jwtClaims is the wire shape of the token payload.
type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticate checks username/password against the credential store and,
// on success, returns a signed bearer token and the bound role.
func (s *Service) Authenticate(ctx context.Context, username, password string) (token, role string, err error) {
	uname, hash, urole, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrUserNotFound
		}
		return "", "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", "", ErrInvalidCredentials
	}

	now := s.now()
	claims := jwtClaims{
		Role: urole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uname,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.Secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, urole, nil
}

// Verify validates a bearer token and extracts its claims. It distinguishes
// missing, expired, and otherwise invalid tokens.
func (s *Service) Verify(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, ErrTokenMissing
	}

	var claims jwtClaims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid || claims.Subject == "" || claims.Role == "" {
		return Claims{}, ErrTokenInvalid
	}
	return Claims{Username: claims.Subject, Role: claims.Role}, nil
}

// HashPassword produces a bcrypt hash suitable for seeding User records.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
