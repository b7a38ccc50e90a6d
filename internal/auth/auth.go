// Package auth issues and verifies the short-lived staff credentials that
// unlock queue mutations. A PIN buys a signed token; the websocket handshake
// presents the token back to classify the connection.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPINRequired          = errors.New("PIN is required")
	ErrAuthenticationFailed = errors.New("invalid PIN")
	ErrInvalidToken         = errors.New("invalid token")
)

const (
	DefaultTokenTTL = 12 * time.Hour
	issuer          = "nowserving"
)

type Role string

const (
	RoleViewer Role = "viewer"
	RoleStaff  Role = "staff"
)

type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Verifier is what the realtime layer needs from this package.
type Verifier interface {
	Verify(token string) (Claims, error)
}

type Options struct {
	PIN      string
	Secret   []byte
	TokenTTL time.Duration
	Clock    clockwork.Clock
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Service struct {
	pinHash []byte
	secret  []byte
	ttl     time.Duration
	clock   clockwork.Clock
}

func NewService(opts Options) (*Service, error) {
	if opts.PIN == "" {
		return nil, ErrPINRequired
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.PIN), opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash staff PIN: %w", err)
	}

	return &Service{
		pinHash: hash,
		secret:  opts.Secret,
		ttl:     opts.TokenTTL,
		clock:   opts.Clock,
	}, nil
}

func (s *Service) Login(pin string) (Token, error) {
	if pin == "" {
		return Token{}, ErrPINRequired
	}
	if err := bcrypt.CompareHashAndPassword(s.pinHash, []byte(pin)); err != nil {
		return Token{}, ErrAuthenticationFailed
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Role: RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

func (s *Service) Verify(token string) (Claims, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Role != RoleStaff {
		return Claims{}, fmt.Errorf("%w: role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}

// Classify maps an optional credential onto a connection role. No credential
// is a viewer; a credential that does not verify is an error.
func Classify(v Verifier, credential string) (Role, error) {
	if credential == "" {
		return RoleViewer, nil
	}
	claims, err := v.Verify(credential)
	if err != nil {
		return "", err
	}
	return claims.Role, nil
}

// BearerToken pulls the credential from the Authorization header, falling back
// to the token query parameter since browsers cannot set websocket headers.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return r.URL.Query().Get("token")
}
