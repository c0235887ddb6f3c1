package token

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/opst/mlgate/pkg/auth"
)

var (
	// the token is malformed, forged, or signed by an unknown key.
	ErrInvalidToken = errors.New("invalid token")

	// the token is genuine, but expired.
	ErrExpiredToken = errors.New("token expired")

	// the token is valid, but its role is not enough.
	ErrForbidden = errors.New("forbidden")

	errNoKeyFound = errors.New("no key found")
)

const DefaultIssuer = "mlgate"

// Claims in tokens issued by Authority.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the signature is verified.
func (c *Claims) Validate() error {
	if c.Subject == "" {
		return errors.New(`"sub" is empty`)
	}
	if _, err := auth.ParseRole(c.Role); err != nil {
		return err
	}
	return nil
}

// Identity is who presented a valid token.
type Identity struct {
	Subject   string
	Role      auth.Role
	ExpiresAt time.Time
}

// Issued is a signed token.
type Issued struct {
	Token     string
	Subject   string
	Role      auth.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Authority struct {
	keychain *Keychain
	ttl      time.Duration
	issuer   string
	now      func() time.Time
}

type Option func(*Authority)

// WithClock replaces the clock. This is useful for testing.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

func WithIssuer(iss string) Option {
	return func(a *Authority) {
		a.issuer = iss
	}
}

// New returns an Authority issuing tokens which live for ttl.
func New(keychain *Keychain, ttl time.Duration, options ...Option) *Authority {
	a := &Authority{
		keychain: keychain,
		ttl:      ttl,
		issuer:   DefaultIssuer,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// Issue signs a new token for subject with role.
func (a *Authority) Issue(subject string, role auth.Role) (Issued, error) {
	if subject == "" {
		return Issued{}, errors.New("subject is empty")
	}
	if _, err := auth.ParseRole(string(role)); err != nil {
		return Issued{}, err
	}

	// NumericDate has second precision. Truncate so that Issued tells the truth.
	now := a.now().Truncate(time.Second)
	exp := now.Add(a.ttl)

	k := a.keychain.Signing()
	tok := jwt.NewWithClaims(k.Method(), &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	})
	tok.Header["kid"] = k.ID()

	signed, err := tok.SignedString(k.ToSign())
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		Token:     signed,
		Subject:   subject,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: exp,
	}, nil
}

// Authorize verifies the token and checks its role.
//
// # Args
//
// - tokenString: JWS compact serialization
//
// - required: roles the identity should satisfy. When empty, any valid token passes.
//
// # Returns
//
// - Identity: who presented the token.
//
// - error: [ErrInvalidToken] for malformed or forged tokens,
// [ErrExpiredToken] for genuine but expired tokens,
// [ErrForbidden] for valid tokens with insufficient role.
// Signature is checked before expiry, so that a forged token never reads as "expired".
func (a *Authority) Authorize(tokenString string, required ...auth.Role) (Identity, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		tokenString, claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			k, ok := a.keychain.Get(kid)
			if !ok {
				return nil, fmt.Errorf("%w: kid = %q", errNoKeyFound, kid)
			}
			if t.Method.Alg() != k.Alg() {
				return nil, fmt.Errorf("algorithm mismatch: %s for %s key", t.Method.Alg(), k.Alg())
			}
			return k.ToVerify(), nil
		},
		jwt.WithValidMethods(a.keychain.Algs()),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.Join(ErrExpiredToken, err)
		}
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}

	role, err := auth.ParseRole(claims.Role)
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	id := Identity{Subject: claims.Subject, Role: role}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}

	for _, r := range required {
		if !role.Satisfies(r) {
			return id, fmt.Errorf("%w: %s requires %s role", ErrForbidden, id.Subject, r)
		}
	}
	return id, nil
}
