package key_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opst/mlgate/pkg/auth/token/key"
	"github.com/opst/mlgate/pkg/utils/try"
)

func TestHMAC(t *testing.T) {
	secret := []byte(strings.Repeat("s", 64))

	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		t.Run("Sign and Verify with "+alg, func(t *testing.T) {
			k := try.To(key.HMAC(alg, secret)).OrFatal(t)
			if k.Alg() != alg {
				t.Errorf("Expected alg to be %q, but got %q", alg, k.Alg())
			}

			claims := jwt.RegisteredClaims{
				Subject:   "test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}
			signed := try.To(jwt.NewWithClaims(k.Method(), claims).SignedString(k.ToSign())).OrFatal(t)

			parsed := try.To(jwt.ParseWithClaims(
				signed, new(jwt.RegisteredClaims),
				func(*jwt.Token) (any, error) { return k.ToVerify(), nil },
			)).OrFatal(t)
			if sub, _ := parsed.Claims.GetSubject(); sub != "test" {
				t.Errorf("Expected subject to be %q, but got %q", "test", sub)
			}
		})
	}

	t.Run("when the algorithm is not HMAC, it returns ErrUnsupportedAlgorithm", func(t *testing.T) {
		if _, err := key.HMAC("RS256", secret); !errors.Is(err, key.ErrUnsupportedAlgorithm) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("when the secret is shorter than the hash, it returns ErrWeakKey", func(t *testing.T) {
		if _, err := key.HMAC("HS256", []byte("short")); !errors.Is(err, key.ErrWeakKey) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := key.HMAC("HS512", secret[:32]); !errors.Is(err, key.ErrWeakKey) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("ID is stable for the same secret, and differs for others", func(t *testing.T) {
		a := try.To(key.HMAC("HS256", secret)).OrFatal(t)
		b := try.To(key.HMAC("HS256", secret)).OrFatal(t)
		c := try.To(key.Generate("HS256", 32)).OrFatal(t)

		if a.ID() != b.ID() || !a.Equal(b) {
			t.Errorf("keys from the same secret differ: %s, %s", a, b)
		}
		if a.ID() == c.ID() || a.Equal(c) {
			t.Errorf("keys from different secrets are same: %s, %s", a, c)
		}
	})

	t.Run("String does not contain the secret", func(t *testing.T) {
		k := try.To(key.HMAC("HS256", secret)).OrFatal(t)
		if strings.Contains(k.String(), string(secret)) {
			t.Errorf("secret leaks: %s", k)
		}
	})
}
