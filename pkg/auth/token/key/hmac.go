package key

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// HMAC returns a Key for a shared secret.
//
// # Args
//
// - alg: one of "HS256", "HS384" or "HS512"
//
// - secret: shared secret. It should be as long as the hash output of alg, at least.
//
// # Returns
//
// - Key: the key. Its ID is derived from the secret.
//
// - error: [ErrUnsupportedAlgorithm] or [ErrWeakKey]
func HMAC(alg string, secret []byte) (Key, error) {
	m, err := lookup(alg)
	if err != nil {
		return nil, err
	}
	if len(secret) < minLength(m) {
		return nil, fmt.Errorf(
			"%w: %s needs %d bytes at least, but %d bytes", ErrWeakKey, alg, minLength(m), len(secret),
		)
	}

	s := bytes.Clone(secret)
	// kid must not leak the secret. a truncated digest is enough to tell keys apart.
	sum := sha256.Sum256(append([]byte(alg+":"), s...))
	return &hmacKey{
		method: m,
		kid:    hex.EncodeToString(sum[:8]),
		secret: s,
	}, nil
}

// Generate returns a Key with random secret of klen bytes.
//
// klen is in *bytes*, not bits.
func Generate(alg string, klen uint) (Key, error) {
	k := make([]byte, klen)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	return HMAC(alg, k)
}

type hmacKey struct {
	method *jwt.SigningMethodHMAC
	kid    string
	secret []byte
}

func (hk *hmacKey) Alg() string {
	return hk.method.Alg()
}

func (hk *hmacKey) Method() jwt.SigningMethod {
	return hk.method
}

func (hk *hmacKey) ID() string {
	return hk.kid
}

func (hk *hmacKey) ToSign() any {
	return hk.secret
}

func (hk *hmacKey) ToVerify() any {
	return hk.secret
}

func (hk *hmacKey) Equal(k Key) bool {
	other, ok := k.(*hmacKey)
	if !ok {
		return false
	}
	return hk.method == other.method && bytes.Equal(hk.secret, other.secret)
}

func (hk *hmacKey) String() string {
	return fmt.Sprintf("Key{Alg: %s, ID: %s, Secret: (%d bytes)}", hk.Alg(), hk.kid, len(hk.secret))
}
