package key

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
var ErrWeakKey = errors.New("signing key is too short")

type Key interface {
	// Name of the algorithm
	Alg() string

	// Signing method for the algorithm
	Method() jwt.SigningMethod

	// Key ID. It is put on "kid" header of tokens signed by this key.
	ID() string

	// Key to sign messages.
	//
	// Almost always it is Private key
	ToSign() any

	// Key to verify messages.
	//
	// Almost always it is Public key.
	ToVerify() any

	// Equal returns true if the key is equal to the other key
	Equal(k Key) bool

	// String returns the key in string format. It does not contain key material.
	String() string
}

// hmacMethods are the algorithms accepted for shared secret keys.
var hmacMethods = map[string]*jwt.SigningMethodHMAC{
	jwt.SigningMethodHS256.Name: jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Name: jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Name: jwt.SigningMethodHS512,
}

// minimum length of secret, in bytes, for each algorithm.
//
// It is the size of the hash output (RFC 7518 section 3.2).
func minLength(m *jwt.SigningMethodHMAC) int {
	return m.Hash.Size()
}

func lookup(alg string) (*jwt.SigningMethodHMAC, error) {
	m, ok := hmacMethods[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %q (HS256, HS384 or HS512)", ErrUnsupportedAlgorithm, alg)
	}
	return m, nil
}
