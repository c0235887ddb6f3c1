package credential

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/opst/mlgate/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

// the presented pair of username and secret does not match any credential.
//
// Unknown username and wrong secret are not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrMissing is returned by Store when no credential is found for the subject.
var ErrMissing = errors.New("credential not found")

type Credential struct {
	Subject string

	// bcrypt hash of the secret. Plaintext never appears here.
	SecretHash []byte

	Role auth.Role
}

// Match tells whether secret matches with this credential, in constant time.
func (c Credential) Match(secret string) bool {
	return bcrypt.CompareHashAndPassword(c.SecretHash, []byte(secret)) == nil
}

type Store interface {
	// Lookup returns the credential for subject.
	//
	// When not found, it returns ErrMissing.
	Lookup(ctx context.Context, subject string) (Credential, error)

	// HasAdmin reports whether the store has at least one admin credential.
	HasAdmin(ctx context.Context) (bool, error)
}

// HashSecret hashes secret for storing as Credential.SecretHash.
func HashSecret(secret string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
}

type envStore struct {
	username   string
	secretHash []byte
}

// EnvStore returns a Store which has only one admin credential, given by configuration.
//
// When username or hash is empty, the store has no credentials at all.
func EnvStore(username string, secretHash string) Store {
	return &envStore{username: username, secretHash: []byte(secretHash)}
}

func (e *envStore) configured() bool {
	return e.username != "" && len(e.secretHash) != 0
}

func (e *envStore) Lookup(_ context.Context, subject string) (Credential, error) {
	if !e.configured() {
		return Credential{}, ErrMissing
	}
	if subtle.ConstantTimeCompare([]byte(subject), []byte(e.username)) != 1 {
		return Credential{}, ErrMissing
	}
	return Credential{Subject: e.username, SecretHash: e.secretHash, Role: auth.Admin}, nil
}

func (e *envStore) HasAdmin(context.Context) (bool, error) {
	return e.configured(), nil
}

type chain []Store

// Chain returns a Store looking up stores in order.
//
// The first credential found wins. It has admin when any of stores has.
func Chain(stores ...Store) Store {
	return chain(stores)
}

func (c chain) Lookup(ctx context.Context, subject string) (Credential, error) {
	for _, s := range c {
		cred, err := s.Lookup(ctx, subject)
		if errors.Is(err, ErrMissing) {
			continue
		}
		return cred, err
	}
	return Credential{}, ErrMissing
}

func (c chain) HasAdmin(ctx context.Context) (bool, error) {
	for _, s := range c {
		ok, err := s.HasAdmin(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
