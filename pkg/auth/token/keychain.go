package token

import (
	"github.com/opst/mlgate/pkg/auth/token/key"
)

// Keychain holds keys to verify tokens and the key to sign new ones.
//
// Keychain is immutable after NewKeychain.
type Keychain struct {
	signing key.Key
	keys    map[string]key.Key
}

// NewKeychain returns a Keychain.
//
// # Args
//
// - signing: key to sign new tokens. It is also used to verify tokens.
//
// - verifyOnly: keys only to verify tokens, for example, the previous signing key under rotation.
func NewKeychain(signing key.Key, verifyOnly ...key.Key) *Keychain {
	kc := &Keychain{
		signing: signing,
		keys:    map[string]key.Key{signing.ID(): signing},
	}
	for _, k := range verifyOnly {
		if _, ok := kc.keys[k.ID()]; ok {
			continue
		}
		kc.keys[k.ID()] = k
	}
	return kc
}

// Signing returns the key for signing.
func (kc *Keychain) Signing() key.Key {
	return kc.signing
}

// Get returns the key for kid.
func (kc *Keychain) Get(kid string) (key.Key, bool) {
	k, ok := kc.keys[kid]
	return k, ok
}

// Algs returns algorithms of keys in the keychain.
func (kc *Keychain) Algs() []string {
	seen := map[string]struct{}{}
	algs := []string{}
	for _, k := range kc.keys {
		if _, ok := seen[k.Alg()]; ok {
			continue
		}
		seen[k.Alg()] = struct{}{}
		algs = append(algs, k.Alg())
	}
	return algs
}
