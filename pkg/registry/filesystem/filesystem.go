// Package filesystem is a registry on a local directory.
//
// An alias is a file "<dir>/<alias>.json" holding a copy of the artifact it points,
// and its version is the digest of the content ("sha256:<hex>").
// Other versions are addressed by their paths, relative to the directory or absolute.
//
// Swaps of an alias are serialized by flock(2) on "<dir>/.<alias>.json.lock".
// The lock file is left in place.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opst/mlgate/pkg/registry"
	"golang.org/x/sys/unix"
)

type fsRegistry struct {
	dir string
}

func New(dir string) registry.Registry {
	return &fsRegistry{dir: dir}
}

// AliasPath returns the path of the file which alias in dir is.
func AliasPath(dir string, alias string) string {
	return filepath.Join(dir, alias+".json")
}

// Digest returns the version of payload as an alias.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (r *fsRegistry) path(version string) string {
	if filepath.IsAbs(version) {
		return filepath.Clean(version)
	}
	return filepath.Join(r.dir, version)
}

func read(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", registry.ErrMissing, path)
	}
	return payload, err
}

func (r *fsRegistry) Alias(_ context.Context, alias string) (registry.Entry, error) {
	payload, err := read(AliasPath(r.dir, alias))
	if err != nil {
		return registry.Entry{}, err
	}
	return registry.Entry{Version: Digest(payload), Payload: payload}, nil
}

func (r *fsRegistry) Get(_ context.Context, version string) (registry.Entry, error) {
	payload, err := read(r.path(version))
	if err != nil {
		return registry.Entry{}, err
	}
	return registry.Entry{Version: version, Payload: payload}, nil
}

func (r *fsRegistry) SwapAlias(ctx context.Context, alias string, expected string, next string) error {
	target := AliasPath(r.dir, alias)

	unlock, err := lock(target)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := os.ReadFile(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if expected != "" {
			return fmt.Errorf("%w: %s is not set", registry.ErrConflict, alias)
		}
	case err != nil:
		return err
	default:
		if expected == "" || Digest(current) != expected {
			return fmt.Errorf("%w: %s is %s", registry.ErrConflict, alias, Digest(current))
		}
	}

	payload, err := read(r.path(next))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return replace(target, payload)
}

// Lock holds the alias in dir until unlock is called, or the process exits.
//
// While it is held, SwapAlias of the alias fails with registry.ErrConflict.
// When the lock is held by others, Lock also returns registry.ErrConflict.
func Lock(dir string, alias string) (unlock func(), err error) {
	return lock(AliasPath(dir, alias))
}

func lock(target string) (func(), error) {
	name := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".lock")

	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is locked", registry.ErrConflict, target)
		}
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// replace writes payload into target, atomically.
func replace(target string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}
