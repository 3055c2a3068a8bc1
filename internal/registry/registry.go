// Package registry is a small on-disk index of known service names to
// pidfile paths, so `guardian list` can enumerate every known daemon
// without scanning the service directory
// or consulting the core engines — the core's own non-goal is "no
// registry", and this package is deliberately outside it, never
// imported by internal/startengine, internal/guardiansvc, or
// internal/stopengine.
//
// Reference: Data-Corruption-goweb/go/commands/database/database.go's
// wrap.New(path, dbiNames) call shape.
package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Data-Corruption/lmdb-go/wrap"
)

const dbiName = "services"

type ctxKey struct{}

// IntoContext threads an open registry through a context, the same way
// the teacher threads its *wrap.DB.
func IntoContext(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext retrieves a registry previously stored with IntoContext.
func FromContext(ctx context.Context) *Registry {
	r, _ := ctx.Value(ctxKey{}).(*Registry)
	return r
}

// Registry wraps an lmdb-go database mapping service name -> pidfile path.
type Registry struct {
	db *wrap.DB
}

// Open opens (creating if needed) the registry database under dataDir.
func Open(dataDir string) (*Registry, error) {
	db, _, err := wrap.New(filepath.Join(dataDir, "registry"), []string{dbiName})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Put records name's pidfile path.
func (r *Registry) Put(name, pidfilePath string) error {
	return r.db.Update(func(txn *wrap.Txn) error {
		return txn.Put(dbiName, []byte(name), []byte(pidfilePath))
	})
}

// Get looks up name's pidfile path. ok is false if name is unknown.
func (r *Registry) Get(name string) (path string, ok bool, err error) {
	err = r.db.View(func(txn *wrap.Txn) error {
		val, getErr := txn.Get(dbiName, []byte(name))
		if getErr != nil {
			if getErr == wrap.ErrNotFound {
				return nil
			}
			return getErr
		}
		path = string(val)
		ok = true
		return nil
	})
	return path, ok, err
}

// Remove deletes name from the registry. Removing an unknown name is
// not an error.
func (r *Registry) Remove(name string) error {
	return r.db.Update(func(txn *wrap.Txn) error {
		err := txn.Delete(dbiName, []byte(name))
		if err == wrap.ErrNotFound {
			return nil
		}
		return err
	})
}

// List returns every known service name mapped to its pidfile path.
// The result is a map, so it carries no order.
func (r *Registry) List() (map[string]string, error) {
	out := make(map[string]string)
	err := r.db.View(func(txn *wrap.Txn) error {
		return txn.ForEach(dbiName, func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
