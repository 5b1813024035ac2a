// Package registry counts active sessions through a shared directory:
// one empty file per session, named by the launcher pid. Each session
// only ever writes and removes its own entry.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
)

type Registry struct {
	dir string
}

func New(dir string) *Registry {
	return &Registry{dir: dir}
}

func (r *Registry) Dir() string {
	return r.dir
}

// Register creates the directory if needed and adds an entry for id.
func (r *Registry) Register(id string) error {
	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}
	path := filepath.Join(r.dir, id)
	if err := os.WriteFile(path, nil, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Deregister removes the entry for id. Removing an absent entry is not an error.
func (r *Registry) Deregister(id string) error {
	path := filepath.Join(r.dir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Count returns the number of registered sessions. A registry that was
// never created holds none.
func (r *Registry) Count() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", r.dir, err)
	}
	return len(entries), nil
}
