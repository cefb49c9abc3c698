// Package secrets keeps the operator-supplied hosted provider keys in memory
// and swaps them on reload.
package secrets

import (
	"fmt"
	"slices"
	"sync"
)

// Loader returns the full current set of secrets from one source.
type Loader func() (map[string]string, error)

// Change lists the secret names a reload touched. Values never leave the vault.
type Change struct {
	Added   []string
	Removed []string
	Updated []string
}

// Empty reports whether the reload left every secret as it was.
func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// Vault is safe for concurrent readers while a reload is in progress.
type Vault struct {
	mu         sync.RWMutex
	values     map[string]string
	generation uint64
	loader     Loader
}

// NewVault performs the first load; a failing loader fails startup.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	if vals == nil {
		vals = map[string]string{}
	}
	return &Vault{values: vals, loader: loader, generation: 1}, nil
}

// Get returns the secret for key, or "" when unset.
func (v *Vault) Get(key string) string {
	val, _ := v.Lookup(key)
	return val
}

// Lookup returns the secret for key and whether it is set.
func (v *Vault) Lookup(key string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[key]
	return val, ok
}

// Keys returns the loaded secret names, sorted.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Generation starts at 1 and increments on every reload that changed something.
func (v *Vault) Generation() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.generation
}

// Reload re-runs the loader and swaps the values in one step. On error the
// previous values stay in place.
func (v *Vault) Reload() (Change, error) {
	next, err := v.loader()
	if err != nil {
		return Change{}, fmt.Errorf("reload secrets: %w", err)
	}
	if next == nil {
		next = map[string]string{}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	change := diff(v.values, next)
	if !change.Empty() {
		v.generation++
	}
	v.values = next
	return change, nil
}

func diff(prev, next map[string]string) Change {
	var c Change
	for k, nv := range next {
		pv, ok := prev[k]
		switch {
		case !ok:
			c.Added = append(c.Added, k)
		case pv != nv:
			c.Updated = append(c.Updated, k)
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			c.Removed = append(c.Removed, k)
		}
	}
	slices.Sort(c.Added)
	slices.Sort(c.Removed)
	slices.Sort(c.Updated)
	return c
}
