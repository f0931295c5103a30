// Package middleware wraps tree stores to protect what the engine writes.
package middleware

import "github.com/aretw0/cascade/pkg/ports"

// Store is a tree store that can also list and import trees.
type Store interface {
	ports.TreeStore
	ports.TreeCatalog
}

// Middleware allows wrapping a Store to add behavior.
type Middleware func(Store) Store

// Chain applies mws so that the first one is the outermost.
func Chain(s Store, mws ...Middleware) Store {
	for i := len(mws) - 1; i >= 0; i-- {
		s = mws[i](s)
	}
	return s
}
