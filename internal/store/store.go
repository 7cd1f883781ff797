// Package store defines the remote document store capability set shared by
// every synchronization backend, plus the backend adapters themselves.
//
// A store holds whole room documents under path-like keys such as
// "rooms/room-ABC123.json". Every Put replaces the full document; there is
// no field-level patching anywhere in the protocol.
package store

import (
	"context"
	"errors"

	"github.com/JingZHANG-CUHKSZ/todolist/internal/models"
)

var (
	// ErrNotFound means the key has no document behind it.
	ErrNotFound = errors.New("document not found")
	// ErrUnauthorized means the credential was rejected. Callers must treat
	// this as fatal for the session and reacquire the credential, never retry.
	ErrUnauthorized = errors.New("credential rejected")
	// ErrConflict means the supplied version token is stale. Callers should
	// re-fetch and retry with the current token.
	ErrConflict = errors.New("stale version token")
)

// Version is an opaque token making a write conditional on the writer having
// seen the latest prior state. The empty version means "create new"; adapters
// without real conflict detection ignore it.
type Version string

// RemoteStore is the capability set a synchronization backend must provide.
type RemoteStore interface {
	// Get returns the document at key and its current version token.
	Get(ctx context.Context, key string) (*models.Document, Version, error)
	// Put replaces the document at key and returns the new version token.
	Put(ctx context.Context, key string, doc *models.Document, ver Version) (Version, error)
	// ListKeys returns every key under the prefix. A missing prefix is not an
	// error; adapters fail open with an empty result.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Watcher is the optional push capability. Only the document-database adapter
// supports it; poll-based backends reconcile on a timer instead.
type Watcher interface {
	// Watch delivers every remote change of key to onChange, in write-arrival
	// order, until the returned stop function is called.
	Watch(ctx context.Context, key string, onChange func(*models.Document)) (stop func(), err error)
}
