// Package store is the port to the remote document store. The core only
// needs create/update/get/list by id plus a reachability probe; no
// multi-document transaction is assumed, so callers compensate with
// idempotent references.
package store

import (
	"context"
	"errors"
)

// Collection names used across the application.
const (
	Products  = "products"
	Sales     = "sales"
	Movements = "stock_movements"
	Employees = "employees"
)

var (
	// ErrNotFound - no document with that id (or matching the filter).
	ErrNotFound = errors.New("document not found")
	// ErrUnavailable - the remote store could not be reached. Callers
	// decide between retry, queueing and aborting.
	ErrUnavailable = errors.New("remote store unavailable")
)

// Store exposes the minimal document operations the core needs.
type Store interface {
	// Create persists doc and returns its id. A doc without an "id"
	// field gets one assigned.
	Create(ctx context.Context, collection string, doc any) (string, error)
	// Update applies a partial patch to one document.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	// Get unmarshals the document with the given id into out.
	Get(ctx context.Context, collection, id string, out any) error
	// List unmarshals every document matching filter into out (a
	// pointer to a slice). A nil filter matches everything.
	List(ctx context.Context, collection string, filter map[string]any, out any) error
	// Delete removes one document by id.
	Delete(ctx context.Context, collection, id string) error
	// Ping probes reachability of the backing store.
	Ping(ctx context.Context) error
}
