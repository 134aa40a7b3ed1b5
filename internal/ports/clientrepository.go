package ports

import (
	"context"
	"zwop/internal/types"
)

// ClientRepository maps API keys to client records. Keys are unique across scoped and
// admin clients. Records are never updated or deleted once inserted.
type ClientRepository interface {
	// Get returns the client for key.
	// MUST return types.ErrNotFound if no client has that key.
	Get(ctx context.Context, key string) (types.Client, error)

	// List returns every client in insertion order. An empty store yields an empty slice.
	List(ctx context.Context) ([]types.Client, error)

	// Put inserts a scoped client. MUST return types.ErrDuplicateKey, without changing
	// anything, if the key already exists. The record is durable when Put returns nil.
	Put(ctx context.Context, client types.ScopedClient) error

	// PutAdmin is Put for admin clients.
	PutAdmin(ctx context.Context, client types.AdminClient) error
}
