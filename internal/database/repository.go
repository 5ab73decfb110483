package database

import (
	"context"
	"errors"
)

var (
	// ErrNoMatch is returned by Validate when the client id and secret do not
	// identify a merchant.
	ErrNoMatch = errors.New("no matching credential")

	// ErrUnavailable is returned when the backing database cannot be reached.
	ErrUnavailable = errors.New("credential store unavailable")
)

// CredentialStore validates API client credentials.
type CredentialStore interface {
	// Validate returns the tenant owning clientID when secret matches.
	// Returns ErrNoMatch for unknown or mismatching credentials and an error
	// wrapping ErrUnavailable when the store cannot answer.
	Validate(ctx context.Context, clientID, secret string) (TenantID, error)
}

// IdentityStore provides access to the registered identities of a tenant.
type IdentityStore interface {
	// Fetch returns every identity of a group that has a stored vector, in
	// insertion order. An unknown group yields an empty slice.
	Fetch(ctx context.Context, tenant TenantID, groupID string) ([]IdentityRecord, error)
	// Upsert creates or replaces an identity of a group.
	Upsert(ctx context.Context, tenant TenantID, groupID, identityID string, vector []float64, metadata string) (UpsertStatus, error)
}

// AuditLog records the outcome of every request.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// ClientWriter provisions API clients. Used by the tenant CLI only.
type ClientWriter interface {
	// CreateClient stores a new merchant with the bcrypt hash of its secret.
	CreateClient(ctx context.Context, clientID, secretHash, name string) (TenantID, error)
}

// Store is the full persistence surface implemented by the mariadb and
// postgres backends.
type Store interface {
	CredentialStore
	IdentityStore
	AuditLog
	ClientWriter
	Close() error
}
