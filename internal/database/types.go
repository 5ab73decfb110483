package database

import (
	"time"
)

// TenantID identifies the merchant that owns a client credential and its
// identity groups.
type TenantID int64

// NoTenant is recorded in the audit log when a request failed before a
// tenant was established.
const NoTenant TenantID = 0

// IdentityRecord represents one registered identity of a group.
type IdentityRecord struct {
	IdentityID string
	Metadata   string    // opaque, supplied by the tenant at registration
	Vector     []float64 // face feature vector produced by the encoder
}

// UpsertStatus reports whether a registration created or replaced an identity.
type UpsertStatus string

const (
	Created UpsertStatus = "Created"
	Updated UpsertStatus = "Updated"
)

// AuditEntry is one row of the request audit log.
type AuditEntry struct {
	TenantID  TenantID
	Operation string
	Status    int    // response status code
	Request   string // serialized, redacted request payload
	Response  string // serialized response payload or error message
	At        time.Time
}

// Succeeded reports whether the audited request completed successfully.
func (e AuditEntry) Succeeded() bool {
	return e.Status >= 200 && e.Status < 300
}
