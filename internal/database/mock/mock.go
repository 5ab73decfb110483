// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/vface/internal/database"
)

type credential struct {
	secret string
	tenant database.TenantID
}

type groupKey struct {
	tenant database.TenantID
	group  string
}

// MockStore is an in-memory database.Store that counts calls per operation.
type MockStore struct {
	mu          sync.Mutex
	credentials map[string]credential
	groups      map[groupKey][]database.IdentityRecord
	nextTenant  database.TenantID

	ValidateCalls int
	FetchCalls    int
	UpsertCalls   int

	// Error injection
	ValidateError error
	FetchError    error
	UpsertError   error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		credentials: make(map[string]credential),
		groups:      make(map[groupKey][]database.IdentityRecord),
		nextTenant:  1,
	}
}

// AddClient registers a client credential for tenant.
func (m *MockStore) AddClient(clientID, secret string, tenant database.TenantID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[clientID] = credential{secret: secret, tenant: tenant}
}

// AddIdentity appends an identity to a group without counting as an Upsert.
func (m *MockStore) AddIdentity(tenant database.TenantID, groupID string, rec database.IdentityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := groupKey{tenant, groupID}
	m.groups[key] = append(m.groups[key], rec)
}

// Validate implements database.CredentialStore.
func (m *MockStore) Validate(ctx context.Context, clientID, secret string) (database.TenantID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidateCalls++
	if m.ValidateError != nil {
		return database.NoTenant, m.ValidateError
	}
	c, ok := m.credentials[clientID]
	if !ok || c.secret != secret {
		return database.NoTenant, database.ErrNoMatch
	}
	return c.tenant, nil
}

// Fetch implements database.IdentityStore.
func (m *MockStore) Fetch(ctx context.Context, tenant database.TenantID, groupID string) ([]database.IdentityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	return slices.Clone(m.groups[groupKey{tenant, groupID}]), nil
}

// Upsert implements database.IdentityStore.
func (m *MockStore) Upsert(ctx context.Context, tenant database.TenantID, groupID, identityID string, vector []float64, metadata string) (database.UpsertStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertError != nil {
		return "", m.UpsertError
	}

	key := groupKey{tenant, groupID}
	rec := database.IdentityRecord{IdentityID: identityID, Metadata: metadata, Vector: slices.Clone(vector)}
	for i, existing := range m.groups[key] {
		if existing.IdentityID == identityID {
			m.groups[key][i] = rec
			return database.Updated, nil
		}
	}
	m.groups[key] = append(m.groups[key], rec)
	return database.Created, nil
}

// Record implements database.AuditLog by discarding the entry. Use
// MockAuditLog to inspect audit entries.
func (m *MockStore) Record(ctx context.Context, entry database.AuditEntry) error {
	return nil
}

// CreateClient implements database.ClientWriter. The secret hash is stored
// verbatim, so Validate succeeds only when called with the hash itself.
func (m *MockStore) CreateClient(ctx context.Context, clientID, secretHash, name string) (database.TenantID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.credentials[clientID]; exists {
		return database.NoTenant, fmt.Errorf("client %s already exists", clientID)
	}
	tenant := m.nextTenant
	m.nextTenant++
	m.credentials[clientID] = credential{secret: secretHash, tenant: tenant}
	return tenant, nil
}

// Close implements database.Store.
func (m *MockStore) Close() error {
	return nil
}

// Counts returns the current call counters under the lock.
func (m *MockStore) Counts() (validate, fetch, upsert int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ValidateCalls, m.FetchCalls, m.UpsertCalls
}

// MockAuditLog captures audit entries in memory.
type MockAuditLog struct {
	mu      sync.Mutex
	entries []database.AuditEntry

	RecordError error
}

// NewMockAuditLog creates an empty audit log.
func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

// Record implements database.AuditLog.
func (m *MockAuditLog) Record(ctx context.Context, entry database.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.RecordError
}

// Entries returns a copy of the recorded entries.
func (m *MockAuditLog) Entries() []database.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Last returns the most recent entry, or false if nothing was recorded.
func (m *MockAuditLog) Last() (database.AuditEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return database.AuditEntry{}, false
	}
	return m.entries[len(m.entries)-1], true
}
