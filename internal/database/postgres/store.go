package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/secrets"
)

// Validate checks secret against the stored bcrypt hash of clientID.
func (p *Pool) Validate(ctx context.Context, clientID, secret string) (database.TenantID, error) {
	var (
		id   int64
		hash string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, secret_hash FROM merchants WHERE client_id = $1`, clientID,
	).Scan(&id, &hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return database.NoTenant, database.ErrNoMatch
	case err != nil:
		return database.NoTenant, fmt.Errorf("%w: %v", database.ErrUnavailable, err)
	}

	if err := secrets.Verify(secret, hash); err != nil {
		return database.NoTenant, database.ErrNoMatch
	}
	return database.TenantID(id), nil
}

// CreateClient inserts a merchant and returns its id.
func (p *Pool) CreateClient(ctx context.Context, clientID, secretHash, name string) (database.TenantID, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO merchants (client_id, secret_hash, name) VALUES ($1, $2, $3) RETURNING id`,
		clientID, secretHash, name,
	).Scan(&id)
	if err != nil {
		return database.NoTenant, fmt.Errorf("insert merchant %s: %w", clientID, err)
	}
	return database.TenantID(id), nil
}

// Fetch returns the identities of a group in registration order.
func (p *Pool) Fetch(ctx context.Context, tenant database.TenantID, groupID string) ([]database.IdentityRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT identity_id, metadata, embedding
		FROM identities
		WHERE merchant_id = $1 AND group_id = $2 AND embedding IS NOT NULL
		ORDER BY id
	`, int64(tenant), groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: query group %s: %v", database.ErrUnavailable, groupID, err)
	}
	defer rows.Close()

	var records []database.IdentityRecord
	for rows.Next() {
		var (
			rec database.IdentityRecord
			vec pgvector.Vector
		)
		if err := rows.Scan(&rec.IdentityID, &rec.Metadata, &vec); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if len(vec.Slice()) == 0 {
			continue
		}
		rec.Vector = database.Float64s(vec.Slice())
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return records, nil
}

// Upsert creates or replaces an identity. xmax is zero only for rows the
// statement inserted.
func (p *Pool) Upsert(ctx context.Context, tenant database.TenantID, groupID, identityID string, vector []float64, metadata string) (database.UpsertStatus, error) {
	if len(vector) == 0 {
		return "", errors.New("empty vector")
	}

	var inserted bool
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO identities (merchant_id, group_id, identity_id, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (merchant_id, group_id, identity_id) DO UPDATE
		SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = NOW()
		RETURNING (xmax = 0)
	`, int64(tenant), groupID, identityID, pgvector.NewVector(database.Float32s(vector)), metadata).Scan(&inserted)
	if err != nil {
		return "", fmt.Errorf("upsert identity %s: %w", identityID, err)
	}
	if inserted {
		return database.Created, nil
	}
	return database.Updated, nil
}

// Record appends one row to audit_log.
func (p *Pool) Record(ctx context.Context, entry database.AuditEntry) error {
	at := sql.NullTime{Time: entry.At, Valid: !entry.At.IsZero()}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log (merchant_id, operation, status, request, response, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
	`, int64(entry.TenantID), entry.Operation, entry.Status, entry.Request, entry.Response, at)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
