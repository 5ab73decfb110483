package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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
		`SELECT id, f_key FROM vface_api_merchant WHERE f_username = ? LIMIT 1`, clientID,
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

// CreateClient inserts a merchant row and returns its id.
func (p *Pool) CreateClient(ctx context.Context, clientID, secretHash, name string) (database.TenantID, error) {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO vface_api_merchant (f_username, f_key, f_name, f_ctime) VALUES (?, ?, ?, ?)`,
		clientID, secretHash, name, p.now(),
	)
	if err != nil {
		return database.NoTenant, fmt.Errorf("insert merchant %s: %w", clientID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return database.NoTenant, fmt.Errorf("merchant id: %w", err)
	}
	return database.TenantID(id), nil
}
