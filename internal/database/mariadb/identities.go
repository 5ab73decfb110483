package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/vface/internal/database"
)

// Fetch returns the identities of a group in registration order. Rows
// without an encoding are skipped.
func (p *Pool) Fetch(ctx context.Context, tenant database.TenantID, groupID string) ([]database.IdentityRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT f_uid, COALESCE(f_userinfo, ''), f_encode
		FROM vface_user
		WHERE f_merid = ? AND f_groupid = ?
		ORDER BY id
	`, int64(tenant), groupID)
	if err != nil {
		return nil, fmt.Errorf("%w: query group %s: %v", database.ErrUnavailable, groupID, err)
	}
	defer rows.Close()

	var records []database.IdentityRecord
	for rows.Next() {
		var (
			rec    database.IdentityRecord
			encode []byte
		)
		if err := rows.Scan(&rec.IdentityID, &rec.Metadata, &encode); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		if len(encode) == 0 {
			continue
		}
		if rec.Vector, err = database.DecodeVector(encode); err != nil {
			return nil, fmt.Errorf("identity %s: %w", rec.IdentityID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return records, nil
}

// Upsert creates or replaces an identity within one transaction.
func (p *Pool) Upsert(ctx context.Context, tenant database.TenantID, groupID, identityID string, vector []float64, metadata string) (database.UpsertStatus, error) {
	encode, err := database.EncodeVector(vector)
	if err != nil {
		return "", err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := p.now()
	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM vface_user
		WHERE f_merid = ? AND f_groupid = ? AND f_uid = ?
		LIMIT 1 FOR UPDATE
	`, int64(tenant), groupID, identityID).Scan(&id)

	status := database.Updated
	switch {
	case errors.Is(err, sql.ErrNoRows):
		status = database.Created
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vface_user (f_merid, f_groupid, f_uid, f_encode, f_userinfo, f_ctime, f_etime)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, int64(tenant), groupID, identityID, encode, metadata, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE vface_user SET f_encode = ?, f_userinfo = ?, f_etime = ? WHERE id = ?`,
			encode, metadata, now, id)
	}
	if err != nil {
		return "", fmt.Errorf("upsert identity %s: %w", identityID, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit identity %s: %w", identityID, err)
	}
	return status, nil
}
