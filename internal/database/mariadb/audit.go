package mariadb

import (
	"context"
	"fmt"

	"github.com/kozaktomas/vface/internal/database"
)

// Record appends one row to vface_log.
func (p *Pool) Record(ctx context.Context, entry database.AuditEntry) error {
	at := entry.At
	if at.IsZero() {
		at = p.now()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vface_log (f_merid, f_api, f_status, f_requestdata, f_responsedata, f_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`, int64(entry.TenantID), entry.Operation, entry.Status, entry.Request, entry.Response, at)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
