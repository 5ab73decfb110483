package audit

import (
	"context"
	"errors"

	"github.com/kozaktomas/vface/internal/database"
)

// Multi records every entry to each of its sinks. A failing sink does not
// stop the others; their errors are joined.
type Multi []database.AuditLog

func (m Multi) Record(ctx context.Context, entry database.AuditEntry) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
