package pipeline

import (
	"context"
	"fmt"
)

// InvalidateAllStatusForSite clears the current flag on every in-progress
// record the participant holds at site. It is a no-op for a nil Tx
// interface or a zero site; a typed nil Tx is not detected.
func InvalidateAllStatusForSite(ctx context.Context, tx Tx, participantID string, site int64) (int64, error) {
	if tx == nil || site == 0 {
		return 0, nil
	}
	n, err := tx.InvalidateInProgressForSite(ctx, participantID, site)
	if err != nil {
		return 0, fmt.Errorf("invalidate site %d statuses: %w", site, err)
	}
	return n, nil
}
