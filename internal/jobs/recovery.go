package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Recover requeues jobs left downloading or processing by a process that did
// not shut down cleanly. It must run before the worker starts polling.
// created_at is kept; no attempt is made to restore a more precise position.
func Recover(ctx context.Context, store *Store, log zerolog.Logger) (int, error) {
	stuck, err := store.ListAll(ctx, StatusDownloading, StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list interrupted jobs: %w", err)
	}

	n := 0
	for i := range stuck {
		j := &stuck[i]
		prev := j.Status
		j.resetForQueue()
		if err := store.Update(ctx, j); err != nil {
			return n, fmt.Errorf("requeue job %s: %w", j.ID, err)
		}
		log.Warn().
			Str("job_id", j.ID).
			Str("previous_status", string(prev)).
			Msg("requeued job interrupted by unclean shutdown")
		n++
	}
	return n, nil
}
