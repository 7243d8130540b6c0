package export

import (
	"context"
	"time"
)

// RecordDeleter removes records from a tracker.
type RecordDeleter interface {
	Delete(ctx context.Context, id string) error
}

// Cleanup deletes stored artifacts of completed exports whose expiry has
// passed and returns the count removed. Records are dropped too when the
// tracker supports it.
func Cleanup(ctx context.Context, tracker Tracker, store ArtifactStore, now time.Time) (int, error) {
	if tracker == nil {
		return 0, NewError(KindNotImpl, "tracker not configured", nil)
	}
	if store == nil {
		return 0, NewError(KindNotImpl, "artifact store not configured", nil)
	}
	if now.IsZero() {
		now = time.Now()
	}

	records, err := tracker.List(ctx, ProgressFilter{State: StateCompleted})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, record := range records {
		expiresAt := record.Artifact.Meta.ExpiresAt
		if expiresAt.IsZero() || expiresAt.After(now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if key := record.Artifact.Key; key != "" {
			if err := store.Delete(ctx, key); err != nil && KindFromError(err) != KindNotFound {
				return deleted, err
			}
		}
		if deleter, ok := tracker.(RecordDeleter); ok {
			if err := deleter.Delete(ctx, record.ID); err != nil && KindFromError(err) != KindNotFound {
				return deleted, err
			}
		}
		deleted++
	}
	return deleted, nil
}

// RunCleanup calls Cleanup every interval until ctx is done.
func RunCleanup(ctx context.Context, tracker Tracker, store ArtifactStore, interval time.Duration, logger Logger) {
	if interval <= 0 || tracker == nil || store == nil {
		return
	}
	if logger == nil {
		logger = NopLogger{}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := Cleanup(ctx, tracker, store, now)
			if err != nil {
				logger.Errorf("artifact cleanup: %v", err)
				continue
			}
			if removed > 0 {
				logger.Infof("artifact cleanup removed %d expired documents", removed)
			}
		}
	}
}
