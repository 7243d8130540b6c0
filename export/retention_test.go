package export

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestCleanup_RemovesExpiredArtifacts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	tracker := NewMemoryTracker()
	store := NewMemoryStore()

	seed := func(id string, expiresAt time.Time) {
		t.Helper()
		ref, err := store.Put(ctx, "exports/"+id+".pdf", bytes.NewBufferString("%PDF"), ArtifactMeta{ExpiresAt: expiresAt})
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		if _, err := tracker.Start(ctx, ExportRecord{ID: id, RegionID: "report"}); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := tracker.Complete(ctx, id, Result{ID: id, Artifact: ref}); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	seed("expired", now.Add(-time.Minute))
	seed("fresh", now.Add(time.Hour))
	seed("forever", time.Time{})
	if _, err := tracker.Start(ctx, ExportRecord{ID: "running", RegionID: "report"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	removed, err := Cleanup(ctx, tracker, store, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, _, err := store.Open(ctx, "exports/expired.pdf"); KindFromError(err) != KindNotFound {
		t.Fatalf("expected expired artifact removed, got %v", err)
	}
	if _, err := tracker.Status(ctx, "expired"); KindFromError(err) != KindNotFound {
		t.Fatalf("expected expired record removed, got %v", err)
	}
	if keys := store.Keys(); len(keys) != 2 {
		t.Fatalf("expected 2 remaining artifacts, got %v", keys)
	}

	removed, err = Cleanup(ctx, tracker, store, now)
	if err != nil || removed != 0 {
		t.Fatalf("expected idempotent cleanup, got %d %v", removed, err)
	}
}

func TestCleanup_RequiresCollaborators(t *testing.T) {
	if _, err := Cleanup(context.Background(), nil, NewMemoryStore(), time.Now()); KindFromError(err) != KindNotImpl {
		t.Fatalf("expected not implemented without tracker, got %v", err)
	}
	if _, err := Cleanup(context.Background(), NewMemoryTracker(), nil, time.Now()); KindFromError(err) != KindNotImpl {
		t.Fatalf("expected not implemented without store, got %v", err)
	}
}

func TestRunCleanup_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunCleanup(ctx, NewMemoryTracker(), NewMemoryStore(), time.Millisecond, nil)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("cleanup loop did not stop")
	}
}
