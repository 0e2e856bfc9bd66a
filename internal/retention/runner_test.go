package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"meshchat/pkg/config"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func seedRoom(t *testing.T, collection string, room models.Room) {
	t.Helper()
	if err := store.Upsert(collection, room.ToDoc(), store.ConflictUpdate); err != nil {
		t.Fatalf("failed to seed room: %v", err)
	}
}

func seedMessage(t *testing.T, collection, id, roomID string, createdOn time.Time) {
	t.Helper()
	m := models.NewMessage(id, roomID, "msg "+id, "u1", "Alice", createdOn)
	if err := store.Upsert(collection, m.ToDoc(), store.ConflictUpdate); err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}
}

func TestRunOnceEvictsOnlyExpired(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC()
	seedRoom(t, models.PublicRoomsCollectionID, models.Room{
		ID: "public", Name: "Public", MessagesID: models.PublicMessagesCollectionID,
	})
	seedRoom(t, models.PrivateRoomsCollectionID, models.Room{
		ID: "ops", Name: "ops", MessagesID: "messages-ops", IsPrivate: true,
	})
	seedMessage(t, models.PublicMessagesCollectionID, "old1", "public", now.AddDate(0, 0, -45))
	seedMessage(t, models.PublicMessagesCollectionID, "new1", "public", now.AddDate(0, 0, -1))
	seedMessage(t, "messages-ops", "old2", "ops", now.AddDate(0, 0, -31))
	seedMessage(t, "messages-ops", "new2", "ops", now)

	if err := runOnce(context.Background(), config.RetentionConfig{Days: 30}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for _, tc := range []struct {
		collection, id string
		want           bool
	}{
		{models.PublicMessagesCollectionID, "old1", false},
		{models.PublicMessagesCollectionID, "new1", true},
		{"messages-ops", "old2", false},
		{"messages-ops", "new2", true},
	} {
		_, err := store.Get(tc.collection, tc.id)
		if tc.want && err != nil {
			t.Fatalf("message %s should survive: %v", tc.id, err)
		}
		if !tc.want && !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("message %s should be evicted, got %v", tc.id, err)
		}
	}
}

func TestRunOnceHonorsLegacyTimestamps(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC()
	seedRoom(t, models.PublicRoomsCollectionID, models.Room{
		ID: "public", MessagesID: models.PublicMessagesCollectionID,
	})
	// a legacy record carries only the millisecond timestamp
	old := models.Doc{
		models.DBIDKey:   "legacy1",
		models.RoomIDKey: "public",
		models.MsgKey:    "stale",
		models.TimeMsKey: now.AddDate(0, 0, -60).UnixMilli(),
	}
	if err := store.Upsert(models.PublicMessagesCollectionID, old, store.ConflictUpdate); err != nil {
		t.Fatalf("failed to seed legacy message: %v", err)
	}

	if err := runOnce(context.Background(), config.RetentionConfig{Days: 30}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := store.Get(models.PublicMessagesCollectionID, "legacy1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("legacy message should be evicted, got %v", err)
	}
}

func TestRunOnceDryRunEvictsNothing(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC()
	seedRoom(t, models.PublicRoomsCollectionID, models.Room{
		ID: "public", MessagesID: models.PublicMessagesCollectionID,
	})
	seedMessage(t, models.PublicMessagesCollectionID, "old1", "public", now.AddDate(0, 0, -45))

	if err := runOnce(context.Background(), config.RetentionConfig{Days: 30, DryRun: true}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := store.Get(models.PublicMessagesCollectionID, "old1"); err != nil {
		t.Fatalf("dry run must not evict: %v", err)
	}
}

func TestRunOnceBatchesEvictions(t *testing.T) {
	openTestStore(t)

	now := time.Now().UTC()
	seedRoom(t, models.PublicRoomsCollectionID, models.Room{
		ID: "public", MessagesID: models.PublicMessagesCollectionID,
	})
	for i := 0; i < 7; i++ {
		seedMessage(t, models.PublicMessagesCollectionID, "old"+string(rune('a'+i)), "public", now.AddDate(0, 0, -40))
	}

	cfg := config.RetentionConfig{Days: 30, BatchSize: 2}
	if err := runOnce(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	docs, err := store.Query(models.PublicMessagesCollectionID, nil, nil)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected all expired messages evicted, %d remain", len(docs))
	}
}

func TestRunImmediateRequiresConfig(t *testing.T) {
	openTestStore(t)

	storedCfg = nil
	if err := RunImmediate(); err == nil {
		t.Fatalf("expected error without registered config")
	}

	seedRoom(t, models.PublicRoomsCollectionID, models.Room{
		ID: "public", MessagesID: models.PublicMessagesCollectionID,
	})
	seedMessage(t, models.PublicMessagesCollectionID, "old1", "public", time.Now().UTC().AddDate(0, 0, -45))

	SetConfig(config.RetentionConfig{Days: 30})
	if err := RunImmediate(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := store.Get(models.PublicMessagesCollectionID, "old1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired message should be evicted, got %v", err)
	}
}

func TestStartDisabled(t *testing.T) {
	cancel, err := Start(context.Background(), config.RetentionConfig{Enabled: false})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	cancel()
}

func TestStartRejectsInvalidCron(t *testing.T) {
	if _, err := Start(context.Background(), config.RetentionConfig{Enabled: true, Cron: "not a cron"}); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}
