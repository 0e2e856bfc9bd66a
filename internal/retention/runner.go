package retention

import (
	"context"
	"fmt"
	"time"

	"meshchat/pkg/config"
	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
	"meshchat/pkg/utils"
)

// runOnce executes a single retention run: enumerate rooms, evict messages
// older than the window from each room's message collection, batched so a
// large backlog cannot stall the store.
func runOnce(ctx context.Context, cfg config.RetentionConfig) error {
	runID := utils.GenMessageID()
	days := cfg.Days
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	logger.Info("retention_run_start", "run_id", runID, "cutoff", cutoff.Format(time.RFC3339), "dry_run", cfg.DryRun)

	rooms, err := listAllRooms()
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	var scanned, evicted int
	for _, room := range rooms {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if room.MessagesID == "" {
			continue
		}
		scanned++
		n, err := evictRoomMessages(ctx, room, cutoff, cfg)
		if err != nil {
			logger.Error("retention_room_failed", "run_id", runID, "room", room.ID, "error", err)
			continue
		}
		evicted += n
	}

	logger.Info("retention_run_done", "run_id", runID, "rooms_scanned", scanned, "messages_evicted", evicted)
	return nil
}

// evictRoomMessages drops the room's expired messages in batches.
func evictRoomMessages(ctx context.Context, room models.Room, cutoff time.Time, cfg config.RetentionConfig) (int, error) {
	roomID := room.ID
	expired := func(d models.Doc) bool {
		m := models.MessageFromDoc(d)
		if m.RoomID != roomID {
			return false
		}
		ts := m.CreatedOn
		if ts.IsZero() {
			ts = m.TimeMs
		}
		return !ts.IsZero() && ts.Before(cutoff)
	}

	docs, err := store.Query(room.MessagesID, expired, nil)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if cfg.DryRun {
		logger.Info("retention_dry_run", "room", roomID, "eligible", len(docs))
		return 0, nil
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	sleep := time.Duration(cfg.BatchSleepMs) * time.Millisecond

	var total int
	for start := 0; start < len(docs); start += batchSize {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		ids := make(map[string]struct{}, end-start)
		for _, d := range docs[start:end] {
			if id, _ := d[models.DBIDKey].(string); id != "" {
				ids[id] = struct{}{}
			}
		}
		n, err := store.Evict(room.MessagesID, func(d models.Doc) bool {
			id, _ := d[models.DBIDKey].(string)
			_, ok := ids[id]
			return ok
		})
		if err != nil {
			return total, err
		}
		total += n
		if sleep > 0 && end < len(docs) {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return total, ctx.Err()
			}
		}
	}
	logger.Info("retention_room_evicted", "room", roomID, "count", total)
	return total, nil
}

// listAllRooms enumerates the public registry and the private room index.
func listAllRooms() ([]models.Room, error) {
	var out []models.Room
	for _, collection := range []string{models.PublicRoomsCollectionID, models.PrivateRoomsCollectionID} {
		docs, err := store.Query(collection, nil, nil)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			out = append(out, models.RoomFromDoc(d))
		}
	}
	return out, nil
}
