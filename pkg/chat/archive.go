package chat

import (
	"fmt"

	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
	"meshchat/pkg/telemetry"
)

// ArchiveRoom soft-removes a room from the active view. The order matters:
// subscriptions come down strictly before eviction so a live query cannot
// re-populate data mid-eviction, and the archive marker is persisted even
// when eviction partially fails so the room does not resurface on the next
// registry pass. The room id is held in the archiving set until the marker
// lands, so a concurrent registry pass cannot re-register handles for a
// room that is mid-archive.
func (s *Service) ArchiveRoom(room models.Room) {
	s.mu.Lock()
	s.archiving[room.ID] = struct{}{}
	s.removeSubscriptionsLocked(room)
	s.mu.Unlock()

	s.evictRoom(room)

	err := s.local.ArchiveRoom(room)
	s.mu.Lock()
	delete(s.archiving, room.ID)
	s.mu.Unlock()
	if err != nil {
		logger.Error("archive_marker_failed", "room", room.ID, "error", err)
		return
	}
	telemetry.RoomsArchived.Inc()
	logger.Info("room_archived", "room", room.ID)
}

// evictRoom drops the local replica of the room's messages; for a private
// room the room document and its metadata namespace go too. Failures are
// logged and the remaining steps still run.
func (s *Service) evictRoom(room models.Room) {
	roomID := room.ID
	if _, err := store.Evict(room.MessagesID, func(d models.Doc) bool {
		id, _ := d[models.RoomIDKey].(string)
		return id == roomID
	}); err != nil {
		logger.Error("evict_messages_failed", "room", roomID, "error", err)
	}
	if room.IsPrivate {
		if err := store.Remove(models.PrivateRoomsCollectionID, roomID); err != nil {
			logger.Error("evict_room_doc_failed", "room", roomID, "error", err)
		}
		if room.CollectionID != "" {
			if err := store.DropCollection(room.CollectionID); err != nil {
				logger.Error("evict_room_collection_failed", "room", roomID, "error", err)
			}
		}
	}
	// Public room documents are left in place: they are lightweight and the
	// shared registry re-replicates them anyway.
}

// UnarchiveRoom restores an archived room: marker removed, subscriptions
// re-registered, lists republished by the registry. The caller may pass a
// bare room id; archiving a private room evicts its registry document, so
// the room's namespaces are recovered from the marker snapshot when the
// replica misses. An off-mesh room reappears with zero messages until
// replication catches up; that is expected, not an error.
func (s *Service) UnarchiveRoom(room models.Room) {
	if live, err := s.RoomByID(room.ID); err == nil {
		room = live
	} else {
		logger.Warn("unarchived_room_off_mesh", "room", room.ID)
		if snap, ok := s.archivedSnapshot(room.ID); ok {
			room = snap
		}
	}
	if err := s.local.UnarchiveRoom(room.ID); err != nil {
		logger.Error("unarchive_marker_failed", "room", room.ID, "error", err)
		return
	}
	s.AddSubscriptions(room)
	logger.Info("room_unarchived", "room", room.ID)
}

// archivedSnapshot resolves the full room snapshot persisted with the
// archive marker.
func (s *Service) archivedSnapshot(id string) (models.Room, bool) {
	for _, r := range s.local.ArchivedRooms() {
		if r.ID == id {
			return r, true
		}
	}
	return models.Room{}, false
}

// DeleteRoom hard-removes a private, non-generated room: archive-equivalent
// teardown plus removal of the room document, its namespaces, and any
// archive marker. Irreversible.
func (s *Service) DeleteRoom(room models.Room) error {
	if !room.IsPrivate || room.IsGenerated {
		return ErrDeleteNotPermitted
	}
	s.RemoveSubscriptions(room)

	if err := store.DropCollection(room.MessagesID); err != nil {
		return fmt.Errorf("failed to drop message namespace for %s: %w", room.ID, err)
	}
	if room.CollectionID != "" {
		if err := store.DropCollection(room.CollectionID); err != nil {
			return fmt.Errorf("failed to drop room namespace for %s: %w", room.ID, err)
		}
	}
	if err := store.Remove(models.PrivateRoomsCollectionID, room.ID); err != nil {
		return fmt.Errorf("failed to remove room document %s: %w", room.ID, err)
	}
	if err := s.local.UnarchiveRoom(room.ID); err != nil {
		logger.Error("delete_marker_cleanup_failed", "room", room.ID, "error", err)
	}
	logger.Info("room_deleted", "room", room.ID)
	return nil
}
