package chat

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
	"meshchat/pkg/utils"
)

// ComputeVisibleRooms filters archived rooms out of the known set and orders
// the remainder newest first. Pure function; the registry loop is its only
// production caller. A room id present in archivedIDs but absent from all is
// simply not there — evicted before replication — and must not resurface.
func ComputeVisibleRooms(all []models.Room, archivedIDs map[string]struct{}) []models.Room {
	visible := make([]models.Room, 0, len(all))
	for _, room := range all {
		if _, archived := archivedIDs[room.ID]; archived {
			continue
		}
		visible = append(visible, room)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedOn.After(visible[j].CreatedOn)
	})
	return visible
}

// CreateRoom creates a room and subscribes to it. A private room gets its
// own metadata and message namespaces; a public room shares the public ones.
// When id is empty a fresh one is minted.
func (s *Service) CreateRoom(id, name string, isPrivate, isGenerated bool) (models.Room, error) {
	if id == "" {
		id = utils.GenRoomID()
	}
	createdBy := s.local.CurrentUserID()
	if createdBy == "" {
		createdBy = models.UnknownUserID
	}
	room := models.Room{
		ID:          id,
		Name:        name,
		CreatedBy:   createdBy,
		CreatedOn:   time.Now().UTC(),
		IsGenerated: isGenerated,
		IsPrivate:   isPrivate,
	}
	if isPrivate {
		room.CollectionID = "room-" + id
		room.MessagesID = "messages-" + id
	} else {
		room.MessagesID = models.PublicMessagesCollectionID
	}

	// subscribe first so the room's streams are live before the document
	// lands and the registry recomputes
	s.AddSubscriptions(room)

	doc := room.ToDoc()
	if isPrivate {
		if err := store.Upsert(models.PrivateRoomsCollectionID, doc, store.ConflictUpdate); err != nil {
			return models.Room{}, fmt.Errorf("failed to create private room: %w", err)
		}
		if err := store.Upsert(room.CollectionID, doc, store.ConflictUpdate); err != nil {
			return models.Room{}, fmt.Errorf("failed to create private room metadata: %w", err)
		}
	} else {
		if err := store.Upsert(models.PublicRoomsCollectionID, doc, store.ConflictUpdate); err != nil {
			return models.Room{}, fmt.Errorf("failed to create room: %w", err)
		}
	}
	logger.Info("room_created", "room", id, "name", name, "private", isPrivate)
	return room, nil
}

// RoomByID resolves a room from the local replica, public registry first.
// ErrRoomNotFound is non-fatal: archived placeholders and off-mesh rooms
// legitimately miss.
func (s *Service) RoomByID(id string) (models.Room, error) {
	if doc, err := store.Get(models.PublicRoomsCollectionID, id); err == nil {
		return models.RoomFromDoc(doc), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Room{}, err
	}
	if doc, err := store.Get(models.PrivateRoomsCollectionID, id); err == nil {
		return models.RoomFromDoc(doc), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return models.Room{}, err
	}
	logger.Warn("room_not_found", "room", id)
	return models.Room{}, ErrRoomNotFound
}
