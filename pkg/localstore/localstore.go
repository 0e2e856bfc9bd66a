// Package localstore is the local-only preference store: current user id,
// archived-room markers, and small preferences. Nothing here replicates;
// archived rooms are persisted as full snapshots because the live room feed
// no longer surfaces them once their subscriptions are torn down.
package localstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"meshchat/pkg/feed"
	"meshchat/pkg/logger"
	"meshchat/pkg/models"
)

const (
	userIDKey            = "user:id"
	archivedRoomPrefix   = "archived:room:"
	acceptLargeImagesKey = "pref:acceptLargeImages"
)

// Store is the local key-value store. It owns its own Pebble keyspace and
// publishes change feeds for the values the session layer reacts to.
type Store struct {
	db *pebble.DB

	userIDFeed   *feed.Feed[string]
	archivedFeed *feed.Feed[[]models.Room]
}

// Open opens (or creates) the local store at the given path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store at %s: %w", path, err)
	}
	s := &Store{
		db:           db,
		userIDFeed:   feed.New[string](),
		archivedFeed: feed.New[[]models.Room](),
	}
	// prime the feeds with the persisted state
	s.userIDFeed.Publish(s.CurrentUserID())
	s.archivedFeed.Publish(s.ArchivedRooms())
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) get(key string) ([]byte, bool) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if !errors.Is(err, pebble.ErrNotFound) {
			logger.Warn("localstore_get_failed", "key", key, "error", err)
		}
		return nil, false
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// CurrentUserID returns the persisted local user id, or "".
func (s *Store) CurrentUserID() string {
	v, ok := s.get(userIDKey)
	if !ok {
		return ""
	}
	return string(v)
}

// SetCurrentUserID persists the local user id and notifies watchers.
func (s *Store) SetCurrentUserID(id string) error {
	if err := s.db.Set([]byte(userIDKey), []byte(id), pebble.Sync); err != nil {
		return err
	}
	s.userIDFeed.Publish(id)
	return nil
}

// CurrentUserIDFeed streams the local user id; "" means logged out.
func (s *Store) CurrentUserIDFeed() *feed.Feed[string] { return s.userIDFeed }

// AcceptLargeImages returns the large-image transfer preference.
func (s *Store) AcceptLargeImages() bool {
	v, ok := s.get(acceptLargeImagesKey)
	return ok && string(v) == "true"
}

// SetAcceptLargeImages persists the large-image transfer preference.
func (s *Store) SetAcceptLargeImages(accept bool) error {
	v := "false"
	if accept {
		v = "true"
	}
	return s.db.Set([]byte(acceptLargeImagesKey), []byte(v), pebble.Sync)
}

// ArchiveRoom persists an archive marker: the serialized room snapshot keyed
// by room id.
func (s *Store) ArchiveRoom(room models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room snapshot: %w", err)
	}
	if err := s.db.Set([]byte(archivedRoomPrefix+room.ID), data, pebble.Sync); err != nil {
		return err
	}
	s.archivedFeed.Publish(s.ArchivedRooms())
	return nil
}

// UnarchiveRoom removes the archive marker for the room id. Removing an
// absent marker is a no-op.
func (s *Store) UnarchiveRoom(roomID string) error {
	if err := s.db.Delete([]byte(archivedRoomPrefix+roomID), pebble.Sync); err != nil {
		return err
	}
	s.archivedFeed.Publish(s.ArchivedRooms())
	return nil
}

// ArchivedRooms returns the decoded room snapshots, newest first.
func (s *Store) ArchivedRooms() []models.Room {
	prefix := []byte(archivedRoomPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix})
	if err != nil {
		logger.Warn("localstore_iter_failed", "error", err)
		return nil
	}
	defer iter.Close()
	var rooms []models.Room
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var r models.Room
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			logger.Warn("archived_room_decode_failed", "key", string(iter.Key()))
			continue
		}
		rooms = append(rooms, r)
	}
	sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].CreatedOn.After(rooms[j].CreatedOn) })
	return rooms
}

// ArchivedRoomIDs returns the set of archived room ids.
func (s *Store) ArchivedRoomIDs() map[string]struct{} {
	out := map[string]struct{}{}
	for _, r := range s.ArchivedRooms() {
		out[r.ID] = struct{}{}
	}
	return out
}

// ArchivedRoomsFeed streams the archived-rooms list on every change.
func (s *Store) ArchivedRoomsFeed() *feed.Feed[[]models.Room] { return s.archivedFeed }
