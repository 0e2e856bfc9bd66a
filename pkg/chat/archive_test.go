package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meshchat/pkg/models"
	"meshchat/pkg/store"
)

func TestArchivePrivateRoom(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	room, err := s.CreateRoom("", "ops", true, false)
	require.NoError(t, err)
	msg, err := s.CreateMessage(room, "hello")
	require.NoError(t, err)

	s.ArchiveRoom(room)

	// subscriptions down, local replica evicted, marker persisted
	msgs, meta := s.TrackedHandles(room.ID)
	require.Equal(t, 0, msgs)
	require.Equal(t, 0, meta)
	_, err = store.Get(room.MessagesID, msg.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = store.Get(models.PrivateRoomsCollectionID, room.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, archived := s.local.ArchivedRoomIDs()[room.ID]
	require.True(t, archived)
}

func TestArchivePublicRoomKeepsRoomDoc(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)
	msg, err := s.CreateMessage(room, "hello")
	require.NoError(t, err)

	s.ArchiveRoom(room)

	// messages evicted, but the shared registry entry stays put
	_, err = store.Get(room.MessagesID, msg.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = store.Get(models.PublicRoomsCollectionID, room.ID)
	require.NoError(t, err)
	_, archived := s.local.ArchivedRoomIDs()[room.ID]
	require.True(t, archived)
}

func TestUnarchiveRestoresSubscriptions(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	room, err := s.CreateRoom("", "ops", true, false)
	require.NoError(t, err)
	s.ArchiveRoom(room)

	s.UnarchiveRoom(room)

	_, archived := s.local.ArchivedRoomIDs()[room.ID]
	require.False(t, archived)
	msgs, meta := s.TrackedHandles(room.ID)
	require.Equal(t, 1, msgs)
	require.Equal(t, 1, meta)
}

func TestUnarchiveByIDRecoversNamespaces(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	room, err := s.CreateRoom("", "ops", true, false)
	require.NoError(t, err)
	s.ArchiveRoom(room)

	// callers restoring from the archived list only hold the room id; the
	// room document itself was evicted with the archive
	s.UnarchiveRoom(models.Room{ID: room.ID})

	s.mu.Lock()
	sub := s.messageSubs[room.ID]
	meta := s.roomSubs[room.ID]
	s.mu.Unlock()
	require.NotNil(t, sub)
	require.Equal(t, room.MessagesID, sub.Collection())
	require.NotNil(t, meta)
	require.Equal(t, room.CollectionID, meta.Collection())
}

func TestArchiveInProgressBlocksResubscribe(t *testing.T) {
	s := newTestService(t)
	room := privateTestRoom("r9")

	s.mu.Lock()
	s.archiving[room.ID] = struct{}{}
	s.mu.Unlock()

	s.AddSubscriptions(room)
	msgs, meta := s.TrackedHandles(room.ID)
	require.Equal(t, 0, msgs)
	require.Equal(t, 0, meta)

	s.mu.Lock()
	delete(s.archiving, room.ID)
	s.mu.Unlock()
	s.AddSubscriptions(room)
	msgs, _ = s.TrackedHandles(room.ID)
	require.Equal(t, 1, msgs)
}

func TestReconcileDropsHandlesForArchivedRoom(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	room, err := s.CreateRoom("", "ops", true, false)
	require.NoError(t, err)
	msgs, _ := s.TrackedHandles(room.ID)
	require.Equal(t, 1, msgs)

	// marker lands without the local teardown, as when another replica of
	// this session archived the room
	require.NoError(t, s.local.ArchiveRoom(room))

	deadline := time.Now().Add(5 * time.Second)
	for {
		msgs, meta := s.TrackedHandles(room.ID)
		if msgs == 0 && meta == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("registry kept handles for archived room: msgs=%d meta=%d", msgs, meta)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDeleteRoomPermission(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	public, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)
	require.ErrorIs(t, s.DeleteRoom(public), ErrDeleteNotPermitted)

	generated, err := s.CreateRoom("", "auto", true, true)
	require.NoError(t, err)
	require.ErrorIs(t, s.DeleteRoom(generated), ErrDeleteNotPermitted)
}

func TestDeleteRoomRemovesEverything(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	room, err := s.CreateRoom("", "ops", true, false)
	require.NoError(t, err)
	msg, err := s.CreateMessage(room, "hello")
	require.NoError(t, err)
	// an archived room can still be deleted; the marker goes too
	require.NoError(t, s.local.ArchiveRoom(room))

	require.NoError(t, s.DeleteRoom(room))

	_, err = store.Get(models.PrivateRoomsCollectionID, room.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = store.Get(room.MessagesID, msg.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = store.Get(room.CollectionID, room.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, archived := s.local.ArchivedRoomIDs()[room.ID]
	require.False(t, archived)
	msgs, meta := s.TrackedHandles(room.ID)
	require.Equal(t, 0, msgs)
	require.Equal(t, 0, meta)
}
