package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meshchat/pkg/attachments"
	"meshchat/pkg/localstore"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })

	local, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	attach, err := attachments.Open(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = attach.Close() })

	s := New(Options{}, local, attach)
	t.Cleanup(s.Close)

	// wait for the registry loop to consume its initial snapshots and
	// subscribe the default room, so tests see a stable handle set
	deadline := time.Now().Add(5 * time.Second)
	for {
		if msgs, _ := s.TrackedHandles(models.DefaultPublicRoomID); msgs == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("registry never subscribed the default room")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return s
}

func privateTestRoom(id string) models.Room {
	return models.Room{
		ID:           id,
		Name:         id,
		MessagesID:   "messages-" + id,
		CollectionID: "room-" + id,
		CreatedOn:    time.Now().UTC(),
		IsPrivate:    true,
	}
}

func TestBootstrapCreatesDefaultRoom(t *testing.T) {
	s := newTestService(t)

	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)
	require.Equal(t, models.DefaultPublicRoomName, room.Name)
	require.Equal(t, models.PublicMessagesCollectionID, room.MessagesID)
	require.True(t, room.IsGenerated)
	require.False(t, room.IsPrivate)
}

func TestAddSubscriptionsIdempotent(t *testing.T) {
	s := newTestService(t)
	room := privateTestRoom("r1")

	before := store.ActiveSubscriptions()
	s.AddSubscriptions(room)
	s.AddSubscriptions(room)

	msgs, meta := s.TrackedHandles(room.ID)
	require.Equal(t, 1, msgs)
	require.Equal(t, 1, meta)
	require.Equal(t, before+2, store.ActiveSubscriptions())

	s.RemoveSubscriptions(room)
	msgs, meta = s.TrackedHandles(room.ID)
	require.Equal(t, 0, msgs)
	require.Equal(t, 0, meta)
	require.Equal(t, before, store.ActiveSubscriptions())

	// removal for an untracked room is non-fatal
	s.RemoveSubscriptions(room)
}

func TestPublicRoomHasNoMetadataHandle(t *testing.T) {
	s := newTestService(t)
	room := models.Room{ID: "r2", MessagesID: models.PublicMessagesCollectionID}

	s.AddSubscriptions(room)
	msgs, meta := s.TrackedHandles(room.ID)
	require.Equal(t, 1, msgs)
	require.Equal(t, 0, meta)
}

func TestLogoutBarrier(t *testing.T) {
	s := newTestService(t)

	u, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	room := privateTestRoom("r3")
	s.AddSubscriptions(room)

	s.Logout()

	msgs, meta := s.TrackedHandles(room.ID)
	require.Equal(t, 0, msgs)
	require.Equal(t, 0, meta)
	_, err = s.CurrentUser()
	require.ErrorIs(t, err, ErrNoCurrentUser)

	// a fresh login lifts the barrier
	u2, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	require.NotEmpty(t, u2.ID)
	got, err := s.CurrentUser()
	require.NoError(t, err)
	require.Equal(t, "Alice", got.Name)
}

func TestComputeVisibleRooms(t *testing.T) {
	now := time.Now().UTC()
	all := []models.Room{
		{ID: "old", CreatedOn: now.Add(-2 * time.Hour)},
		{ID: "archived", CreatedOn: now.Add(-time.Hour)},
		{ID: "new", CreatedOn: now},
	}
	archived := map[string]struct{}{
		"archived": {},
		// marker for a room evicted before it ever replicated
		"ghost": {},
	}

	visible := ComputeVisibleRooms(all, archived)
	require.Len(t, visible, 2)
	require.Equal(t, "new", visible[0].ID)
	require.Equal(t, "old", visible[1].ID)
}
