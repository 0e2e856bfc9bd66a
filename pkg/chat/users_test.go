package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetCurrentUserReusesStoredID(t *testing.T) {
	s := newTestService(t)

	u1, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	_, err = s.ToggleRoomSubscription(u1.ID, "r1")
	require.NoError(t, err)

	// a re-login keeps the identity and the profile state
	u2, err := s.SetCurrentUser("Alicia")
	require.NoError(t, err)
	require.Equal(t, u1.ID, u2.ID)
	require.Equal(t, "Alicia", u2.Name)
	require.NotNil(t, u2.Subscriptions["r1"])
}

func TestToggleRoomSubscription(t *testing.T) {
	s := newTestService(t)
	u, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	u, err = s.ToggleRoomSubscription(u.ID, "r1")
	require.NoError(t, err)
	require.NotNil(t, u.Subscriptions["r1"])

	// unsubscribing keeps the key with an explicit null
	u, err = s.ToggleRoomSubscription(u.ID, "r1")
	require.NoError(t, err)
	v, present := u.Subscriptions["r1"]
	require.True(t, present)
	require.Nil(t, v)

	u, err = s.ToggleRoomSubscription(u.ID, "r1")
	require.NoError(t, err)
	require.NotNil(t, u.Subscriptions["r1"])

	_, err = s.ToggleRoomSubscription("missing", "r1")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUserPartial(t *testing.T) {
	s := newTestService(t)
	u, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	_, err = s.ToggleRoomSubscription(u.ID, "r1")
	require.NoError(t, err)

	name := "Alice B"
	got, err := s.UpdateUser(u.ID, &name, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "Alice B", got.Name)
	// nil fields leave existing state alone
	require.NotNil(t, got.Subscriptions["r1"])

	now := time.Now().UTC()
	got, err = s.UpdateUser(u.ID, nil, map[string]*time.Time{"r2": &now}, nil)
	require.NoError(t, err)
	require.Equal(t, "Alice B", got.Name)
	require.NotNil(t, got.Subscriptions["r2"])

	_, err = s.UpdateUser("missing", &name, nil, nil)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestClearMentions(t *testing.T) {
	s := newTestService(t)
	u, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)

	_, err = s.UpdateUser(u.ID, nil, nil, map[string][]string{"r1": {"m1", "m2"}})
	require.NoError(t, err)

	require.NoError(t, s.ClearMentions(u.ID, "r1"))
	got, err := s.UserByID(u.ID)
	require.NoError(t, err)
	require.Empty(t, got.Mentions["r1"])

	// clearing an already-empty list is a no-op
	require.NoError(t, s.ClearMentions(u.ID, "r1"))
	require.NoError(t, s.ClearMentions(u.ID, "never-opened"))
}
