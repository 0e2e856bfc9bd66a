package chat

import (
	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
)

// AddSubscriptions registers the live subscriptions serving a room: the
// room's message stream, plus the room's own metadata namespace for private
// rooms.
//
// Policy for a room that is already tracked: ignore. The second call is a
// no-op and the original handles are kept, so repeated registry passes over
// the same room set never leak handles.
func (s *Service) AddSubscriptions(room models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addSubscriptionsLocked(room)
}

func (s *Service) addSubscriptionsLocked(room models.Room) {
	if _, ok := s.messageSubs[room.ID]; ok {
		return
	}
	if _, ok := s.archiving[room.ID]; ok {
		return
	}
	// a room without a messages namespace cannot be served; registering a
	// handle on the empty collection would block the real one later
	if room.MessagesID == "" {
		logger.Warn("subscription_missing_namespace", "room", room.ID)
		return
	}
	roomID := room.ID
	s.messageSubs[roomID] = store.Subscribe(room.MessagesID, func(d models.Doc) bool {
		id, _ := d[models.RoomIDKey].(string)
		return id == roomID
	})
	if room.IsPrivate && room.CollectionID != "" {
		s.roomSubs[roomID] = store.Subscribe(room.CollectionID, func(d models.Doc) bool {
			id, _ := d[models.DBIDKey].(string)
			return id == roomID
		})
	}
	logger.Debug("room_subscribed", "room", roomID, "private", room.IsPrivate)
}

// RemoveSubscriptions cancels and forgets every handle serving the room.
// Removal for an untracked room is reported but non-fatal.
func (s *Service) RemoveSubscriptions(room models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSubscriptionsLocked(room)
}

func (s *Service) removeSubscriptionsLocked(room models.Room) {
	sub, ok := s.messageSubs[room.ID]
	if !ok {
		logger.Warn("subscription_not_found", "room", room.ID)
		return
	}
	sub.Cancel()
	delete(s.messageSubs, room.ID)
	if rs, ok := s.roomSubs[room.ID]; ok {
		rs.Cancel()
		delete(s.roomSubs, room.ID)
	}
	logger.Debug("room_unsubscribed", "room", room.ID)
}

// Logout is a barrier: it cancels every subscription handle and all
// in-flight attachment operations. Safe to call with none active. The
// registry stops re-adding subscriptions until the next SetCurrentUser.
func (s *Service) Logout() {
	s.mu.Lock()
	s.loggedOut = true
	if s.usersSub != nil {
		s.usersSub.Cancel()
		s.usersSub = nil
	}
	for id, sub := range s.messageSubs {
		sub.Cancel()
		delete(s.messageSubs, id)
	}
	for id, sub := range s.roomSubs {
		sub.Cancel()
		delete(s.roomSubs, id)
	}
	s.mu.Unlock()

	s.attachMu.Lock()
	s.attachCancel()
	s.attachMu.Unlock()
	s.resetAttachContext()

	if err := s.local.SetCurrentUserID(""); err != nil {
		logger.Error("logout_clear_user_failed", "error", err)
	}
	logger.Info("logged_out")
}

// TrackedHandles reports the tracked handle counts for a room id: the
// message subscription and, for private rooms, the metadata subscription.
func (s *Service) TrackedHandles(roomID string) (messages, metadata int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messageSubs[roomID]; ok {
		messages = 1
	}
	if _, ok := s.roomSubs[roomID]; ok {
		metadata = 1
	}
	return
}
