package chat

import (
	"errors"
	"fmt"
	"time"

	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
	"meshchat/pkg/utils"
)

// SetCurrentUser establishes the session identity. A first login mints a new
// user id and persists it locally; a re-login reuses the stored id and keeps
// the user's subscriptions and mentions intact. Also lifts the logout barrier.
func (s *Service) SetCurrentUser(name string) (models.ChatUser, error) {
	id := s.local.CurrentUserID()
	if id == "" {
		id = utils.GenUserID()
	}
	if err := s.local.SetCurrentUserID(id); err != nil {
		return models.ChatUser{}, fmt.Errorf("failed to persist current user id: %w", err)
	}

	s.mu.Lock()
	s.loggedOut = false
	if s.usersSub == nil {
		s.usersSub = store.Subscribe(s.opts.UsersCollection, nil)
	}
	s.mu.Unlock()

	u, err := s.userByID(id)
	if errors.Is(err, ErrUserNotFound) {
		u = models.ChatUser{
			ID:            id,
			Subscriptions: map[string]*time.Time{},
			Mentions:      map[string][]string{},
		}
	} else if err != nil {
		return models.ChatUser{}, err
	}
	u.Name = name
	if err := store.Upsert(s.opts.UsersCollection, u.ToDoc(), store.ConflictUpdate); err != nil {
		return models.ChatUser{}, fmt.Errorf("failed to upsert current user: %w", err)
	}
	logger.Info("current_user_set", "user", id)
	return u, nil
}

// CurrentUser resolves the session user, or ErrNoCurrentUser when logged out.
func (s *Service) CurrentUser() (models.ChatUser, error) {
	id := s.local.CurrentUserID()
	if id == "" {
		return models.ChatUser{}, ErrNoCurrentUser
	}
	return s.userByID(id)
}

// UpdateUser partially updates a user profile. Nil fields are left untouched;
// the update is a read-modify-write so concurrent fields survive.
func (s *Service) UpdateUser(id string, name *string, subscriptions map[string]*time.Time, mentions map[string][]string) (models.ChatUser, error) {
	u, err := s.userByID(id)
	if err != nil {
		return models.ChatUser{}, err
	}
	if name != nil {
		u.Name = *name
	}
	if subscriptions != nil {
		u.Subscriptions = subscriptions
	}
	if mentions != nil {
		u.Mentions = mentions
	}
	if err := store.Upsert(s.opts.UsersCollection, u.ToDoc(), store.ConflictUpdate); err != nil {
		return models.ChatUser{}, fmt.Errorf("failed to update user %s: %w", id, err)
	}
	return u, nil
}

// ToggleRoomSubscription flips a user's per-room notification subscription.
// Subscribing stamps the current time; unsubscribing writes an explicit null
// so the entry is distinguishable from never-subscribed. The key is never
// deleted once present.
func (s *Service) ToggleRoomSubscription(userID, roomID string) (models.ChatUser, error) {
	u, err := s.userByID(userID)
	if err != nil {
		return models.ChatUser{}, err
	}
	if t, ok := u.Subscriptions[roomID]; ok && t != nil {
		u.Subscriptions[roomID] = nil
	} else {
		now := time.Now().UTC()
		u.Subscriptions[roomID] = &now
	}
	if err := store.Upsert(s.opts.UsersCollection, u.ToDoc(), store.ConflictUpdate); err != nil {
		return models.ChatUser{}, fmt.Errorf("failed to toggle subscription for %s: %w", userID, err)
	}
	return u, nil
}

// ClearMentions empties a user's unread mention list for a room, typically
// when the room is opened.
func (s *Service) ClearMentions(userID, roomID string) error {
	u, err := s.userByID(userID)
	if err != nil {
		return err
	}
	if len(u.Mentions[roomID]) == 0 {
		return nil
	}
	u.Mentions[roomID] = []string{}
	if err := store.Upsert(s.opts.UsersCollection, u.ToDoc(), store.ConflictUpdate); err != nil {
		return fmt.Errorf("failed to clear mentions for %s: %w", userID, err)
	}
	return nil
}

// UserByID resolves a user from the local replica.
func (s *Service) UserByID(id string) (models.ChatUser, error) {
	return s.userByID(id)
}

func (s *Service) userByID(id string) (models.ChatUser, error) {
	doc, err := store.Get(s.opts.UsersCollection, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.ChatUser{}, ErrUserNotFound
		}
		return models.ChatUser{}, err
	}
	return models.UserFromDoc(doc), nil
}
