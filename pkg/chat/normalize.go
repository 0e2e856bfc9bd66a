package chat

import (
	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
	"meshchat/pkg/telemetry"
)

// normalize rewrites a legacy-schema message into the canonical schema and
// persists the rewrite, so peers still on the old schema keep interoperating.
// Converted records pass through untouched, which makes the whole pass
// idempotent: normalize(normalize(m)) == normalize(m).
//
// The legacy record may also imply a user this replica has never seen; a
// derived user document is upserted with the ignore policy so an existing
// profile is never overwritten by a guess.
func (s *Service) normalize(collection string, m models.Message) models.Message {
	if m.Converted() {
		return m
	}

	if m.Msg != "" {
		m.Text = m.Msg
	}
	if m.AuthorID == "" {
		if m.LegacyAuthorID != "" {
			m.AuthorID = m.LegacyAuthorID
		} else {
			m.AuthorID = m.D
		}
	}
	if m.CreatedOn.IsZero() && !m.TimeMs.IsZero() {
		m.CreatedOn = m.TimeMs
	}
	converted := true
	m.HasBeenConverted = &converted

	s.upsertDerivedUser(m)

	if err := store.Upsert(collection, m.ToDoc(), store.ConflictUpdate); err != nil {
		logger.Error("normalize_persist_failed", "message", m.ID, "error", err)
		return m
	}
	telemetry.MessagesNormalized.Inc()
	logger.Debug("message_normalized", "message", m.ID, "author", m.AuthorID)
	return m
}

// upsertDerivedUser registers the legacy author as a chat user if unknown.
func (s *Service) upsertDerivedUser(m models.Message) {
	id := m.LegacyAuthorID
	name := m.AuthorCs
	if id == "" {
		id = m.D
		name = m.E
	}
	if id == "" {
		return
	}
	if name == "" {
		name = id
	}
	u := models.ChatUser{ID: id, Name: name}
	if err := store.Upsert(s.opts.UsersCollection, u.ToDoc(), store.ConflictIgnore); err != nil {
		logger.Error("derived_user_upsert_failed", "user", id, "error", err)
	}
}
