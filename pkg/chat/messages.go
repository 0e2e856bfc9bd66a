package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"meshchat/pkg/attachments"
	"meshchat/pkg/logger"
	"meshchat/pkg/models"
	"meshchat/pkg/store"
	"meshchat/pkg/telemetry"
	"meshchat/pkg/utils"
)

// Messages streams the room's message list, oldest first, bounded by the
// retention window and normalized on read. The cancel func releases the
// underlying live query.
func (s *Service) Messages(room models.Room) (<-chan []models.Message, func()) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.opts.RetentionDays)
	roomID := room.ID
	collection := room.MessagesID

	obs := store.Observe(collection, func(d models.Doc) bool {
		m := models.MessageFromDoc(d)
		if m.RoomID != roomID {
			return false
		}
		return m.CreatedOn.After(cutoff) || m.TimeMs.After(cutoff)
	}, byCreatedOn)

	out := make(chan []models.Message, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case docs := <-obs.C():
				msgs := make([]models.Message, 0, len(docs))
				for _, d := range docs {
					msgs = append(msgs, s.normalize(collection, models.MessageFromDoc(d)))
				}
				sendLatest(out, msgs)
			}
		}
	}()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			obs.Cancel()
			close(done)
		})
	}
	return out, cancel
}

// MessageByID resolves and normalizes a single message.
func (s *Service) MessageByID(room models.Room, id string) (models.Message, error) {
	doc, err := store.Get(room.MessagesID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, err
	}
	return s.normalize(room.MessagesID, models.MessageFromDoc(doc)), nil
}

// CreateMessage sends a text message to the room as the session user.
func (s *Service) CreateMessage(room models.Room, text string) (models.Message, error) {
	userID := s.local.CurrentUserID()
	if userID == "" {
		return models.Message{}, ErrNoCurrentUser
	}
	room, err := s.RoomByID(room.ID)
	if err != nil {
		return models.Message{}, err
	}
	name := userID
	if u, err := s.userByID(userID); err == nil && u.Name != "" {
		name = u.Name
	}
	msg := models.NewMessage(utils.GenMessageID(), room.ID, text, userID, name, time.Now().UTC())
	if err := store.Upsert(room.MessagesID, msg.ToDoc(), store.ConflictUpdate); err != nil {
		return models.Message{}, fmt.Errorf("failed to create message: %w", err)
	}
	telemetry.MessagesCreated.Inc()
	logger.Info("message_created", "room", room.ID, "message", msg.ID)
	return msg, nil
}

// CreateImageMessage sends an image message: the thumbnail is stored and the
// message inserted first, then the full-resolution payload is attached when
// large-image transfer is enabled. Attachment failures surface to the caller
// because they block the send.
func (s *Service) CreateImageMessage(ctx context.Context, room models.Room, thumbnail, large []byte, text string) (models.Message, error) {
	userID := s.local.CurrentUserID()
	if userID == "" {
		return models.Message{}, ErrNoCurrentUser
	}
	room, err := s.RoomByID(room.ID)
	if err != nil {
		return models.Message{}, err
	}
	if len(thumbnail) == 0 {
		return models.Message{}, &attachments.Error{Kind: attachments.KindThumbnailCreate, Err: errors.New("missing thumbnail payload")}
	}

	ctx, cancel := s.attachContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	name := userID
	if u, err := s.userByID(userID); err == nil && u.Name != "" {
		name = u.Name
	}

	thumbTok, err := s.attachments.Store(ctx, bytes.NewReader(thumbnail), attachmentMetadata(userID, name, "thumbnail", now, len(thumbnail)))
	if err != nil {
		return models.Message{}, err
	}
	msg := models.NewMessage(utils.GenMessageID(), room.ID, text, userID, name, now)
	msg.ThumbnailImageToken = &thumbTok
	if err := store.Upsert(room.MessagesID, msg.ToDoc(), store.ConflictUpdate); err != nil {
		return models.Message{}, fmt.Errorf("failed to create image message: %w", err)
	}
	telemetry.MessagesCreated.Inc()

	if len(large) > 0 && s.opts.AcceptLargeImages {
		largeTok, err := s.attachments.Store(ctx, bytes.NewReader(large), attachmentMetadata(userID, name, "largeImage", now, len(large)))
		if err != nil {
			// thumbnail leg already landed; report the failed large leg
			return msg, err
		}
		msg.LargeImageToken = &largeTok
		if err := store.Upsert(room.MessagesID, msg.ToDoc(), store.ConflictUpdate); err != nil {
			return msg, fmt.Errorf("failed to attach large image: %w", err)
		}
	}
	logger.Info("image_message_created", "room", room.ID, "message", msg.ID)
	return msg, nil
}

// EditMessage replaces the message text. Editing to empty or whitespace
// redacts the message instead of leaving it blank.
func (s *Service) EditMessage(room models.Room, messageID, text string) error {
	if strings.TrimSpace(text) == "" {
		return s.DeleteTextMessage(room, messageID)
	}
	msg, err := s.MessageByID(room, messageID)
	if err != nil {
		return err
	}
	msg.Text = text
	return store.Upsert(room.MessagesID, msg.ToDoc(), store.ConflictUpdate)
}

// DeleteTextMessage redacts a text message: the text is replaced with the
// tombstone marker. Messages are never hard-deleted individually.
func (s *Service) DeleteTextMessage(room models.Room, messageID string) error {
	msg, err := s.MessageByID(room, messageID)
	if err != nil {
		return err
	}
	msg.Text = models.DeletedTextMessage
	msg.ArchivedMessage = models.DeletedTextMessage
	return store.Upsert(room.MessagesID, msg.ToDoc(), store.ConflictUpdate)
}

// DeleteImageMessage redacts an image message: attachment payloads are
// removed, tokens cleared, and the text replaced with the tombstone marker.
func (s *Service) DeleteImageMessage(room models.Room, messageID string) error {
	msg, err := s.MessageByID(room, messageID)
	if err != nil {
		return err
	}
	if msg.ThumbnailImageToken != nil {
		if err := s.attachments.Delete(msg.ThumbnailImageToken.Token); err != nil {
			logger.Error("thumbnail_delete_failed", "message", messageID, "error", err)
		}
	}
	if msg.LargeImageToken != nil {
		if err := s.attachments.Delete(msg.LargeImageToken.Token); err != nil {
			logger.Error("large_image_delete_failed", "message", messageID, "error", err)
		}
	}
	msg.ThumbnailImageToken = nil
	msg.LargeImageToken = nil
	msg.Text = models.DeletedImageMessage
	msg.ArchivedMessage = models.DeletedImageMessage
	return store.Upsert(room.MessagesID, msg.ToDoc(), store.ConflictUpdate)
}

// FetchAttachment streams an attachment payload with progress, bounded by
// both the caller's context and the session.
func (s *Service) FetchAttachment(ctx context.Context, token string) (<-chan attachments.Event, func()) {
	ctx, cancel := s.attachContext(ctx)
	return s.attachments.Fetch(ctx, token), cancel
}

func attachmentMetadata(userID, userName, kind string, ts time.Time, size int) map[string]string {
	fname := strings.ReplaceAll(userName, " ", "-") +
		"_" + kind +
		"_" + strings.ReplaceAll(ts.Format(time.RFC3339), ":", "-") + ".jpg"
	return map[string]string{
		"filename":   fname,
		"userId":     userID,
		"username":   userName,
		"fileformat": ".jpg",
		"filesize":   fmt.Sprintf("%d", size),
		"timestamp":  ts.Format(time.RFC3339),
	}
}

func byCreatedOn(a, b models.Doc) bool {
	am := models.MessageFromDoc(a)
	bm := models.MessageFromDoc(b)
	at, bt := am.CreatedOn, bm.CreatedOn
	if at.IsZero() {
		at = am.TimeMs
	}
	if bt.IsZero() {
		bt = bm.TimeMs
	}
	return at.Before(bt)
}

// sendLatest delivers latest-wins without blocking the observer loop.
func sendLatest(ch chan []models.Message, msgs []models.Message) {
	select {
	case ch <- msgs:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msgs:
		default:
		}
	}
}
