package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meshchat/pkg/attachments"
	"meshchat/pkg/models"
)

func TestCreateMessageRequiresCurrentUser(t *testing.T) {
	s := newTestService(t)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)

	_, err = s.CreateMessage(room, "hello")
	require.ErrorIs(t, err, ErrNoCurrentUser)

	_, err = s.SetCurrentUser("Alice")
	require.NoError(t, err)
	msg, err := s.CreateMessage(room, "hello")
	require.NoError(t, err)
	require.True(t, msg.Converted())
	require.Equal(t, "hello", msg.Text)
	require.Equal(t, "hello", msg.Msg)
	require.Equal(t, "Alice", msg.AuthorCs)
	require.Equal(t, msg.AuthorID, msg.LegacyAuthorID)
}

func TestEditMessage(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)
	msg, err := s.CreateMessage(room, "first draft")
	require.NoError(t, err)

	require.NoError(t, s.EditMessage(room, msg.ID, "final"))
	got, err := s.MessageByID(room, msg.ID)
	require.NoError(t, err)
	require.Equal(t, "final", got.Text)

	// editing to whitespace redacts instead of leaving a blank message
	require.NoError(t, s.EditMessage(room, msg.ID, "   "))
	got, err = s.MessageByID(room, msg.ID)
	require.NoError(t, err)
	require.Equal(t, models.DeletedTextMessage, got.Text)
	require.Equal(t, models.DeletedTextMessage, got.ArchivedMessage)
}

func TestDeleteTextMessage(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)
	msg, err := s.CreateMessage(room, "oops")
	require.NoError(t, err)

	require.NoError(t, s.DeleteTextMessage(room, msg.ID))
	got, err := s.MessageByID(room, msg.ID)
	require.NoError(t, err)
	require.Equal(t, models.DeletedTextMessage, got.Text)

	require.ErrorIs(t, s.DeleteTextMessage(room, "missing"), ErrMessageNotFound)
}

func TestCreateImageMessageRequiresThumbnail(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)

	_, err = s.CreateImageMessage(context.Background(), room, nil, nil, "")
	var aerr *attachments.Error
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, attachments.KindThumbnailCreate, aerr.Kind)
}

func TestCreateImageMessageThumbnailOnly(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)

	// large-image transfer is off by default, so only the thumbnail lands
	msg, err := s.CreateImageMessage(context.Background(), room, []byte("thumb"), []byte("large"), "pic")
	require.NoError(t, err)
	require.NotNil(t, msg.ThumbnailImageToken)
	require.Nil(t, msg.LargeImageToken)
	require.True(t, msg.IsImageMessage())

	got, err := s.MessageByID(room, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ThumbnailImageToken)
	require.Equal(t, msg.ThumbnailImageToken.Token, got.ThumbnailImageToken.Token)
}

func TestCreateImageMessageWithLargeLeg(t *testing.T) {
	s := newTestService(t)
	s.opts.AcceptLargeImages = true
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)

	msg, err := s.CreateImageMessage(context.Background(), room, []byte("thumb"), []byte("large"), "pic")
	require.NoError(t, err)
	require.NotNil(t, msg.ThumbnailImageToken)
	require.NotNil(t, msg.LargeImageToken)

	got, err := s.MessageByID(room, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LargeImageToken)
}

func TestDeleteImageMessage(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)
	msg, err := s.CreateImageMessage(context.Background(), room, []byte("thumb"), nil, "pic")
	require.NoError(t, err)
	token := msg.ThumbnailImageToken.Token

	require.NoError(t, s.DeleteImageMessage(room, msg.ID))

	got, err := s.MessageByID(room, msg.ID)
	require.NoError(t, err)
	require.Nil(t, got.ThumbnailImageToken)
	require.Nil(t, got.LargeImageToken)
	require.Equal(t, models.DeletedImageMessage, got.Text)
	require.Equal(t, models.DeletedImageMessage, got.ArchivedMessage)

	// the payload itself is gone too
	events, cancel := s.FetchAttachment(context.Background(), token)
	defer cancel()
	select {
	case ev := <-events:
		require.Equal(t, attachments.EventDeleted, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch event for deleted attachment")
	}
}

func TestFetchAttachmentRoundTrip(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)
	msg, err := s.CreateImageMessage(context.Background(), room, []byte("thumb-bytes"), nil, "")
	require.NoError(t, err)

	events, cancel := s.FetchAttachment(context.Background(), msg.ThumbnailImageToken.Token)
	defer cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed before completion")
			if ev.Kind == attachments.EventCompleted {
				require.Equal(t, []byte("thumb-bytes"), ev.Data)
				require.Equal(t, "Alice", ev.Metadata["username"])
				return
			}
			require.Equal(t, attachments.EventProgress, ev.Kind)
		case <-deadline:
			t.Fatal("attachment fetch did not complete")
		}
	}
}

func TestMessagesCancelIsIdempotent(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)

	ch, cancel := s.Messages(room)
	cancel()
	// a second cancel must be a no-op, even concurrently with the first
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed channel never closed after cancel")
		}
	}
}

func TestMessagesFeedDeliversCreated(t *testing.T) {
	s := newTestService(t)
	_, err := s.SetCurrentUser("Alice")
	require.NoError(t, err)
	room, err := s.RoomByID(models.DefaultPublicRoomID)
	require.NoError(t, err)

	ch, cancel := s.Messages(room)
	defer cancel()

	msg, err := s.CreateMessage(room, "hello")
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-ch:
			for _, m := range batch {
				if m.ID == msg.ID {
					require.Equal(t, "hello", m.Text)
					return
				}
			}
		case <-deadline:
			t.Fatal("message never appeared on the feed")
		}
	}
}
