package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"meshchat/pkg/attachments"
	"meshchat/pkg/chat"
	"meshchat/pkg/models"
	"meshchat/pkg/telemetry"
	"meshchat/pkg/utils"
)

type createMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	ch, cancel := s.svc.Messages(room)
	defer cancel()
	// the live query replays its current snapshot immediately
	select {
	case msgs := <-ch:
		if msgs == nil {
			msgs = []models.Message{}
		}
		_ = utils.JSONWrite(w, http.StatusOK, msgs)
	case <-time.After(5 * time.Second):
		utils.JSONError(w, http.StatusServiceUnavailable, "message snapshot timed out")
	}
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	span := telemetry.StartSpan(r.Context(), "api.create_message")
	defer span()
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Text == "" {
		utils.JSONError(w, http.StatusBadRequest, "message text required")
		return
	}
	msg, err := s.svc.CreateMessage(room, req.Text)
	if err != nil {
		if errors.Is(err, chat.ErrNoCurrentUser) {
			utils.JSONError(w, http.StatusUnauthorized, "no session user")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}

// createImageMessage accepts multipart form data: "thumbnail" (required),
// "large" (optional) and "text".
func (s *Server) createImageMessage(w http.ResponseWriter, r *http.Request) {
	span := telemetry.StartSpan(r.Context(), "api.create_image_message")
	defer span()
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	thumb := formFileBytes(r, "thumbnail")
	large := formFileBytes(r, "large")
	text := r.FormValue("text")

	msg, err := s.svc.CreateImageMessage(r.Context(), room, thumb, large, text)
	if err != nil {
		var aerr *attachments.Error
		switch {
		case errors.Is(err, chat.ErrNoCurrentUser):
			utils.JSONError(w, http.StatusUnauthorized, "no session user")
		case errors.As(err, &aerr):
			utils.JSONError(w, http.StatusUnprocessableEntity, aerr.Error())
		default:
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, msg)
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	msg, err := s.svc.MessageByID(room, mux.Vars(r)["mid"])
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.svc.EditMessage(room, mux.Vars(r)["mid"], req.Text); err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteMessage redacts a message; ?kind=image removes the attachments too.
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	mid := mux.Vars(r)["mid"]
	var err error
	if r.URL.Query().Get("kind") == "image" {
		err = s.svc.DeleteImageMessage(room, mid)
	} else {
		err = s.svc.DeleteTextMessage(room, mid)
	}
	if err != nil {
		if errors.Is(err, chat.ErrMessageNotFound) {
			utils.JSONError(w, http.StatusNotFound, "message not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fetchAttachment streams the attachment payload. Progress events are
// consumed server-side; clients needing progress use the websocket surface.
func (s *Server) fetchAttachment(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	events, cancel := s.svc.FetchAttachment(r.Context(), token)
	defer cancel()
	for ev := range events {
		switch ev.Kind {
		case attachments.EventCompleted:
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(ev.Data)
			return
		case attachments.EventDeleted:
			utils.JSONError(w, http.StatusGone, "attachment deleted")
			return
		}
	}
	utils.JSONError(w, http.StatusNotFound, "attachment not found")
}

func formFileBytes(r *http.Request, field string) []byte {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	return b
}
