package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"meshchat/pkg/chat"
	"meshchat/pkg/models"
	"meshchat/pkg/telemetry"
	"meshchat/pkg/utils"
)

type createRoomRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	IsPrivate   bool   `json:"isPrivate"`
	IsGenerated bool   `json:"isGenerated"`
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, _ := s.svc.VisibleRooms().Latest()
	if rooms == nil {
		rooms = []models.Room{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, rooms)
}

func (s *Server) listArchivedRooms(w http.ResponseWriter, r *http.Request) {
	rooms, _ := s.svc.ArchivedRooms().Latest()
	if rooms == nil {
		rooms = []models.Room{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, rooms)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	span := telemetry.StartSpan(r.Context(), "api.create_room")
	defer span()
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		utils.JSONError(w, http.StatusBadRequest, "room name required")
		return
	}
	room, err := s.svc.CreateRoom(req.ID, req.Name, req.IsPrivate, req.IsGenerated)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, room)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, room)
}

func (s *Server) archiveRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	s.svc.ArchiveRoom(room)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unarchiveRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	// the room document may be off-mesh; unarchive works from the snapshot
	room, err := s.svc.RoomByID(id)
	if err != nil {
		if !errors.Is(err, chat.ErrRoomNotFound) {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		room = models.Room{ID: id}
	}
	s.svc.UnarchiveRoom(room)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.resolveRoom(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteRoom(room); err != nil {
		if errors.Is(err, chat.ErrDeleteNotPermitted) {
			utils.JSONError(w, http.StatusForbidden, err.Error())
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolveRoom(w http.ResponseWriter, r *http.Request) (models.Room, bool) {
	id := mux.Vars(r)["id"]
	room, err := s.svc.RoomByID(id)
	if err != nil {
		if errors.Is(err, chat.ErrRoomNotFound) {
			utils.JSONError(w, http.StatusNotFound, "room not found")
		} else {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return models.Room{}, false
	}
	return room, true
}
