package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"meshchat/pkg/chat"
	"meshchat/pkg/models"
	"meshchat/pkg/utils"
)

type setUserRequest struct {
	Name string `json:"name"`
}

type updateUserRequest struct {
	Name          *string               `json:"name,omitempty"`
	Subscriptions map[string]*time.Time `json:"subscriptions,omitempty"`
	Mentions      map[string][]string   `json:"mentions,omitempty"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, _ := s.svc.AllUsers().Latest()
	if users == nil {
		users = []models.ChatUser{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, users)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.CurrentUser()
	if err != nil {
		if errors.Is(err, chat.ErrNoCurrentUser) || errors.Is(err, chat.ErrUserNotFound) {
			utils.JSONError(w, http.StatusNotFound, "no session user")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, u)
}

func (s *Server) setCurrentUser(w http.ResponseWriter, r *http.Request) {
	var req setUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		utils.JSONError(w, http.StatusBadRequest, "user name required")
		return
	}
	u, err := s.svc.SetCurrentUser(req.Name)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := s.svc.UpdateUser(mux.Vars(r)["id"], req.Name, req.Subscriptions, req.Mentions)
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			utils.JSONError(w, http.StatusNotFound, "user not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, u)
}

func (s *Server) toggleSubscription(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	u, err := s.svc.ToggleRoomSubscription(vars["id"], vars["roomId"])
	if err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			utils.JSONError(w, http.StatusNotFound, "user not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, u)
}

func (s *Server) clearMentions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.svc.ClearMentions(vars["id"], vars["roomId"]); err != nil {
		if errors.Is(err, chat.ErrUserNotFound) {
			utils.JSONError(w, http.StatusNotFound, "user not found")
			return
		}
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.svc.Logout()
	w.WriteHeader(http.StatusNoContent)
}
