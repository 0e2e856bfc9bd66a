// Package api exposes the chat session over HTTP: REST handlers for rooms,
// messages and users, plus websocket endpoints streaming the reactive feeds.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"meshchat/pkg/chat"
)

// Server binds the HTTP surface to one chat session. dataDir anchors
// operator artifacts such as shutdown requests.
type Server struct {
	svc     *chat.Service
	dataDir string
}

// NewServer wraps the session for HTTP exposure.
func NewServer(svc *chat.Service, dataDir string) *Server {
	return &Server{svc: svc, dataDir: dataDir}
}

// Router builds the versioned API router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/rooms", s.listRooms).Methods(http.MethodGet)
	v1.HandleFunc("/rooms", s.createRoom).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/archived", s.listArchivedRooms).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{id}", s.getRoom).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{id}", s.deleteRoom).Methods(http.MethodDelete)
	v1.HandleFunc("/rooms/{id}/archive", s.archiveRoom).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{id}/unarchive", s.unarchiveRoom).Methods(http.MethodPost)

	v1.HandleFunc("/rooms/{id}/messages", s.listMessages).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{id}/messages", s.createMessage).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{id}/images", s.createImageMessage).Methods(http.MethodPost)
	v1.HandleFunc("/rooms/{id}/messages/{mid}", s.getMessage).Methods(http.MethodGet)
	v1.HandleFunc("/rooms/{id}/messages/{mid}", s.editMessage).Methods(http.MethodPatch)
	v1.HandleFunc("/rooms/{id}/messages/{mid}", s.deleteMessage).Methods(http.MethodDelete)

	v1.HandleFunc("/attachments/{token}", s.fetchAttachment).Methods(http.MethodGet)

	v1.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)
	v1.HandleFunc("/users/me", s.currentUser).Methods(http.MethodGet)
	v1.HandleFunc("/users/me", s.setCurrentUser).Methods(http.MethodPut)
	v1.HandleFunc("/users/{id}", s.updateUser).Methods(http.MethodPatch)
	v1.HandleFunc("/users/{id}/subscriptions/{roomId}", s.toggleSubscription).Methods(http.MethodPost)
	v1.HandleFunc("/users/{id}/mentions/{roomId}", s.clearMentions).Methods(http.MethodDelete)
	v1.HandleFunc("/logout", s.logout).Methods(http.MethodPost)

	v1.HandleFunc("/ws/rooms", s.wsRooms).Methods(http.MethodGet)
	v1.HandleFunc("/ws/users", s.wsUsers).Methods(http.MethodGet)
	v1.HandleFunc("/ws/rooms/{id}/messages", s.wsMessages).Methods(http.MethodGet)

	v1.HandleFunc("/admin/retention/run", s.adminRetentionRun).Methods(http.MethodPost)
	v1.HandleFunc("/admin/shutdown", s.adminShutdown).Methods(http.MethodPost)

	return r
}
