package chat

import "errors"

var (
	// ErrNoCurrentUser is returned by operations that need a logged-in user.
	ErrNoCurrentUser = errors.New("chat: no current user")

	// ErrRoomNotFound is returned when a room is absent from the local
	// replica. Callers treat it as non-fatal; off-mesh rooms resurface once
	// replication catches up.
	ErrRoomNotFound = errors.New("chat: room not found")

	// ErrMessageNotFound is returned when a message id does not resolve.
	ErrMessageNotFound = errors.New("chat: message not found")

	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("chat: user not found")

	// ErrDeleteNotPermitted is returned when deletion is requested for a
	// public or generated room. Those can only be archived.
	ErrDeleteNotPermitted = errors.New("chat: only private, non-generated rooms can be deleted")
)
