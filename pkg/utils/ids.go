package utils

import "github.com/google/uuid"

// GenRoomID returns a new random room identifier.
func GenRoomID() string { return uuid.NewString() }

// GenMessageID returns a new random message identifier.
func GenMessageID() string { return uuid.NewString() }

// GenUserID returns a new random user identifier.
func GenUserID() string { return uuid.NewString() }

// GenAttachmentToken returns a new random attachment token.
func GenAttachmentToken() string { return uuid.NewString() }
