package models

import "time"

// Room is a chat room. Public rooms live in the shared rooms collection and
// share the public messages namespace; private rooms carry their own
// collection and messages namespaces.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MessagesID   string    `json:"messagesId"`
	CollectionID string    `json:"collectionId,omitempty"`
	CreatedBy    string    `json:"createdBy"`
	CreatedOn    time.Time `json:"createdOn"`
	IsGenerated  bool      `json:"isGenerated,omitempty"`
	IsPrivate    bool      `json:"isPrivate,omitempty"`
}

// RoomFromDoc decodes a room document.
func RoomFromDoc(d Doc) Room {
	r := Room{
		ID:           docString(d, DBIDKey),
		Name:         docString(d, NameKey),
		MessagesID:   docString(d, MessagesIDKey),
		CollectionID: docString(d, CollectionIDKey),
		CreatedBy:    docString(d, CreatedByKey),
		IsGenerated:  docBool(d, IsGeneratedKey),
		IsPrivate:    docBool(d, IsPrivateKey),
	}
	if t, ok := docTimeISO(d, CreatedOnKey); ok {
		r.CreatedOn = t
	}
	return r
}

// ToDoc encodes the room for the store boundary.
func (r Room) ToDoc() Doc {
	d := Doc{
		DBIDKey:        r.ID,
		NameKey:        r.Name,
		MessagesIDKey:  r.MessagesID,
		CreatedByKey:   r.CreatedBy,
		CreatedOnKey:   isoString(r.CreatedOn),
		IsGeneratedKey: r.IsGenerated,
		IsPrivateKey:   r.IsPrivate,
	}
	if r.CollectionID != "" {
		d[CollectionIDKey] = r.CollectionID
	}
	return d
}

// MetadataCollection is the collection holding the room document itself.
func (r Room) MetadataCollection() string {
	if r.IsPrivate {
		return r.CollectionID
	}
	return PublicRoomsCollectionID
}
