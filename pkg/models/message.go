package models

import (
	"time"
)

// AttachmentToken is an opaque reference to a stored attachment.
type AttachmentToken struct {
	Token    string            `json:"token"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func attachmentTokenFromDoc(v any) *AttachmentToken {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	tok, ok := m["token"].(string)
	if !ok || tok == "" {
		return nil
	}
	at := &AttachmentToken{Token: tok}
	if meta, ok := m["metadata"].(map[string]any); ok {
		at.Metadata = make(map[string]string, len(meta))
		for k, mv := range meta {
			if s, ok := mv.(string); ok {
				at.Metadata[k] = s
			}
		}
	}
	return at
}

func (a *AttachmentToken) toDoc() any {
	if a == nil {
		return nil
	}
	d := Doc{"token": a.Token}
	if len(a.Metadata) > 0 {
		meta := make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			meta[k] = v
		}
		d["metadata"] = meta
	}
	return d
}

// Message is a chat message. Records may arrive in the legacy wire schema;
// the canonical fields are authoritative once HasBeenConverted is true, and
// the legacy fields are retained for back-compat reads only.
type Message struct {
	ID                  string           `json:"id"`
	RoomID              string           `json:"roomId"`
	Text                string           `json:"text"`
	AuthorID            string           `json:"userId"`
	CreatedOn           time.Time        `json:"createdOn"`
	LargeImageToken     *AttachmentToken `json:"largeImageToken,omitempty"`
	ThumbnailImageToken *AttachmentToken `json:"thumbnailImageToken,omitempty"`
	ArchivedMessage     string           `json:"archivedMessage,omitempty"`
	IsArchived          bool             `json:"isArchived,omitempty"`

	// HasBeenConverted is tri-state: nil or false means the record is still
	// in the legacy schema and pending normalization.
	HasBeenConverted *bool `json:"hasBeenConverted,omitempty"`

	// Legacy schema fields consulted during normalization.
	AuthorCs       string    `json:"authorCs,omitempty"`
	LegacyAuthorID string    `json:"authorId,omitempty"`
	Msg            string    `json:"msg,omitempty"`
	D              string    `json:"d,omitempty"`
	E              string    `json:"e,omitempty"`
	TimeMs         time.Time `json:"timeMs,omitempty"`

	// Extra carries legacy keys this layer does not interpret so conversion
	// never drops them.
	Extra Doc `json:"-"`
}

var messageKnownKeys = map[string]struct{}{
	DBIDKey: {}, RoomIDKey: {}, TextKey: {}, UserIDKey: {}, CreatedOnKey: {},
	LargeImageTokenKey: {}, ThumbnailImageTokenKey: {}, ArchivedMessageKey: {},
	IsArchivedKey: {}, HasBeenConvertedKey: {}, AuthorCsKey: {}, AuthorIDKey: {},
	MsgKey: {}, "d": {}, "e": {}, "b": {}, TimeMsKey: {},
}

// MessageFromDoc decodes a message document, legacy or canonical.
func MessageFromDoc(d Doc) Message {
	m := Message{
		ID:                  docString(d, DBIDKey),
		RoomID:              docString(d, RoomIDKey),
		Text:                docString(d, TextKey),
		AuthorID:            docString(d, UserIDKey),
		LargeImageToken:     attachmentTokenFromDoc(d[LargeImageTokenKey]),
		ThumbnailImageToken: attachmentTokenFromDoc(d[ThumbnailImageTokenKey]),
		ArchivedMessage:     docString(d, ArchivedMessageKey),
		IsArchived:          docBool(d, IsArchivedKey),
		AuthorCs:            docString(d, AuthorCsKey),
		LegacyAuthorID:      docString(d, AuthorIDKey),
		Msg:                 docString(d, MsgKey),
		D:                   docString(d, "d"),
		E:                   docString(d, "e"),
	}
	if t, ok := docTimeISO(d, CreatedOnKey); ok {
		m.CreatedOn = t
	}
	// The newer legacy revision moved the millisecond timestamp to "b".
	if t, ok := docTimeMs(d, TimeMsKey); ok {
		m.TimeMs = t
	} else if t, ok := docTimeMs(d, "b"); ok {
		m.TimeMs = t
	}
	if v, ok := d[HasBeenConvertedKey].(bool); ok {
		m.HasBeenConverted = &v
	}
	for k, v := range d {
		if _, known := messageKnownKeys[k]; known {
			continue
		}
		if m.Extra == nil {
			m.Extra = Doc{}
		}
		m.Extra[k] = v
	}
	return m
}

// ToDoc encodes the message for the store boundary. Unrecognized legacy keys
// carried in Extra are re-emitted; interpreted keys always win.
func (m Message) ToDoc() Doc {
	d := Doc{}
	for k, v := range m.Extra {
		d[k] = v
	}
	d[DBIDKey] = m.ID
	d[RoomIDKey] = m.RoomID
	d[TextKey] = m.Text
	d[UserIDKey] = m.AuthorID
	d[CreatedOnKey] = isoString(m.CreatedOn)
	d[IsArchivedKey] = m.IsArchived
	if m.LargeImageToken != nil {
		d[LargeImageTokenKey] = m.LargeImageToken.toDoc()
	}
	if m.ThumbnailImageToken != nil {
		d[ThumbnailImageTokenKey] = m.ThumbnailImageToken.toDoc()
	}
	if m.ArchivedMessage != "" {
		d[ArchivedMessageKey] = m.ArchivedMessage
	}
	if m.HasBeenConverted != nil {
		d[HasBeenConvertedKey] = *m.HasBeenConverted
	}
	if m.AuthorCs != "" {
		d[AuthorCsKey] = m.AuthorCs
	}
	if m.LegacyAuthorID != "" {
		d[AuthorIDKey] = m.LegacyAuthorID
	}
	if m.Msg != "" {
		d[MsgKey] = m.Msg
	}
	if m.D != "" {
		d["d"] = m.D
	}
	if m.E != "" {
		d["e"] = m.E
	}
	if !m.TimeMs.IsZero() {
		d[TimeMsKey] = m.TimeMs.UnixMilli()
	}
	return d
}

// IsImageMessage reports whether the message carries an attachment.
func (m Message) IsImageMessage() bool {
	return m.ThumbnailImageToken != nil || m.LargeImageToken != nil
}

// Converted reports whether the record is already in the canonical schema.
func (m Message) Converted() bool {
	return m.HasBeenConverted != nil && *m.HasBeenConverted
}

// NewMessage builds a canonical message for a fresh send, mirroring the
// author into the legacy fields so older readers still resolve it.
func NewMessage(id, roomID, text, userID, userName string, createdOn time.Time) Message {
	converted := true
	return Message{
		ID:               id,
		RoomID:           roomID,
		Text:             text,
		AuthorID:         userID,
		CreatedOn:        createdOn,
		HasBeenConverted: &converted,
		AuthorCs:         userName,
		LegacyAuthorID:   userID,
		Msg:              text,
		D:                userID,
		E:                userName,
		TimeMs:           createdOn,
	}
}
