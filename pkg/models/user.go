package models

import (
	"strings"
	"time"
)

// ChatUser is a chat participant. A nil value in Subscriptions means the
// user explicitly unsubscribed from that room; an absent key means the user
// never subscribed. The distinction is deliberate and must survive updates.
type ChatUser struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Subscriptions map[string]*time.Time `json:"subscriptions"`
	Mentions      map[string][]string   `json:"mentions"`
}

// UserFromDoc decodes a user document, joining the legacy first/last name
// pair when the canonical name field is absent.
func UserFromDoc(d Doc) ChatUser {
	u := ChatUser{
		ID:            docString(d, DBIDKey),
		Subscriptions: map[string]*time.Time{},
		Mentions:      map[string][]string{},
	}
	if name := docString(d, NameKey); name != "" {
		u.Name = name
	} else {
		first := docString(d, FirstNameKey)
		last := docString(d, LastNameKey)
		u.Name = strings.TrimSpace(first + " " + last)
	}
	if u.Name == "" {
		u.Name = NoNameUser
	}
	if subs, ok := d[SubscriptionsKey].(map[string]any); ok {
		for roomID, v := range subs {
			if s, ok := v.(string); ok && s != "" {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					tt := t
					u.Subscriptions[roomID] = &tt
					continue
				}
			}
			u.Subscriptions[roomID] = nil
		}
	}
	if ment, ok := d[MentionsKey].(map[string]any); ok {
		for roomID, v := range ment {
			ids, ok := v.([]any)
			if !ok {
				continue
			}
			out := make([]string, 0, len(ids))
			for _, id := range ids {
				if s, ok := id.(string); ok {
					out = append(out, s)
				}
			}
			u.Mentions[roomID] = out
		}
	}
	return u
}

// ToDoc encodes the user for the store boundary. Explicit-null subscription
// entries are written as null, never dropped.
func (u ChatUser) ToDoc() Doc {
	subs := make(map[string]any, len(u.Subscriptions))
	for roomID, t := range u.Subscriptions {
		if t == nil {
			subs[roomID] = nil
		} else {
			subs[roomID] = isoString(*t)
		}
	}
	ment := make(map[string]any, len(u.Mentions))
	for roomID, ids := range u.Mentions {
		out := make([]any, 0, len(ids))
		for _, id := range ids {
			out = append(out, id)
		}
		ment[roomID] = out
	}
	return Doc{
		DBIDKey:          u.ID,
		NameKey:          u.Name,
		SubscriptionsKey: subs,
		MentionsKey:      ment,
	}
}

// UnknownUser is the placeholder identity for unresolvable authors.
func UnknownUser() ChatUser {
	return ChatUser{
		ID:            UnknownUserID,
		Name:          NoNameUser,
		Subscriptions: map[string]*time.Time{},
		Mentions:      map[string][]string{},
	}
}
