package models

import (
	"testing"
	"time"
)

func TestMessageFromDocLegacySchema(t *testing.T) {
	d := Doc{
		DBIDKey:     "m1",
		RoomIDKey:   "public",
		MsgKey:      "hello from tak",
		AuthorIDKey: "u9",
		AuthorCsKey: "CALLSIGN-9",
		// epoch milliseconds arrive as float64 after JSON decoding
		TimeMsKey: float64(1700000000000),
		"takUid":  "ANDROID-123",
	}
	m := MessageFromDoc(d)
	if m.Converted() {
		t.Fatalf("legacy doc must not read as converted")
	}
	if m.Msg != "hello from tak" || m.LegacyAuthorID != "u9" || m.AuthorCs != "CALLSIGN-9" {
		t.Fatalf("legacy fields not decoded: %+v", m)
	}
	if m.TimeMs.UnixMilli() != 1700000000000 {
		t.Fatalf("timeMs not decoded: %v", m.TimeMs)
	}
	if m.Extra["takUid"] != "ANDROID-123" {
		t.Fatalf("uninterpreted legacy key dropped")
	}
}

func TestMessageTimeMsFallbackKey(t *testing.T) {
	// the newer legacy revision carries the millisecond timestamp under "b"
	m := MessageFromDoc(Doc{DBIDKey: "m1", "b": float64(1700000000000)})
	if m.TimeMs.UnixMilli() != 1700000000000 {
		t.Fatalf("b fallback not decoded: %v", m.TimeMs)
	}
}

func TestMessageToDocCarriesExtras(t *testing.T) {
	m := MessageFromDoc(Doc{
		DBIDKey:   "m1",
		RoomIDKey: "public",
		MsgKey:    "hi",
		"schver":  float64(2),
	})
	m.Text = "hi"
	d := m.ToDoc()
	if d["schver"] != float64(2) {
		t.Fatalf("extra key lost on re-encode")
	}
	if d[TextKey] != "hi" {
		t.Fatalf("interpreted key lost on re-encode")
	}
}

func TestNewMessageMirrorsLegacyFields(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	m := NewMessage("m1", "public", "hello", "u1", "Alice", now)
	if !m.Converted() {
		t.Fatalf("fresh message must be converted")
	}
	if m.Msg != "hello" || m.LegacyAuthorID != "u1" || m.D != "u1" || m.AuthorCs != "Alice" || m.E != "Alice" {
		t.Fatalf("legacy mirror fields missing: %+v", m)
	}
	if !m.TimeMs.Equal(now) {
		t.Fatalf("legacy timestamp mirror missing")
	}
}

func TestUserToDocKeepsExplicitNullSubscription(t *testing.T) {
	now := time.Now().UTC()
	u := ChatUser{
		ID:   "u1",
		Name: "Alice",
		Subscriptions: map[string]*time.Time{
			"r1": &now,
			"r2": nil, // explicitly unsubscribed, must survive as null
		},
		Mentions: map[string][]string{},
	}
	d := u.ToDoc()
	subs, ok := d[SubscriptionsKey].(map[string]any)
	if !ok {
		t.Fatalf("subscriptions not encoded")
	}
	if _, present := subs["r2"]; !present {
		t.Fatalf("explicit-null subscription entry dropped")
	}
	if subs["r2"] != nil {
		t.Fatalf("explicit-null subscription not null: %v", subs["r2"])
	}

	back := UserFromDoc(d)
	v, present := back.Subscriptions["r2"]
	if !present || v != nil {
		t.Fatalf("explicit-null subscription lost on decode")
	}
	if ts := back.Subscriptions["r1"]; ts == nil {
		t.Fatalf("timestamped subscription lost on decode")
	}
}
