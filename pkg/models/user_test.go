package models

import "testing"

func TestUserFromDocNameFallbacks(t *testing.T) {
	// canonical name wins over the legacy pair
	u := UserFromDoc(Doc{DBIDKey: "u1", NameKey: "Ada L", FirstNameKey: "Grace", LastNameKey: "Hopper"})
	if u.Name != "Ada L" {
		t.Fatalf("canonical name lost: %q", u.Name)
	}

	// first-only legacy docs must not keep a trailing space
	u = UserFromDoc(Doc{DBIDKey: "u2", FirstNameKey: "Ada"})
	if u.Name != "Ada" {
		t.Fatalf("first-only name decoded as %q", u.Name)
	}

	u = UserFromDoc(Doc{DBIDKey: "u3", LastNameKey: "Lovelace"})
	if u.Name != "Lovelace" {
		t.Fatalf("last-only name decoded as %q", u.Name)
	}

	// no name fields at all falls back to the placeholder, never " "
	u = UserFromDoc(Doc{DBIDKey: "u4"})
	if u.Name != NoNameUser {
		t.Fatalf("missing name decoded as %q, want %q", u.Name, NoNameUser)
	}
}
