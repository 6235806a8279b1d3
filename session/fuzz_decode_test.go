package session

import (
	"encoding/json"
	"testing"
)

// FuzzDecodeUser exercises the user-record decoder with arbitrary slot
// contents. Decoding must never panic, and any record it accepts must have an
// id and encode again.
func FuzzDecodeUser(f *testing.F) {
	valid, err := EncodeUser(User{ID: "42", Email: "ada@example.com", FirstName: "Ada"})
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add(`{"id":42,"email":"n@example.com"}`)
	f.Add(`{"id":null}`)
	f.Add(`{"id":{"nested":true}}`)
	f.Add(`{"id":1e400}`)
	f.Add(valid[:len(valid)/2])
	f.Add("")
	f.Add("null")

	f.Fuzz(func(t *testing.T, raw string) {
		u, err := DecodeUser(raw)
		if err != nil {
			return
		}
		if u.ID == "" {
			t.Fatal("accepted a record without an id")
		}
		encoded, err := EncodeUser(u)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		var again User
		if err := json.Unmarshal([]byte(encoded), &again); err != nil || again.ID != u.ID {
			t.Fatalf("round trip changed id %q -> %q (%v)", u.ID, again.ID, err)
		}
	})
}
