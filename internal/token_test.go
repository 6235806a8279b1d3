package internal

import (
	"errors"
	"testing"
)

func TestOpaqueTokenRoundTrip(t *testing.T) {
	token, rec, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	parsed, err := ParseOpaqueToken(token)
	if err != nil {
		t.Fatalf("ParseOpaqueToken: %v", err)
	}
	if !parsed.Matches(rec) {
		t.Fatal("parsed token does not match its record")
	}

	other, otherRec, _ := NewOpaqueToken()
	if other == token || otherRec.Matches(rec) {
		t.Fatal("expected distinct tokens")
	}
}

func TestOpaqueTokenTamperedSecret(t *testing.T) {
	token, rec, _ := NewOpaqueToken()
	b := []byte(token)
	last := len(b) - 1
	if b[last] == 'A' {
		b[last] = 'B'
	} else {
		b[last] = 'A'
	}
	parsed, err := ParseOpaqueToken(string(b))
	if err != nil {
		return
	}
	if parsed.Matches(rec) {
		t.Fatal("tampered token must not match")
	}
}

// FuzzParseOpaqueToken feeds arbitrary strings to the decoder; it must never
// panic and must reject anything of the wrong size.
func FuzzParseOpaqueToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if token, _, err := NewOpaqueToken(); err == nil {
		f.Add(token)
	}

	f.Fuzz(func(t *testing.T, input string) {
		_, err := ParseOpaqueToken(input)
		if err != nil && !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("unexpected error type: %v", err)
		}
	})
}
