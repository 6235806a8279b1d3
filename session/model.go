package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Phase is the coarse lifecycle state of a session.
type Phase uint8

const (
	// PhaseLoading is the initial phase, before the persisted session is restored.
	PhaseLoading Phase = iota
	// PhaseAuthenticated means a user and an access credential are held.
	PhaseAuthenticated
	// PhaseAnonymous means no usable session exists.
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// UserID identifies a user. The remote service has served both numeric and
// string identifiers, so both JSON forms decode into a UserID.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = UserID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("user id must be a string or a number")
	}
	*id = UserID(n.String())
	return nil
}

// User is the identity record held by an authenticated session.
type User struct {
	ID        UserID `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	FullName  string `json:"fullName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	IsActive  bool   `json:"isActive,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// DisplayName returns the best available human-readable name.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Email
}

// Credentials is the token pair issued by the remote service.
type Credentials struct {
	Access  string
	Refresh string
}

// Snapshot is one published state of the session. Snapshots are values; the
// User pointer must be treated as read-only.
type Snapshot struct {
	Phase       Phase
	User        *User
	Credentials Credentials
	// Durable is false when the session could not be fully persisted this run.
	Durable bool
	// Version increases by one with every published transition.
	Version uint64
}

// Authenticated reports whether the snapshot holds a usable session.
func (s Snapshot) Authenticated() bool {
	return s.Phase == PhaseAuthenticated && s.User != nil && s.Credentials.Access != ""
}
