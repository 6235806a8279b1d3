package session

import (
	"encoding/json"
	"fmt"
)

// EncodeUser serializes u for the user-record slot.
func EncodeUser(u User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("encode user record: %w", err)
	}
	return string(data), nil
}

// DecodeUser parses a user-record slot. A record without an id is corrupt.
func DecodeUser(raw string) (User, error) {
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if u.ID == "" {
		return User{}, fmt.Errorf("%w: user record has no id", ErrCorruptRecord)
	}
	return u, nil
}
