package guard

import "strings"

// Location is a coarse navigation location.
type Location uint8

const (
	// LocationUnknown is any location outside the known groups.
	LocationUnknown Location = iota
	// LocationEntry is the root entry point.
	LocationEntry
	// LocationLogin is the sign-in screen.
	LocationLogin
	// LocationRegister is the sign-up screen.
	LocationRegister
	// LocationPasswordRecovery covers the forgot/reset password screens.
	LocationPasswordRecovery
	// LocationProtected is the authenticated area ("home").
	LocationProtected
)

func (l Location) String() string {
	switch l {
	case LocationEntry:
		return "entry"
	case LocationLogin:
		return "login"
	case LocationRegister:
		return "register"
	case LocationPasswordRecovery:
		return "password-recovery"
	case LocationProtected:
		return "home"
	default:
		return "unknown"
	}
}

// Path returns the canonical route path for l.
func (l Location) Path() string {
	switch l {
	case LocationEntry:
		return "/"
	case LocationLogin:
		return "/login"
	case LocationRegister:
		return "/register"
	case LocationPasswordRecovery:
		return "/forgot-password"
	case LocationProtected:
		return "/home"
	default:
		return ""
	}
}

// ParseLocation classifies a route path by its first segment.
func ParseLocation(path string) Location {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	segment, _, _ := strings.Cut(path, "/")
	segment, _, _ = strings.Cut(segment, "?")

	switch strings.ToLower(segment) {
	case "":
		return LocationEntry
	case "login":
		return LocationLogin
	case "register":
		return LocationRegister
	case "forgot-password", "reset-password":
		return LocationPasswordRecovery
	case "home":
		return LocationProtected
	default:
		return LocationUnknown
	}
}
