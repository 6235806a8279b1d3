package authtest

import (
	"time"

	"github.com/MrEthical07/authsession/session"
)

// SeedUser registers an account directly.
func (s *Server) SeedUser(email, password, firstName, lastName string) (session.User, error) {
	return s.addUser(email, password, firstName, lastName)
}

// ExpireAccessTokens invalidates every access credential issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// SetAccessTTL changes the lifetime of access credentials issued from now on.
// A non-positive value issues credentials that are already expired.
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// RejectRefresh makes the refresh endpoint answer 401.
func (s *Server) RejectRefresh(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRefresh = reject
}

// AlwaysUnauthorized makes every bearer-protected endpoint answer 401.
func (s *Server) AlwaysUnauthorized(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alwaysUnauthorized = on
}

// SetRefreshDelay delays refresh responses, widening concurrency windows.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// FailNext makes the next request to path answer status.
func (s *Server) FailNext(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[path] = status
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// ResetCalls zeroes all call counters.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.calls)
}

// ActiveRefreshTokens returns how many refresh credentials are still valid.
func (s *Server) ActiveRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

// ResetToken returns the last password reset token issued for email.
func (s *Server) ResetToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.resetOut[normalizeEmail(email)]
	return token, ok
}
