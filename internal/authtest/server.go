package authtest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authsession/internal"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/session"
)

const minPasswordLength = 8

// Options configures a Server.
type Options struct {
	// AccessTTL is the lifetime of issued access credentials. Zero means 15 minutes.
	AccessTTL time.Duration
	// SigningKey is the HS256 secret for access credentials. Empty means random.
	SigningKey []byte
	// Issuer is stamped into access credentials.
	Issuer string
}

type account struct {
	user session.User
	hash string
}

type refreshRecord struct {
	userID string
	token  internal.OpaqueToken
}

type resetRecord struct {
	userID  string
	token   internal.OpaqueToken
	expires time.Time
}

// Server is the fake authentication service. It is an http.Handler.
type Server struct {
	signer    *jwt.Signer
	inspector *jwt.Inspector
	mux       *http.ServeMux

	mu        sync.Mutex
	accessTTL time.Duration
	byEmail   map[string]*account
	byID      map[string]*account
	access    map[string]string // jti -> user id of live access credentials
	refresh   map[uuid.UUID]refreshRecord
	resets    map[uuid.UUID]resetRecord
	resetOut  map[string]string // email -> last issued reset token
	calls     map[string]int
	failNext  map[string]int

	rejectRefresh      bool
	alwaysUnauthorized bool
	refreshDelay       time.Duration
}

// New builds a Server.
func New(opts Options) (*Server, error) {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	key := opts.SigningKey
	if len(key) == 0 {
		key = []byte(uuid.NewString() + uuid.NewString())
	}
	if opts.Issuer == "" {
		opts.Issuer = "authtest"
	}
	signer, err := jwt.NewSigner(jwt.SignerConfig{
		AccessTTL:     opts.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    key,
		Issuer:        opts.Issuer,
	})
	if err != nil {
		return nil, err
	}
	inspector, err := jwt.NewInspector(jwt.InspectorConfig{})
	if err != nil {
		return nil, err
	}

	s := &Server{
		signer:    signer,
		inspector: inspector,
		mux:       http.NewServeMux(),
		accessTTL: opts.AccessTTL,
		byEmail:   make(map[string]*account),
		byID:      make(map[string]*account),
		access:    make(map[string]string),
		refresh:   make(map[uuid.UUID]refreshRecord),
		resets:    make(map[uuid.UUID]resetRecord),
		resetOut:  make(map[string]string),
		calls:     make(map[string]int),
		failNext:  make(map[string]int),
	}
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.mux.HandleFunc("POST /auth/forgot-password", s.handleForgotPassword)
	s.mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)
	s.mux.HandleFunc("GET /auth/me", s.handleMe)
	s.mux.HandleFunc("/api/echo", s.handleEcho)
	return s, nil
}

// ServeHTTP counts the call, applies injected failures and routes the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.URL.Path]++
	status, fail := s.failNext[r.URL.Path]
	if fail {
		delete(s.failNext, r.URL.Path)
	}
	s.mu.Unlock()

	if fail {
		writeError(w, status, http.StatusText(status))
		return
	}
	s.mux.ServeHTTP(w, r)
}

type grantResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType"`
	User         *session.User `json:"user,omitempty"`
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	acct := s.byEmail[normalizeEmail(req.Email)]
	s.mu.Unlock()

	if acct == nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	ok, err := verifyPassword(req.Password, acct.hash)
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.writeGrant(w, http.StatusOK, acct.user, true)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if !decode(w, r, &req) {
		return
	}

	fields := map[string]string{}
	if _, err := mail.ParseAddress(req.Email); err != nil || !strings.Contains(req.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if len(req.Password) < minPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	if strings.TrimSpace(req.FirstName) == "" {
		fields["firstName"] = "is required"
	}
	if strings.TrimSpace(req.LastName) == "" {
		fields["lastName"] = "is required"
	}
	if len(fields) == 0 {
		s.mu.Lock()
		_, taken := s.byEmail[normalizeEmail(req.Email)]
		s.mu.Unlock()
		if taken {
			fields["email"] = "is already registered"
		}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "Validation failed", Errors: fields})
		return
	}

	user, err := s.addUser(req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeGrant(w, http.StatusCreated, user, true)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	delay, reject := s.refreshDelay, s.rejectRefresh
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if reject {
		writeError(w, http.StatusUnauthorized, "Refresh token rejected")
		return
	}

	presented, err := internal.ParseOpaqueToken(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.mu.Lock()
	rec, ok := s.refresh[presented.ID]
	if ok && rec.token.Matches(presented) {
		delete(s.refresh, presented.ID)
	} else {
		ok = false
	}
	acct := s.byID[rec.userID]
	s.mu.Unlock()

	if !ok || acct == nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	s.writeGrant(w, http.StatusOK, acct.user, false)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(w, r, &req) {
		return
	}
	if presented, err := internal.ParseOpaqueToken(req.RefreshToken); err == nil {
		s.mu.Lock()
		if rec, ok := s.refresh[presented.ID]; ok && rec.token.Matches(presented) {
			delete(s.refresh, presented.ID)
		}
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	email := normalizeEmail(req.Email)
	s.mu.Lock()
	acct := s.byEmail[email]
	s.mu.Unlock()

	if acct != nil {
		token, rec, err := internal.NewOpaqueToken()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token generation failed")
			return
		}
		s.mu.Lock()
		s.resets[rec.ID] = resetRecord{userID: string(acct.user.ID), token: rec, expires: time.Now().Add(time.Hour)}
		s.resetOut[email] = token
		s.mu.Unlock()
	}
	// Unknown addresses get the same answer.
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decode(w, r, &req) {
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Message: "Validation failed",
			Errors:  map[string]string{"newPassword": "must be at least 8 characters"},
		})
		return
	}

	invalid := errorResponse{Message: "Validation failed", Errors: map[string]string{"token": "is invalid or expired"}}
	presented, err := internal.ParseOpaqueToken(req.Token)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, invalid)
		return
	}
	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash failed")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.resets[presented.ID]
	if !ok || !rec.token.Matches(presented) || time.Now().After(rec.expires) {
		writeJSON(w, http.StatusUnprocessableEntity, invalid)
		return
	}
	delete(s.resets, presented.ID)
	acct := s.byID[rec.userID]
	if acct == nil {
		writeJSON(w, http.StatusUnprocessableEntity, invalid)
		return
	}
	acct.hash = hash
	for id, r := range s.refresh {
		if r.userID == rec.userID {
			delete(s.refresh, id)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, acct.user)
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var body json.RawMessage
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable body")
			return
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			if !json.Valid(raw) {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			body = raw
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": acct.user.ID,
		"method": r.Method,
		"body":   body,
	})
}

// authorize validates the bearer access credential of r.
func (s *Server) authorize(r *http.Request) (*account, bool) {
	s.mu.Lock()
	always := s.alwaysUnauthorized
	s.mu.Unlock()
	if always {
		return nil, false
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, false
	}
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid, live := s.access[claims.ID]
	if !live || uid != claims.UserID() {
		return nil, false
	}
	acct := s.byID[uid]
	return acct, acct != nil
}

func (s *Server) writeGrant(w http.ResponseWriter, status int, user session.User, includeUser bool) {
	access, refresh, err := s.issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	resp := grantResponse{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
	if includeUser {
		u := user
		resp.User = &u
	}
	writeJSON(w, status, resp)
}

func (s *Server) issue(user session.User) (string, string, error) {
	s.mu.Lock()
	ttl := s.accessTTL
	s.mu.Unlock()

	access, err := s.signer.IssueWithTTL(string(user.ID), user.Email, ttl)
	if err != nil {
		return "", "", err
	}
	claims, err := s.inspector.Inspect(access)
	if err != nil {
		return "", "", err
	}
	refresh, rec, err := internal.NewOpaqueToken()
	if err != nil {
		return "", "", err
	}

	s.mu.Lock()
	s.access[claims.ID] = string(user.ID)
	s.refresh[rec.ID] = refreshRecord{userID: string(user.ID), token: rec}
	s.mu.Unlock()
	return access, refresh, nil
}

func (s *Server) addUser(email, password, firstName, lastName string) (session.User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return session.User{}, err
	}
	user := session.User{
		ID:        session.UserID(uuid.NewString()),
		Email:     strings.TrimSpace(email),
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		IsActive:  true,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	user.FullName = strings.TrimSpace(user.FirstName + " " + user.LastName)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(email)
	if _, taken := s.byEmail[key]; taken {
		return session.User{}, errors.New("email is already registered")
	}
	acct := &account{user: user, hash: hash}
	s.byEmail[key] = acct
	s.byID[string(user.ID)] = acct
	return user, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	return token, token != ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
