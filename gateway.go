package authsession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/authsession/internal/flows"
	"github.com/MrEthical07/authsession/session"
)

// maxErrorBody bounds how much of an error response is decoded.
const maxErrorBody = 64 << 10

// gateway performs the unauthenticated calls to the remote service. It
// never touches the session; the client decides what a result means.
type gateway struct {
	http      *http.Client
	baseURL   string
	paths     EndpointPaths
	userAgent string
}

type grantPayload struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	TokenType    string        `json:"tokenType"`
	User         *session.User `json:"user"`
}

type errorPayload struct {
	Message string            `json:"message"`
	Detail  string            `json:"detail"`
	Errors  map[string]string `json:"errors"`
}

func (g *gateway) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(g.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (g *gateway) login(ctx context.Context, email, password string) (flows.Grant, error) {
	body := map[string]string{"email": email, "password": password}
	var out grantPayload
	if err := g.call(ctx, http.MethodPost, g.paths.Login, body, &out); err != nil {
		return flows.Grant{}, err
	}
	return out.grant()
}

func (g *gateway) register(ctx context.Context, req RegisterRequest) (flows.Grant, error) {
	var out grantPayload
	if err := g.call(ctx, http.MethodPost, g.paths.Register, req, &out); err != nil {
		return flows.Grant{}, err
	}
	return out.grant()
}

func (g *gateway) refresh(ctx context.Context, refresh string) (session.Credentials, error) {
	body := map[string]string{"refreshToken": refresh}
	var out grantPayload
	if err := g.call(ctx, http.MethodPost, g.paths.Refresh, body, &out); err != nil {
		return session.Credentials{}, err
	}
	if out.AccessToken == "" {
		return session.Credentials{}, fmt.Errorf("%w: refresh response has no access token", ErrServerError)
	}
	return session.Credentials{Access: out.AccessToken, Refresh: out.RefreshToken}, nil
}

// Revoke implements session.Revoker.
func (g *gateway) Revoke(ctx context.Context, refresh string) error {
	body := map[string]string{"refreshToken": refresh}
	return g.call(ctx, http.MethodPost, g.paths.Logout, body, nil)
}

func (g *gateway) forgotPassword(ctx context.Context, email string) error {
	return g.call(ctx, http.MethodPost, g.paths.ForgotPassword, map[string]string{"email": email}, nil)
}

func (g *gateway) resetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "newPassword": newPassword}
	return g.call(ctx, http.MethodPost, g.paths.ResetPassword, body, nil)
}

func (p grantPayload) grant() (flows.Grant, error) {
	if p.User == nil || p.AccessToken == "" {
		return flows.Grant{}, fmt.Errorf("%w: grant response is missing the user or access token", ErrServerError)
	}
	return flows.Grant{
		User:        *p.User,
		Credentials: session.Credentials{Access: p.AccessToken, Refresh: p.RefreshToken},
	}, nil
}

// call sends a JSON request and decodes a 2xx JSON response into out. Other
// statuses become typed errors.
func (g *gateway) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.url(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	req.Header.Set("X-Request-ID", requestIDFromContext(ctx))

	resp, err := g.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return transportError(err)
		}
		return fmt.Errorf("%w: decode %s response: %w", ErrServerError, path, err)
	}
	return nil
}

// responseError converts a non-2xx response into a typed error: validation
// failures become *ValidationError, everything else a *StatusError.
func responseError(resp *http.Response) error {
	var payload errorPayload
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	message := payload.Message
	if message == "" {
		message = payload.Detail
	}

	kind := statusKind(resp.StatusCode)
	if kind == ErrValidationFailed {
		return &ValidationError{Message: message, Fields: payload.Errors}
	}
	return &StatusError{Status: resp.StatusCode, Message: message, kind: kind}
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
