//go:build integration
// +build integration

package test

import (
	"context"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/internal/authtest"
)

const (
	aliceEmail    = "alice@example.com"
	alicePassword = "correct-horse"
)

func startService(t *testing.T, opts authtest.Options) (*authtest.Server, string) {
	t.Helper()
	srv, url := authtest.Start(t, opts)
	if _, err := srv.SeedUser(aliceEmail, alicePassword, "Alice", "Example"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return srv, url
}

func integrationConfig(url string) authsession.Config {
	cfg := authsession.DefaultConfig()
	cfg.Remote.BaseURL = url
	cfg.Remote.Timeout = 5 * time.Second
	cfg.Renewal.Timeout = 5 * time.Second
	return cfg
}

// buildRestored builds a client with b, restores it and registers Close.
func buildRestored(t *testing.T, b *authsession.Builder) *authsession.Client {
	t.Helper()
	c, err := b.WithLogger(log.New(io.Discard, "", 0)).Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.Restore(ctx)
	return c
}

func login(t *testing.T, c *authsession.Client) authsession.Snapshot {
	t.Helper()
	snap, err := c.Login(context.Background(), aliceEmail, alicePassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return snap
}

// echo sends an authenticated GET to the protected echo endpoint and drains
// the response.
func echo(c *authsession.Client) authsession.Result {
	req, err := c.NewRequest(context.Background(), http.MethodGet, "/api/echo", nil)
	if err != nil {
		return authsession.Result{Outcome: authsession.OutcomeFailure, Err: err}
	}
	res := c.Send(req)
	if res.Response != nil {
		_, _ = io.Copy(io.Discard, res.Response.Body)
		_ = res.Response.Body.Close()
	}
	return res
}
