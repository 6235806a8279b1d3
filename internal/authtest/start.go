package authtest

import (
	"net/http/httptest"
	"testing"
)

// Start runs a Server on a loopback listener for the duration of the test.
func Start(tb testing.TB, opts Options) (*Server, string) {
	tb.Helper()
	s, err := New(opts)
	if err != nil {
		tb.Fatalf("authtest: new server: %v", err)
	}
	ts := httptest.NewServer(s)
	tb.Cleanup(ts.Close)
	return s, ts.URL
}
