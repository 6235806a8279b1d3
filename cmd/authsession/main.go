package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/metrics/export/prometheus"
)

const usage = `usage: authsession [flags] <command> [args]

commands:
  status                     print the restored session phase
  login -email E -password P sign in and persist the session
  register -email E -password P [-first F] [-last L]
  logout                     sign out and clear the persisted session
  whoami                     refresh the user record from the service
  get <path>                 send an authenticated GET and print the body
  forgot-password -email E   request a password reset
  reset-password -token T -password P

flags:
`

// embeddedRedis selects an in-process Redis for storage.redis_addr.
const embeddedRedis = "embedded"

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("AUTHSESSION_CONFIG"), "TOML config file")
		timeout     = flag.Duration("timeout", 30*time.Second, "overall command timeout")
		verbose     = flag.Bool("v", false, "log client warnings to stderr")
		showMetrics = flag.Bool("metrics", false, "print Prometheus metrics to stderr on exit")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := authsession.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.Storage.Backend == authsession.BackendMemory {
		// A memory store would forget the session between invocations.
		path, err := defaultSessionPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "session path: %v\n", err)
			os.Exit(1)
		}
		cfg.Storage.Backend = authsession.BackendFile
		cfg.Storage.Path = path
	}

	cleanup := func() {}
	if cfg.Storage.Backend == authsession.BackendRedis && cfg.Storage.RedisAddr == embeddedRedis {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		cfg.Storage.RedisAddr = mr.Addr()
		cleanup = mr.Close
		fmt.Fprintf(os.Stderr, "using miniredis at %s (session will not outlive this process)\n", mr.Addr())
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	client, err := authsession.New().
		WithConfig(cfg).
		WithLogger(logger).
		Build()
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	client.Restore(ctx)
	runErr := run(ctx, client, flag.Arg(0), flag.Args()[1:], os.Stdout)
	cancel()

	if *showMetrics {
		fmt.Fprint(os.Stderr, prometheus.NewPrometheusExporter(client).Render())
	}
	if err := client.Close(); err != nil && runErr == nil {
		runErr = err
	}
	cleanup()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), runErr)
		os.Exit(exitCode(runErr))
	}
}

func defaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "authsession", "session.json"), nil
}

func run(ctx context.Context, client *authsession.Client, command string, args []string, out io.Writer) error {
	switch command {
	case "status":
		printSnapshot(out, client.Snapshot())
		return nil

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", os.Getenv("AUTHSESSION_PASSWORD"), "account password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		snap, err := client.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		printSnapshot(out, snap)
		return nil

	case "register":
		fs := flag.NewFlagSet("register", flag.ContinueOnError)
		req := authsession.RegisterRequest{}
		fs.StringVar(&req.Email, "email", "", "account email")
		fs.StringVar(&req.Password, "password", os.Getenv("AUTHSESSION_PASSWORD"), "account password")
		fs.StringVar(&req.FirstName, "first", "", "first name")
		fs.StringVar(&req.LastName, "last", "", "last name")
		if err := fs.Parse(args); err != nil {
			return err
		}
		snap, err := client.Register(ctx, req)
		if err != nil {
			return err
		}
		printSnapshot(out, snap)
		return nil

	case "logout":
		if err := client.Logout(ctx); err != nil {
			return err
		}
		printSnapshot(out, client.Snapshot())
		return nil

	case "whoami":
		snap, err := client.SyncProfile(ctx)
		if err != nil {
			return err
		}
		printSnapshot(out, snap)
		return nil

	case "get":
		if len(args) != 1 {
			return errors.New("get takes exactly one path")
		}
		return get(ctx, client, args[0], out)

	case "forgot-password":
		fs := flag.NewFlagSet("forgot-password", flag.ContinueOnError)
		email := fs.String("email", "", "account email")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := client.ForgotPassword(ctx, *email); err != nil {
			return err
		}
		fmt.Fprintln(out, "reset requested")
		return nil

	case "reset-password":
		fs := flag.NewFlagSet("reset-password", flag.ContinueOnError)
		token := fs.String("token", "", "reset token")
		password := fs.String("password", os.Getenv("AUTHSESSION_PASSWORD"), "new password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := client.ResetPassword(ctx, *token, *password); err != nil {
			return err
		}
		fmt.Fprintln(out, "password reset")
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

func get(ctx context.Context, client *authsession.Client, path string, out io.Writer) error {
	req, err := client.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	res := client.Send(req)
	if res.Response != nil {
		defer res.Response.Body.Close()
	}
	if !res.OK() {
		return res.Err
	}
	fmt.Fprintf(out, "%s (renewed=%t)\n", res.Response.Status, res.Renewed)
	_, err = io.Copy(out, res.Response.Body)
	return err
}

func printSnapshot(out io.Writer, snap authsession.Snapshot) {
	if !snap.Authenticated() {
		fmt.Fprintf(out, "phase: %s\n", snap.Phase)
		return
	}
	fmt.Fprintf(out, "phase: %s\nuser:  %s <%s>\n", snap.Phase, snap.User.ID, snap.User.Email)
	if !snap.Durable {
		fmt.Fprintln(out, "warning: session was not persisted")
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, authsession.ErrInvalidCredentials), errors.Is(err, authsession.ErrNotAuthenticated):
		return 3
	case errors.Is(err, authsession.ErrValidationFailed):
		return 4
	case errors.Is(err, authsession.ErrNetworkUnavailable):
		return 5
	default:
		return 1
	}
}
