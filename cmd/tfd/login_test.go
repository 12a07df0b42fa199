package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeAPI struct {
	mu          sync.Mutex
	pendingLeft int
	final       int
	finalError  string
	startAuth   string
	polls       int
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/device", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.startAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":               "dev-123",
			"user_code":                 "ABC234",
			"verification_uri":          "https://todofordevs.test/device",
			"verification_uri_complete": "https://todofordevs.test/device?code=ABC234",
			"expires_in":                900,
			"interval":                  5,
		})
	})
	mux.HandleFunc("/auth/device/token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") != "dev-123" {
			t.Errorf("unexpected device code %q", r.URL.Query().Get("code"))
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.polls++
		if f.pendingLeft > 0 {
			f.pendingLeft--
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}
		if f.finalError != "" {
			w.WriteHeader(f.final)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": f.finalError})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "issued-token",
			"token_type": "Bearer",
			"expires_in": 604800,
			"user":       map[string]string{"id": "u1", "email": "u1@example.com", "name": "User One"},
		})
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer issued-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication failed"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "u1", "email": "u1@example.com", "name": "User One"})
	})
	return mux
}

type testCLI struct {
	out        *bytes.Buffer
	configPath string
	sleeps     []time.Duration
	now        time.Time
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	return &testCLI{
		out:        &bytes.Buffer{},
		configPath: filepath.Join(t.TempDir(), "tfd", "config.json"),
		now:        time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (c *testCLI) run(args ...string) error {
	opts := options{
		configPath: c.configPath,
		out:        c.out,
		sleep: func(_ context.Context, d time.Duration) error {
			c.sleeps = append(c.sleeps, d)
			c.now = c.now.Add(d)
			return nil
		},
		now: func() time.Time { return c.now },
	}
	root := newRootCommand(opts)
	root.SetArgs(args)
	root.SetOut(c.out)
	root.SetErr(c.out)
	return root.Execute()
}

func TestLoginPollsUntilApproved(t *testing.T) {
	api := &fakeAPI{pendingLeft: 2}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	cli := newTestCLI(t)

	if err := cli.run("login", "--api", srv.URL); err != nil {
		t.Fatalf("login: %v", err)
	}
	if api.polls != 3 {
		t.Fatalf("expected three polls, got %d", api.polls)
	}
	if len(cli.sleeps) != 2 || cli.sleeps[0] != 5*time.Second {
		t.Fatalf("expected two sleeps at the advertised interval, got %v", cli.sleeps)
	}
	output := cli.out.String()
	if !strings.Contains(output, "ABC-234") || !strings.Contains(output, "https://todofordevs.test/device") {
		t.Fatalf("instructions missing from output: %q", output)
	}
	if !strings.Contains(output, "Logged in as User One <u1@example.com>") {
		t.Fatalf("unexpected output: %q", output)
	}

	info, err := os.Stat(cli.configPath)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config should be private, got %o", perm)
	}
	cfg, err := loadConfig(cli.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Token != "issued-token" || cfg.User.ID != "u1" {
		t.Fatalf("unexpected stored config: %+v", cfg)
	}
	if want := cli.now.Add(7 * 24 * time.Hour); !cfg.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, cfg.ExpiresAt)
	}
	if cfg.APIBaseURL != srv.URL {
		t.Fatalf("expected api url to be remembered, got %q", cfg.APIBaseURL)
	}
}

func TestLoginSendsStoredTokenForSilentApproval(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	cli := newTestCLI(t)
	if err := saveConfig(cli.configPath, cliConfig{APIBaseURL: srv.URL, Token: "old-token"}); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	if err := cli.run("login"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if api.startAuth != "Bearer old-token" {
		t.Fatalf("expected stored token on start, got %q", api.startAuth)
	}
	if len(cli.sleeps) != 0 {
		t.Fatalf("approved login should not wait, slept %v", cli.sleeps)
	}
}

func TestLoginStopsOnTerminalErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		token  string
		want   error
	}{
		"expired": {status: http.StatusBadRequest, token: "expired_device_code", want: errCodeExpired},
		"invalid": {status: http.StatusBadRequest, token: "invalid_device_code", want: errCodeRejected},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			api := &fakeAPI{pendingLeft: 1, final: tc.status, finalError: tc.token}
			srv := httptest.NewServer(api.handler(t))
			defer srv.Close()
			cli := newTestCLI(t)

			err := cli.run("login", "--api", srv.URL)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if api.polls != 2 {
				t.Fatalf("expected polling to stop after terminal error, got %d polls", api.polls)
			}
			if _, statErr := os.Stat(cli.configPath); !os.IsNotExist(statErr) {
				t.Fatalf("no credentials should be stored after a failed login")
			}
		})
	}
}

func TestLoginGivesUpAtExpiry(t *testing.T) {
	api := &fakeAPI{pendingLeft: 1_000}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	cli := newTestCLI(t)

	err := cli.run("login", "--api", srv.URL)
	if !errors.Is(err, errLoginTimedOut) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if total := time.Duration(len(cli.sleeps)) * 5 * time.Second; total >= 15*time.Minute {
		t.Fatalf("polled past the advertised expiry: %s", total)
	}
}

func TestWhoamiAndLogout(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	cli := newTestCLI(t)

	if err := cli.run("whoami", "--api", srv.URL); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected not logged in, got %v", err)
	}
	if err := cli.run("login", "--api", srv.URL); err != nil {
		t.Fatalf("login: %v", err)
	}
	cli.out.Reset()
	if err := cli.run("whoami"); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if strings.TrimSpace(cli.out.String()) != "User One <u1@example.com>" {
		t.Fatalf("unexpected whoami output %q", cli.out.String())
	}
	if err := cli.run("logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := cli.run("whoami"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected not logged in after logout, got %v", err)
	}
}

func TestFormatUserCode(t *testing.T) {
	if got := formatUserCode("ABC234"); got != "ABC-234" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := formatUserCode("ABC"); got != "ABC" {
		t.Fatalf("short codes should pass through, got %q", got)
	}
}

func TestConfigExpiredTokenIsNotLoggedIn(t *testing.T) {
	now := time.Now()
	cfg := cliConfig{Token: "t", ExpiresAt: now.Add(-time.Minute)}
	if cfg.loggedIn(now) {
		t.Fatalf("expired token should not count as logged in")
	}
	cfg.ExpiresAt = now.Add(time.Minute)
	if !cfg.loggedIn(now) {
		t.Fatalf("live token should count as logged in")
	}
}
