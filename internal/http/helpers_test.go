package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lukabudik/todofordevs-sub000/internal/domain"
	"github.com/lukabudik/todofordevs-sub000/internal/repository"
	"github.com/lukabudik/todofordevs-sub000/internal/repository/memory"
	"github.com/lukabudik/todofordevs-sub000/internal/service/auth"
	"github.com/lukabudik/todofordevs-sub000/pkg/config"
	jwtpkg "github.com/lukabudik/todofordevs-sub000/pkg/jwt"
)

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (rl *rateLimiterStub) Close() {}

type userRepoStub struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: make(map[string]*domain.User)}
}

func (u *userRepoStub) CreateUser(_ context.Context, user *domain.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, existing := range u.users {
		if existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	copy := *user
	u.users[user.ID] = &copy
	return nil
}

func (u *userRepoStub) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.Email == email {
			copy := *user
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (u *userRepoStub) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (u *userRepoStub) delete(id string) {
	u.mu.Lock()
	delete(u.users, id)
	u.mu.Unlock()
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	router  *Router
	signer  *jwtpkg.Signer
	users   *userRepoStub
	store   *memory.DeviceCodeStore
	clock   *testClock
	limiter *rateLimiterStub
	logs    *bytes.Buffer
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	clock := &testClock{now: time.Now().UTC()}
	store := memory.NewDeviceCodeStore(memory.WithClock(clock.Now))
	users := newUserRepoStub()
	signer, err := jwtpkg.NewSigner("test-secret", "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	cfg := config.APIConfig{
		SessionTTL:            time.Hour,
		SessionCookieName:     "tfd_session",
		CLITokenTTL:           7 * 24 * time.Hour,
		DeviceCodeTTL:         15 * time.Minute,
		DevicePollInterval:    5 * time.Second,
		DeviceVerificationURL: "https://todofordevs.test/device",
	}
	authSvc := auth.New(users, store, signer, logger, cfg, auth.WithClock(clock.Now))
	limiter := newRateLimiterStub()
	router := NewRouter(logger, authSvc, limiter, nil, store.Len, cfg)
	t.Cleanup(router.Close)

	return &testEnv{
		router:  router,
		signer:  signer,
		users:   users,
		store:   store,
		clock:   clock,
		limiter: limiter,
		logs:    logs,
	}
}

func (env *testEnv) do(t *testing.T, method, target, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// signup registers a user and returns its id and session cookie.
func (env *testEnv) signup(t *testing.T, email string) (string, *http.Cookie) {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/auth/signup", `{"email":"`+email+`","password":"correct horse","name":"Test User"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decodeBody(t, rr, &payload)
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == "tfd_session" {
			return payload.User.ID, cookie
		}
	}
	t.Fatalf("signup did not set session cookie")
	return "", nil
}

type deviceStartPayload struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

func (env *testEnv) startDevice(t *testing.T, mutate func(*http.Request)) deviceStartPayload {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/auth/device", "", mutate)
	if rr.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload deviceStartPayload
	decodeBody(t, rr, &payload)
	return payload
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(dst); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

func withCookie(cookie *http.Cookie) func(*http.Request) {
	return func(req *http.Request) { req.AddCookie(cookie) }
}

func withBearer(token string) func(*http.Request) {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
}

func jwtIdentity(userID string) jwtpkg.Identity {
	return jwtpkg.Identity{UserID: userID}
}
