package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lukabudik/todofordevs-sub000/internal/domain"
	"github.com/lukabudik/todofordevs-sub000/internal/repository"
	jwtpkg "github.com/lukabudik/todofordevs-sub000/pkg/jwt"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSigner(t *testing.T) *jwtpkg.Signer {
	t.Helper()
	signer, err := jwtpkg.NewSigner("super-secret", "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
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

type deviceStoreMock struct {
	insertFunc       func(context.Context, *domain.DeviceCode) error
	markVerifiedFunc func(context.Context, string, string) (*domain.DeviceCode, error)
	consumeFunc      func(context.Context, string) (*domain.DeviceCode, error)
}

func (m deviceStoreMock) Insert(ctx context.Context, code *domain.DeviceCode) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, code)
	}
	return nil
}

func (m deviceStoreMock) FindByDeviceCode(context.Context, string) (*domain.DeviceCode, bool) {
	return nil, false
}

func (m deviceStoreMock) FindByUserCode(context.Context, string) (*domain.DeviceCode, bool) {
	return nil, false
}

func (m deviceStoreMock) MarkVerified(ctx context.Context, userCode, userID string) (*domain.DeviceCode, error) {
	if m.markVerifiedFunc != nil {
		return m.markVerifiedFunc(ctx, userCode, userID)
	}
	return nil, repository.ErrNotFound
}

func (m deviceStoreMock) ConsumeByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error) {
	if m.consumeFunc != nil {
		return m.consumeFunc(ctx, deviceCode)
	}
	return nil, repository.ErrNotFound
}

func (m deviceStoreMock) Sweep(time.Time) int { return 0 }

func (m deviceStoreMock) Len() int { return 0 }

type userRepoMock struct {
	createFunc     func(context.Context, *domain.User) error
	getByEmailFunc func(context.Context, string) (*domain.User, error)
	getByIDFunc    func(context.Context, string) (*domain.User, error)
}

func (m userRepoMock) CreateUser(ctx context.Context, user *domain.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return nil
}

func (m userRepoMock) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	if m.getByEmailFunc != nil {
		return m.getByEmailFunc(ctx, email)
	}
	return nil, repository.ErrNotFound
}

func (m userRepoMock) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

// usersByID resolves only the given users.
func usersByID(users ...domain.User) userRepoMock {
	index := make(map[string]domain.User, len(users))
	for _, u := range users {
		index[u.ID] = u
	}
	return userRepoMock{
		getByIDFunc: func(_ context.Context, id string) (*domain.User, error) {
			u, ok := index[id]
			if !ok {
				return nil, repository.ErrNotFound
			}
			return &u, nil
		},
	}
}

type fixedCodes struct {
	device string
	user   string
}

func (f fixedCodes) DeviceCode() (string, error) { return f.device, nil }
func (f fixedCodes) UserCode() (string, error)   { return f.user, nil }
