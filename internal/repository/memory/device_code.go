package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lukabudik/todofordevs-sub000/internal/domain"
	"github.com/lukabudik/todofordevs-sub000/internal/repository"
)

const defaultSweepInterval = time.Minute

// DeviceCodeStore keeps live device authorization requests in process memory.
// Entries are indexed by device code and by user code; both indices are guarded
// by a single mutex that is never held across I/O.
type DeviceCodeStore struct {
	mu       sync.Mutex
	byDevice map[string]*domain.DeviceCode
	byUser   map[string]string

	now      func() time.Time
	interval time.Duration
	logger   *slog.Logger
}

// Option customises store construction.
type Option func(*DeviceCodeStore)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *DeviceCodeStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepInterval overrides how often Run purges expired entries.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *DeviceCodeStore) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger attaches a logger for sweeper diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *DeviceCodeStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDeviceCodeStore constructs an empty store.
func NewDeviceCodeStore(opts ...Option) *DeviceCodeStore {
	s := &DeviceCodeStore{
		byDevice: make(map[string]*domain.DeviceCode),
		byUser:   make(map[string]string),
		now:      time.Now,
		interval: defaultSweepInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.DeviceCodeStore = (*DeviceCodeStore)(nil)

// Insert registers a new pending request. Either code colliding with a live
// entry yields repository.ErrDuplicateCode; nothing is overwritten.
func (s *DeviceCodeStore) Insert(_ context.Context, code *domain.DeviceCode) error {
	if code == nil {
		return repository.ErrInvalidArgument
	}
	deviceCode := strings.TrimSpace(code.DeviceCode)
	userCode := strings.TrimSpace(code.UserCode)
	if deviceCode == "" || userCode == "" {
		return repository.ErrInvalidArgument
	}
	if code.Verified && code.BoundUserID() == "" {
		return repository.ErrInvalidArgument
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// A colliding entry that has already expired is dead; reclaim its slot.
	if existing, ok := s.byDevice[deviceCode]; ok {
		if !existing.Expired(now) {
			return repository.ErrDuplicateCode
		}
		s.removeLocked(existing)
	}
	if existingDevice, ok := s.byUser[userCode]; ok {
		existing := s.byDevice[existingDevice]
		if existing != nil && !existing.Expired(now) {
			return repository.ErrDuplicateCode
		}
		if existing != nil {
			s.removeLocked(existing)
		} else {
			delete(s.byUser, userCode)
		}
	}

	stored := code.Clone()
	stored.DeviceCode = deviceCode
	stored.UserCode = userCode
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now.UTC()
	}
	s.byDevice[deviceCode] = &stored
	s.byUser[userCode] = deviceCode
	return nil
}

// FindByDeviceCode returns a copy of the live request for deviceCode.
func (s *DeviceCodeStore) FindByDeviceCode(_ context.Context, deviceCode string) (*domain.DeviceCode, bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byDevice[strings.TrimSpace(deviceCode)]
	if !ok || entry.Expired(now) {
		return nil, false
	}
	out := entry.Clone()
	return &out, true
}

// FindByUserCode returns a copy of the live request for userCode.
func (s *DeviceCodeStore) FindByUserCode(_ context.Context, userCode string) (*domain.DeviceCode, bool) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	deviceCode, ok := s.byUser[strings.TrimSpace(userCode)]
	if !ok {
		return nil, false
	}
	entry, ok := s.byDevice[deviceCode]
	if !ok || entry.Expired(now) {
		return nil, false
	}
	out := entry.Clone()
	return &out, true
}

// MarkVerified binds the request identified by userCode to userID.
// Verifying again as the same user is a no-op success; a different user
// receives repository.ErrNotFound so an approved request cannot be rebound.
func (s *DeviceCodeStore) MarkVerified(_ context.Context, userCode, userID string) (*domain.DeviceCode, error) {
	userCode = strings.TrimSpace(userCode)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, repository.ErrNotFound
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	deviceCode, ok := s.byUser[userCode]
	if !ok {
		return nil, repository.ErrNotFound
	}
	entry, ok := s.byDevice[deviceCode]
	if !ok {
		delete(s.byUser, userCode)
		return nil, repository.ErrNotFound
	}
	if entry.Expired(now) {
		s.removeLocked(entry)
		return nil, repository.ErrExpired
	}
	if entry.Verified {
		if entry.BoundUserID() != userID {
			return nil, repository.ErrNotFound
		}
		out := entry.Clone()
		return &out, nil
	}
	verifiedAt := now.UTC()
	entry.UserID = &userID
	entry.Verified = true
	entry.VerifiedAt = &verifiedAt
	out := entry.Clone()
	return &out, nil
}

// ConsumeByDeviceCode removes and returns a verified request in one critical
// section, so at most one caller ever receives a given device code.
func (s *DeviceCodeStore) ConsumeByDeviceCode(_ context.Context, deviceCode string) (*domain.DeviceCode, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.byDevice[strings.TrimSpace(deviceCode)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if entry.Expired(now) {
		s.removeLocked(entry)
		return nil, repository.ErrExpired
	}
	if !entry.Verified {
		return nil, repository.ErrPendingApproval
	}
	s.removeLocked(entry)
	out := entry.Clone()
	return &out, nil
}

// Sweep deletes every entry whose expiry is at or before now.
func (s *DeviceCodeStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, entry := range s.byDevice {
		if entry.Expired(now) {
			s.removeLocked(entry)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries currently held, including any expired
// entries the sweeper has not yet reclaimed.
func (s *DeviceCodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byDevice)
}

// Run sweeps expired entries on a fixed interval until ctx is cancelled.
func (s *DeviceCodeStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("device code sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("device code sweeper stopped")
			return
		case <-ticker.C:
			if removed := s.Sweep(s.now()); removed > 0 {
				s.logger.Debug("expired device codes swept", "count", removed)
			}
		}
	}
}

func (s *DeviceCodeStore) removeLocked(entry *domain.DeviceCode) {
	delete(s.byDevice, entry.DeviceCode)
	if current, ok := s.byUser[entry.UserCode]; ok && current == entry.DeviceCode {
		delete(s.byUser, entry.UserCode)
	}
}
