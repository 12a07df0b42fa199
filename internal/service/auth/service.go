package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lukabudik/todofordevs-sub000/internal/domain"
	"github.com/lukabudik/todofordevs-sub000/internal/repository"
	"github.com/lukabudik/todofordevs-sub000/pkg/config"
	"github.com/lukabudik/todofordevs-sub000/pkg/crypto"
	jwtpkg "github.com/lukabudik/todofordevs-sub000/pkg/jwt"
)

const minPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidEmail       = errors.New("auth: valid email is required")
	ErrWeakPassword       = errors.New("auth: password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("auth: password must be at most 72 bytes")
	ErrTokenRequired      = errors.New("auth: token required")
)

// TokenSigner mints and verifies the bearer tokens handed to browsers and CLIs.
type TokenSigner interface {
	Sign(identity jwtpkg.Identity, ttl time.Duration) (string, error)
	Parse(token string) (*jwtpkg.Claims, error)
}

// Service handles authentication workflows.
type Service struct {
	users       repository.UserRepository
	deviceCodes repository.DeviceCodeStore
	signer      TokenSigner
	codes       CodeGenerator
	logger      *slog.Logger
	cfg         config.APIConfig
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for expiry stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator overrides the device and user code source.
func WithCodeGenerator(codes CodeGenerator) Option {
	return func(s *Service) {
		if codes != nil {
			s.codes = codes
		}
	}
}

// New constructs a Service.
func New(users repository.UserRepository, devices repository.DeviceCodeStore, signer TokenSigner, logger *slog.Logger, cfg config.APIConfig, opts ...Option) Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := Service{
		users:       users,
		deviceCodes: devices,
		signer:      signer,
		codes:       randomCodes{},
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Session is a signed browser credential.
type Session struct {
	Token     string
	ExpiresIn time.Duration
}

// Signup registers a new user and opens a browser session.
func (s Service) Signup(ctx context.Context, email, password, name string) (*domain.User, Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, Session{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, Session{}, ErrWeakPassword
	}
	if len(password) > crypto.MaxPasswordBytes {
		return nil, Session{}, ErrPasswordTooLong
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, Session{}, fmt.Errorf("hash password: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, Session{}, ErrEmailTaken
		}
		return nil, Session{}, err
	}
	session, err := s.issueSession(user)
	if err != nil {
		return nil, Session{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, session, nil
}

// Login authenticates a user by password and opens a browser session.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, Session, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			crypto.CompareDummy(password)
			return nil, Session{}, ErrInvalidCredentials
		}
		return nil, Session{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, Session{}, ErrInvalidCredentials
	}
	session, err := s.issueSession(user)
	if err != nil {
		return nil, Session{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, session, nil
}

// Authorize verifies a bearer token's signature and returns the associated user and claims.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, *jwtpkg.Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, nil, ErrTokenRequired
	}
	claims, err := s.signer.Parse(trimmed)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// SessionCookieName exposes the configured browser cookie name.
func (s Service) SessionCookieName() string {
	if name := strings.TrimSpace(s.cfg.SessionCookieName); name != "" {
		return name
	}
	return "tfd_session"
}

func (s Service) issueSession(user *domain.User) (Session, error) {
	ttl := s.cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := s.signer.Sign(identityOf(user), ttl)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Token: token, ExpiresIn: ttl}, nil
}

func identityOf(user *domain.User) jwtpkg.Identity {
	return jwtpkg.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}
}
