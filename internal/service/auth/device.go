package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lukabudik/todofordevs-sub000/internal/domain"
	"github.com/lukabudik/todofordevs-sub000/internal/repository"
)

const (
	defaultDeviceCodeTTL      = 15 * time.Minute
	defaultPollInterval       = 5 * time.Second
	defaultCLITokenTTL        = 7 * 24 * time.Hour
	defaultCodeAttempts       = 5
	defaultVerificationURL    = "http://localhost:3000/device"
	verificationUserCodeParam = "code"
)

var (
	ErrDeviceAuthDisabled = errors.New("auth: device authorization disabled")
	ErrCodeGeneration     = errors.New("auth: could not allocate unique device code")
	ErrUnauthenticated    = errors.New("auth: authenticated session required")
	ErrDeviceCodeInvalid  = errors.New("auth: device code invalid")
	ErrDeviceCodeExpired  = errors.New("auth: device code expired")
	ErrDeviceCodePending  = errors.New("auth: authorization pending")
	ErrUserNotFound       = errors.New("auth: approving user no longer exists")
)

// DeviceAuthorization is returned to the CLI when a flow starts.
type DeviceAuthorization struct {
	DeviceCode              string
	UserCode                string
	VerificationURL         string
	VerificationURLComplete string
	ExpiresIn               time.Duration
	Interval                time.Duration
	// Approved is set when the initiating caller was already signed in.
	Approved bool
}

// DeviceTokenResult is the credential issued once an approved device code is consumed.
type DeviceTokenResult struct {
	Token     string
	ExpiresIn time.Duration
	User      *domain.User
}

// StartDeviceAuthorization issues a new device authorization challenge for CLI logins.
// A non-empty callerID that still resolves to a user approves the request up front.
func (s Service) StartDeviceAuthorization(ctx context.Context, callerID string) (*DeviceAuthorization, error) {
	if s.deviceCodes == nil {
		return nil, ErrDeviceAuthDisabled
	}
	ttl := s.cfg.DeviceCodeTTL
	if ttl <= 0 {
		ttl = defaultDeviceCodeTTL
	}
	interval := s.cfg.DevicePollInterval
	if interval < time.Second {
		interval = defaultPollInterval
	}
	attempts := s.cfg.DeviceCodeAttempts
	if attempts <= 0 {
		attempts = defaultCodeAttempts
	}
	verificationURL := strings.TrimSpace(s.cfg.DeviceVerificationURL)
	if verificationURL == "" {
		verificationURL = defaultVerificationURL
	}

	var boundUser *string
	if callerID = strings.TrimSpace(callerID); callerID != "" {
		user, err := s.users.GetUserByID(ctx, callerID)
		switch {
		case err == nil:
			boundUser = &user.ID
		case errors.Is(err, repository.ErrNotFound):
			s.logger.Warn("device authorization caller not found, continuing unauthenticated", "user_id", callerID)
		default:
			return nil, fmt.Errorf("resolve caller: %w", err)
		}
	}

	now := s.now().UTC()
	for attempt := 0; attempt < attempts; attempt++ {
		deviceCode, err := s.codes.DeviceCode()
		if err != nil {
			return nil, err
		}
		userCode, err := s.codes.UserCode()
		if err != nil {
			return nil, err
		}
		record := domain.DeviceCode{
			DeviceCode:      deviceCode,
			UserCode:        userCode,
			VerificationURL: verificationURL,
			ExpiresAt:       now.Add(ttl),
			IntervalSeconds: int(interval / time.Second),
			CreatedAt:       now,
		}
		if boundUser != nil {
			id := *boundUser
			record.UserID = &id
			record.Verified = true
			record.VerifiedAt = &now
		}
		if err := s.deviceCodes.Insert(ctx, &record); err != nil {
			if errors.Is(err, repository.ErrDuplicateCode) {
				s.logger.Warn("device code collision, regenerating", "attempt", attempt+1)
				continue
			}
			return nil, err
		}
		s.logger.Info("device authorization started", "expires_at", record.ExpiresAt, "preapproved", record.Verified)
		return &DeviceAuthorization{
			DeviceCode:              record.DeviceCode,
			UserCode:                record.UserCode,
			VerificationURL:         verificationURL,
			VerificationURLComplete: completeVerificationURL(verificationURL, record.UserCode),
			ExpiresIn:               ttl,
			Interval:                interval,
			Approved:                record.Verified,
		}, nil
	}
	s.logger.Error("device code generation exhausted retries", "attempts", attempts)
	return nil, ErrCodeGeneration
}

// VerifyDeviceCode approves the pending request identified by userCode on behalf of
// the signed-in userID. Unknown and foreign codes are indistinguishable to the caller.
func (s Service) VerifyDeviceCode(ctx context.Context, userCode, userID string) (*domain.DeviceCode, error) {
	if s.deviceCodes == nil {
		return nil, ErrDeviceAuthDisabled
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	normalized := NormalizeUserCode(userCode)
	if !validUserCode(normalized) {
		return nil, ErrDeviceCodeInvalid
	}
	code, err := s.deviceCodes.MarkVerified(ctx, normalized, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrDeviceCodeInvalid
		case errors.Is(err, repository.ErrExpired):
			return nil, ErrDeviceCodeExpired
		default:
			return nil, err
		}
	}
	s.logger.Info("device code verified", "user_id", userID)
	return code, nil
}

// PollDeviceCode exchanges an approved device code for a CLI token. The entry is
// consumed before the identity lookup so a slow lookup never blocks other pollers.
func (s Service) PollDeviceCode(ctx context.Context, deviceCode string) (DeviceTokenResult, error) {
	if s.deviceCodes == nil {
		return DeviceTokenResult{}, ErrDeviceAuthDisabled
	}
	trimmed := strings.TrimSpace(deviceCode)
	if trimmed == "" {
		return DeviceTokenResult{}, ErrDeviceCodeInvalid
	}
	code, err := s.deviceCodes.ConsumeByDeviceCode(ctx, trimmed)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPendingApproval):
			return DeviceTokenResult{}, ErrDeviceCodePending
		case errors.Is(err, repository.ErrNotFound):
			return DeviceTokenResult{}, ErrDeviceCodeInvalid
		case errors.Is(err, repository.ErrExpired):
			return DeviceTokenResult{}, ErrDeviceCodeExpired
		default:
			return DeviceTokenResult{}, err
		}
	}
	userID := code.BoundUserID()
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("device code approved by missing user", "user_id", userID)
			return DeviceTokenResult{}, ErrUserNotFound
		}
		return DeviceTokenResult{}, fmt.Errorf("resolve approving user: %w", err)
	}
	ttl := s.cfg.CLITokenTTL
	if ttl <= 0 {
		ttl = defaultCLITokenTTL
	}
	token, err := s.signer.Sign(identityOf(user), ttl)
	if err != nil {
		return DeviceTokenResult{}, fmt.Errorf("sign cli token: %w", err)
	}
	s.logger.Info("device token issued", "user_id", user.ID)
	return DeviceTokenResult{Token: token, ExpiresIn: ttl, User: user}, nil
}

func completeVerificationURL(base, userCode string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + verificationUserCodeParam + "=" + userCode
}
