package repository

import (
	"context"
	"time"

	"github.com/lukabudik/todofordevs-sub000/internal/domain"
)

// UserRepository persists users and acts as the identity provider for device logins.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// DeviceCodeStore is the registry of live device authorization requests.
type DeviceCodeStore interface {
	Insert(ctx context.Context, code *domain.DeviceCode) error
	FindByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, bool)
	FindByUserCode(ctx context.Context, userCode string) (*domain.DeviceCode, bool)
	MarkVerified(ctx context.Context, userCode, userID string) (*domain.DeviceCode, error)
	ConsumeByDeviceCode(ctx context.Context, deviceCode string) (*domain.DeviceCode, error)
	Sweep(now time.Time) int
	Len() int
}
