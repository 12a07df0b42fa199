package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	deviceCodeBytes = 32
	userCodeLength  = 6
	// 32 symbols, so a random byte masked to 5 bits maps uniformly.
	userCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// CodeGenerator produces the secrets handed out by a device authorization.
type CodeGenerator interface {
	DeviceCode() (string, error)
	UserCode() (string, error)
}

type randomCodes struct{}

func (randomCodes) DeviceCode() (string, error) { return NewDeviceCode() }
func (randomCodes) UserCode() (string, error)   { return NewUserCode() }

// NewDeviceCode returns 256 bits from crypto/rand encoded as unpadded base64url.
func NewDeviceCode() (string, error) {
	buf := make([]byte, deviceCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewUserCode returns a six character uppercase alphanumeric code.
func NewUserCode() (string, error) {
	buf := make([]byte, userCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate user code: %w", err)
	}
	for i := range buf {
		buf[i] = userCodeAlphabet[int(buf[i])&(len(userCodeAlphabet)-1)]
	}
	return string(buf), nil
}

// NormalizeUserCode canonicalises typed input: case, spaces and dashes are ignored.
func NormalizeUserCode(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.ToUpper(input) {
		switch r {
		case ' ', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validUserCode(code string) bool {
	if len(code) != userCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(userCodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
