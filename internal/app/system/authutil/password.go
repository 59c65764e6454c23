// internal/app/system/authutil/password.go
package authutil

import (
	"errors"
	"strings"
	"sync"

	"github.com/dalemusser/stratagate/internal/domain/models"
	"golang.org/x/crypto/bcrypt"
)

// Password constraints for seeded and admin-set passwords.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
	BcryptCost        = 12
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 72 bytes")
	ErrPasswordCommon   = errors.New("password is too common")
)

var commonPasswords = map[string]bool{
	"12345678":  true,
	"123456789": true,
	"password":  true,
	"password1": true,
	"qwerty123": true,
	"iloveyou":  true,
	"letmein1":  true,
	"welcome1":  true,
	"changeme":  true,
	"admin123":  true,
}

// ValidatePassword reports why password is unacceptable, or nil.
func ValidatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	case commonPasswords[strings.ToLower(password)]:
		return ErrPasswordCommon
	}
	return nil
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plain-text password with a bcrypt hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyHash     []byte
	dummyHashOnce sync.Once
)

// burn spends the same bcrypt work as a real comparison so unknown login
// ids cannot be told apart by response time.
func burn(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("stratagate-dummy"), BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// VerifyCredentials checks password against u. A nil u still costs one
// bcrypt comparison. Trust users pass only when allowTrust is set.
func VerifyCredentials(u *models.User, password string, allowTrust bool) bool {
	if u == nil {
		burn(password)
		return false
	}
	switch u.AuthMethod {
	case models.AuthMethodTrust:
		return allowTrust
	case models.AuthMethodPassword:
		if u.PasswordHash == nil || *u.PasswordHash == "" {
			burn(password)
			return false
		}
		return CheckPassword(password, *u.PasswordHash)
	default:
		return false
	}
}
