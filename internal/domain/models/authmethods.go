// internal/domain/models/authmethods.go
package models

// Supported auth methods. Trust login is only accepted in dev mode.
const (
	AuthMethodPassword = "password"
	AuthMethodTrust    = "trust"
)

// AllAuthMethodValues returns all auth method values as a slice.
func AllAuthMethodValues() []string {
	return []string{AuthMethodPassword, AuthMethodTrust}
}

// IsValidAuthMethod checks if a value is a valid auth method.
func IsValidAuthMethod(value string) bool {
	for _, m := range AllAuthMethodValues() {
		if m == value {
			return true
		}
	}
	return false
}
