// Package status holds the two account status values stored on users.
//
// The values are plain strings so they can be used directly in MongoDB
// filters and validators.
package status

const (
	Active   = "active"
	Disabled = "disabled"
)

// IsValid returns true if s is a recognized status value.
func IsValid(s string) bool {
	return s == Active || s == Disabled
}

// Default returns the status given to new users.
func Default() string {
	return Active
}

// For maps a disabled flag onto its stored status value.
func For(disabled bool) string {
	if disabled {
		return Disabled
	}
	return Active
}
