package accessgate

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnauthorized, KindUnauthorized},
		{ErrInvalidOrExpiredToken, KindInvalidOrExpiredToken},
		{ErrUnknownIdentity, KindUnknownIdentity},
		{ErrProtectedIdentity, KindProtectedIdentity},
		{fmt.Errorf("%w: %w", ErrRevocationPartialFailure, errors.New("boom")), KindRevocationPartialFailure},
		{fmt.Errorf("lookup: %w: %w", ErrStoreUnavailable, errors.New("boom")), KindStoreUnavailable},
		{errors.New("other"), KindInternal},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
		ok   bool
	}{
		{"enable", ActionEnable, true},
		{" Disable ", ActionDisable, true},
		{"delete", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAction(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseAction(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if ActionFor(true) != ActionEnable || ActionFor(false) != ActionDisable {
		t.Error("ActionFor returned the wrong action")
	}
}
