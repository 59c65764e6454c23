package ids

import (
	"testing"
	"time"
)

func TestNew_Monotonic(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestNew_Length(t *testing.T) {
	if got := len(New()); got != 26 {
		t.Errorf("len(New()) = %d, want 26", got)
	}
}

func TestTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, err := Time(At(at))
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if !got.Equal(at) {
		t.Errorf("Time() = %v, want %v", got, at)
	}

	if _, err := Time("not-a-ulid"); err == nil {
		t.Error("expected error for malformed id")
	}
}
