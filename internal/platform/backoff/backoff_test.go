package backoff

import (
	"testing"
	"time"
)

func TestNextDoublesUntilCap(t *testing.T) {
	b := New(1*time.Second, 8*time.Second)
	want := []time.Duration{1, 2, 4, 8, 8}
	for i, w := range want {
		got := b.Next()
		if got != w*time.Second {
			t.Errorf("Next() call %d = %v, want %v", i, got, w*time.Second)
		}
	}
}

func TestResetReturnsToInitial(t *testing.T) {
	b := New(1*time.Second, 30*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	if got := b.Next(); got != 1*time.Second {
		t.Errorf("Next() after Reset() = %v, want 1s", got)
	}
}

func TestDefaultIsOneToThirtySeconds(t *testing.T) {
	b := Default()
	if got := b.Next(); got != time.Second {
		t.Errorf("Default().Next() = %v, want 1s", got)
	}
	for i := 0; i < 10; i++ {
		b.Next()
	}
	if got := b.Next(); got != 30*time.Second {
		t.Errorf("Default() should cap at 30s, got %v", got)
	}
}
