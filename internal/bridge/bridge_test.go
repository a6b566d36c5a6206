package bridge

import (
	"context"
	"testing"
)

func TestDiffTailReturnsAppendedSuffix(t *testing.T) {
	got := diffTail("hello", "hello world")
	if got != " world" {
		t.Errorf("diffTail() = %q, want %q", got, " world")
	}
}

func TestDiffTailReturnsWholeNextWhenNotAPrefix(t *testing.T) {
	got := diffTail("hello", "goodbye")
	if got != "goodbye" {
		t.Errorf("diffTail() = %q, want %q (pane reset case)", got, "goodbye")
	}
}

func TestDiffTailEmptyWhenUnchanged(t *testing.T) {
	if got := diffTail("same", "same"); got != "" {
		t.Errorf("diffTail() = %q, want empty", got)
	}
}

type fakeBridgeCapturer struct {
	captures map[string]string
	exists   map[string]bool
}

func (f *fakeBridgeCapturer) Capture(name string) (string, error) { return f.captures[name], nil }
func (f *fakeBridgeCapturer) Exists(name string) bool             { return f.exists[name] }
func (f *fakeBridgeCapturer) SendText(ctx context.Context, name, text string) error {
	return nil
}
func (f *fakeBridgeCapturer) Resize(name string, cols, rows int) error { return nil }

func TestSubscribeAndUnsubscribeTracksBridgeLifecycle(t *testing.T) {
	term := &fakeBridgeCapturer{captures: map[string]string{"s1": "hi"}, exists: map[string]bool{"s1": true}}
	m := New(term, nil)

	sub := m.Subscribe("s1")
	if sub == nil {
		t.Fatal("Subscribe() returned nil")
	}
	m.mu.Lock()
	_, ok := m.bridges["s1"]
	m.mu.Unlock()
	if !ok {
		t.Fatal("expected a bridge to be created on first subscriber")
	}

	m.Unsubscribe("s1", sub)
	// Unsubscribing the last subscriber schedules teardown after a
	// linger rather than immediately; the bridge should still exist
	// right after Unsubscribe returns.
	m.mu.Lock()
	_, stillThere := m.bridges["s1"]
	m.mu.Unlock()
	if !stillThere {
		t.Error("expected the bridge to linger briefly after the last subscriber leaves")
	}
}

func TestFanOutDeltaForwardsOnlyNewBytes(t *testing.T) {
	b := &sessionBridge{name: "s1", subscribers: make(map[string]*Subscriber), stopCh: make(chan struct{})}
	sub := b.addSubscriber()

	b.fanOutDelta("hello")
	select {
	case data := <-sub.Output:
		if string(data) != "hello" {
			t.Errorf("first fan-out = %q, want %q", data, "hello")
		}
	default:
		t.Fatal("expected output on first fan-out")
	}

	b.fanOutDelta("hello world")
	select {
	case data := <-sub.Output:
		if string(data) != " world" {
			t.Errorf("second fan-out = %q, want %q", data, " world")
		}
	default:
		t.Fatal("expected output on second fan-out")
	}
}
