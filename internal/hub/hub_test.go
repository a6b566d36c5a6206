package hub

import (
	"testing"
	"time"

	"github.com/agentforge/agentforge/internal/model"
)

func TestPublishAgentUpdateDeliversToSubscriber(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe()
	defer sub.Unsubscribe()

	h.PublishAgentUpdate(model.Snapshot{AgentID: "a1", Status: model.StatusWorking})

	select {
	case msg := <-sub.C():
		if msg.Type != KindAgentUpdate {
			t.Fatalf("expected agent_update, got %v", msg.Type)
		}
		snap, ok := msg.Data.(model.Snapshot)
		if !ok || snap.AgentID != "a1" {
			t.Fatalf("expected snapshot payload for a1, got %+v", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for agent_update")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := New(nil)
	sub1 := h.Subscribe()
	sub2 := h.Subscribe()
	defer sub1.Unsubscribe()
	defer sub2.Unsubscribe()

	h.PublishLogLine("hello")

	for _, s := range []*Subscriber{sub1, sub2} {
		select {
		case msg := <-s.C():
			if msg.Type != KindLogLine {
				t.Errorf("expected log_line, got %v", msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe()
	sub.Unsubscribe()

	_, ok := <-sub.C()
	if ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
}

func TestMailboxDropsOldestWhenFull(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe()
	defer sub.Unsubscribe()

	for i := 0; i < mailboxCapacity+10; i++ {
		h.PublishLogLine("line")
	}

	// Should not block or panic; the mailbox stays at its cap with the
	// newest messages retained.
	drained := 0
	for {
		select {
		case <-sub.C():
			drained++
		default:
			if drained > mailboxCapacity {
				t.Errorf("expected mailbox to stay bounded at %d, drained %d", mailboxCapacity, drained)
			}
			return
		}
	}
}

func TestPublishAfterUnsubscribeIsANoop(t *testing.T) {
	h := New(nil)
	sub := h.Subscribe()
	sub.Unsubscribe()

	// Must not panic when publishing with no live subscribers left.
	h.PublishAgentUpdate(model.Snapshot{AgentID: "a1"})
}
