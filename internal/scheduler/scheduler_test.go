package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentforge/agentforge/internal/agent"
	"github.com/agentforge/agentforge/internal/inference"
	"github.com/agentforge/agentforge/internal/model"
	"github.com/agentforge/agentforge/internal/platform/config"
)

type fakeCapturer struct {
	mu       sync.Mutex
	captures map[string]string
	exists   map[string]bool
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{captures: make(map[string]string), exists: make(map[string]bool)}
}

func (f *fakeCapturer) Capture(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures[name], nil
}

func (f *fakeCapturer) Exists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exists[name]
}

func (f *fakeCapturer) set(name, capture string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures[name] = capture
	f.exists[name] = true
}

func (f *fakeCapturer) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.exists, name)
}

type fakeNotifier struct {
	mu          sync.Mutex
	transitions []model.Status
}

func (f *fakeNotifier) NotifyTransition(ctx context.Context, snap model.Snapshot, previous model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, snap.Status)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transitions)
}

func newTestSetup() (*Scheduler, *agent.Manager, *fakeCapturer, *fakeNotifier) {
	cap := newFakeCapturer()
	notifier := &fakeNotifier{}
	mgr := agent.New(agent.Deps{Config: &config.Config{}})
	sched := New(Deps{
		Agents:   mgr,
		Term:     cap,
		Engine:   inference.New(inference.DefaultRuleset()),
		Notifier: notifier,
		Interval: time.Hour, // tests call tick()/tickAgent() directly, not the real loop
	})
	return sched, mgr, cap, notifier
}

func TestTickAgentTransitionsToWaitingInputAndNotifies(t *testing.T) {
	sched, mgr, cap, notifier := newTestSetup()
	a := &model.Agent{ID: "a1", Project: "demo", SessionName: "forge__demo__a1", Status: model.StatusWorking}
	mgr.Adopt(a)
	cap.set(a.SessionName, "Do you want to proceed?\n❯ 1. Yes\n  2. No")

	sched.tickAgent(context.Background(), a)

	updated, _ := mgr.Get("a1")
	if updated.Status != model.StatusWaitingInput {
		t.Fatalf("expected waiting_input, got %v", updated.Status)
	}
	if !updated.NeedsAttention {
		t.Errorf("expected needs_attention to be set on waiting_input")
	}
	if notifier.count() != 1 {
		t.Errorf("expected exactly one notification, got %d", notifier.count())
	}
}

func TestTickAgentExtractsResponseOnWorkingToIdle(t *testing.T) {
	sched, mgr, cap, _ := newTestSetup()
	a := &model.Agent{ID: "a1", Project: "demo", SessionName: "forge__demo__a1", Status: model.StatusWorking}
	mgr.Adopt(a)
	cap.set(a.SessionName, "> do the thing\n\n● All done.\n\n> ")

	sched.tickAgent(context.Background(), a)

	updated, _ := mgr.Get("a1")
	if updated.Status != model.StatusIdle {
		t.Fatalf("expected idle, got %v", updated.Status)
	}
	if updated.LastResponse != "● All done." {
		t.Errorf("expected extracted response, got %q", updated.LastResponse)
	}
}

func TestTickAgentMarksStoppedWhenSessionGone(t *testing.T) {
	sched, mgr, cap, _ := newTestSetup()
	a := &model.Agent{ID: "a1", Project: "demo", SessionName: "forge__demo__a1", Status: model.StatusIdle}
	mgr.Adopt(a)
	cap.remove(a.SessionName)

	sched.tickAgent(context.Background(), a)

	updated, _ := mgr.Get("a1")
	if updated.Status != model.StatusStopped {
		t.Fatalf("expected stopped, got %v", updated.Status)
	}
}

func TestTickAgentSkippedWhenUnchanged(t *testing.T) {
	sched, mgr, cap, notifier := newTestSetup()
	a := &model.Agent{ID: "a1", Project: "demo", SessionName: "forge__demo__a1", Status: model.StatusWorking}
	mgr.Adopt(a)
	cap.set(a.SessionName, "streaming tokens without a prompt")

	sched.tickAgent(context.Background(), a)

	updated, _ := mgr.Get("a1")
	if updated.Status != model.StatusWorking {
		t.Fatalf("expected status to remain working, got %v", updated.Status)
	}
	if notifier.count() != 0 {
		t.Errorf("expected no notification when status is unchanged, got %d", notifier.count())
	}
}
