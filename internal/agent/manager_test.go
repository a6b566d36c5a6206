package agent

import (
	"testing"

	"github.com/agentforge/agentforge/internal/platform/config"
)

func newTestManager(cfg *config.Config) *Manager {
	return New(Deps{Config: cfg})
}

func TestMaxAgentsPrefersProjectOverrideOverDefault(t *testing.T) {
	cfg := &config.Config{
		Defaults: config.DefaultsConfig{MaxAgentsPerProject: 3},
		Projects: map[string]config.ProjectConfig{
			"demo": {MaxAgents: 7},
		},
	}
	m := newTestManager(cfg)
	if got := m.maxAgents("demo"); got != 7 {
		t.Errorf("maxAgents() = %d, want 7 (project override)", got)
	}
	if got := m.maxAgents("unconfigured"); got != 3 {
		t.Errorf("maxAgents() = %d, want 3 (fleet default)", got)
	}
}

func TestMaxAgentsFallsBackToBuiltinDefaultWhenUnset(t *testing.T) {
	m := newTestManager(&config.Config{})
	if got := m.maxAgents("anything"); got != 3 {
		t.Errorf("maxAgents() = %d, want builtin default of 3", got)
	}
}

func TestProfileFromConfigCarriesStartSequence(t *testing.T) {
	pc := config.ProfileConfig{
		SystemPrompt: "be terse",
		StartSequence: []config.StartDirective{
			{Action: "wait", Value: "2"},
			{Action: "send", Value: "hello"},
		},
	}
	p := profileFromConfig("reviewer", pc)
	if p.Name != "reviewer" || p.SystemPrompt != "be terse" {
		t.Errorf("profileFromConfig() = %+v", p)
	}
	if len(p.StartSequence) != 2 || p.StartSequence[1].Value != "hello" {
		t.Errorf("profileFromConfig() start sequence = %+v", p.StartSequence)
	}
}

func TestLockIDRefcountsAndCleansUp(t *testing.T) {
	m := newTestManager(&config.Config{})
	l := m.lockID("a1")
	if m.idLocks["a1"].ref != 1 {
		t.Fatalf("expected ref count 1 after first lock, got %d", m.idLocks["a1"].ref)
	}
	l2 := m.lockID("a1")
	if l != l2 {
		t.Errorf("expected the same lock instance for repeated lockID calls")
	}
	m.unlockID("a1", l)
	m.unlockID("a1", l2)
	if _, ok := m.idLocks["a1"]; ok {
		t.Errorf("expected idLocks entry to be cleaned up once refcount reaches zero")
	}
}
