// Package inference classifies a captured terminal pane into a discrete
// agent status and extracts free-text agent "responses", per
// section 4.4. The engine is a pure function of
// (current-capture, prior-capture, prior-status, time-since-last-change) —
// it holds no session state and is reused for local and remote pane sources.
package inference

import (
	"strings"
	"time"

	"github.com/agentforge/agentforge/internal/model"
)

// ActivityWindow bounds how recently a capture must have changed to still
// count as "working", per rule 3.
const ActivityWindow = 10 * time.Second

// Ruleset is the configurable, ordered pattern set the engine classifies
// against. The open question in ("ruleset must be
	// configurable") is resolved by making this a field, not a constant.
type Ruleset struct {
	WaitingInput []Rule
	Error []Rule
	IdlePrompt []Rule
}

// DefaultRuleset returns the built-in ruleset grounded on Claude Code's TUI.
func DefaultRuleset() Ruleset {
	return Ruleset{
		WaitingInput: DefaultWaitingInputRules,
		Error: DefaultErrorRules,
		IdlePrompt: DefaultIdlePromptRules,
	}
}

// Engine classifies pane captures into a Status. It is stateless and safe
// for concurrent use; all per-agent state is passed in by the caller.
type Engine struct {
	rules Ruleset
}

// New builds an Engine from a Ruleset. A zero-value Ruleset falls back to
// DefaultRuleset.
func New(rules Ruleset) *Engine {
	if len(rules.WaitingInput) == 0 && len(rules.Error) == 0 && len(rules.IdlePrompt) == 0 {
		rules = DefaultRuleset()
	}
	return &Engine{rules: rules}
}

// Input bundles everything Classify needs to decide the next status.
type Input struct {
	Capture string
	PreviousCapture string
	PreviousStatus model.Status
	// LastChangeElapsed is the time since Capture last differed from the
	// previous one seen for this agent; zero means "just changed now".
	LastChangeElapsed time.Duration
}

// Classify applies the ordered rules from first match wins.
func (e *Engine) Classify(in Input) model.Status {
	lines:= strings.Split(in.Capture, "\n")

	if _, ok:= anyMatch(e.rules.WaitingInput, lines); ok {
		return model.StatusWaitingInput
	}

	if _, ok:= anyMatch(e.rules.Error, lines); ok {
		return model.StatusError
	}

	changed:= normalize(in.Capture) != normalize(in.PreviousCapture)
	if changed && in.LastChangeElapsed <= ActivityWindow {
		return model.StatusWorking
	}

	if !changed {
		if _, ok:= anyMatch(e.rules.IdlePrompt, lines); ok {
			return model.StatusIdle
		}
	}

	if in.PreviousStatus.Valid() {
		return in.PreviousStatus
	}
	return model.StatusStarting
}

// normalize strips trailing blank lines so capture comparisons ignore
// cosmetic cursor-blink or trailing-newline noise, per rule 3.
func normalize(s string) string {
	lines:= strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimRight(lines[len(lines)-1], " \t") == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
