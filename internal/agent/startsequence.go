package agent

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/inference"
	"github.com/agentforge/agentforge/internal/model"
)

// startSequenceTimeout bounds how long a single wait_for_idle directive may
// poll before giving up per the "failures downgrade to
// logged warnings; do not abort the agent".
const startSequenceTimeout = 60 * time.Second

const startSequencePollInterval = 500 * time.Millisecond

// replayStartSequence walks a profile's post-boot directives against a
// freshly spawned agent's session. It runs in its own goroutine so Spawn
// can return as soon as the session exists.
func (m *Manager) replayStartSequence(ctx context.Context, agentID string, seq []model.StartDirective) {
	for _, d:= range seq {
		m.mu.Lock()
		a, ok:= m.agents[agentID]
		m.mu.Unlock()
		if !ok || a.Status.Terminal() {
			return
		}

		switch d.Action {
			case "wait":
			secs, err:= strconv.Atoi(d.Value)
			if err != nil || secs < 0 {
				m.logger.Warn("start sequence: invalid wait value", zap.String("agent_id", agentID), zap.String("value", d.Value))
				continue
			}
			time.Sleep(time.Duration(secs) * time.Second)

			case "send":
			if err:= m.SendMessage(ctx, agentID, d.Value); err != nil {
				m.logger.Warn("start sequence: send failed", zap.Error(err), zap.String("agent_id", agentID))
			}

			case "wait_for_idle":
			m.waitForIdle(ctx, agentID)

			default:
			m.logger.Warn("start sequence: unknown action", zap.String("agent_id", agentID), zap.String("action", d.Action))
		}
	}
}

func (m *Manager) waitForIdle(ctx context.Context, agentID string) {
	deadline:= time.Now().Add(startSequenceTimeout)
	var previousCapture string
	var previousStatus model.Status = model.StatusStarting
	lastChange:= time.Now()

	for time.Now().Before(deadline) {
		m.mu.Lock()
		a, ok:= m.agents[agentID]
		m.mu.Unlock()
		if !ok {
			return
		}

		capture, err:= m.term.Capture(a.SessionName)
		if err != nil {
			m.logger.Warn("start sequence: capture failed during wait_for_idle", zap.Error(err), zap.String("agent_id", agentID))
			time.Sleep(startSequencePollInterval)
			continue
		}

		if capture != previousCapture {
			lastChange = time.Now()
		}

		status:= m.engine.Classify(inference.Input{
				Capture: capture,
				PreviousCapture: previousCapture,
				PreviousStatus: previousStatus,
				LastChangeElapsed: time.Since(lastChange),
		})

		if status == model.StatusIdle || status == model.StatusWaitingInput {
			return
		}

		previousCapture = capture
		previousStatus = status
		time.Sleep(startSequencePollInterval)
	}
	m.logger.Warn("start sequence: wait_for_idle timed out", zap.String("agent_id", agentID))
}
