package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/model"
)

// Recover implements the boot-time recovery: read every
// non-stopped snapshot, and either re-adopt a still-live session or mark
// the agent stopped with a crash event.
func (m *Manager) Recover(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	snaps, err:= m.store.LoadSnapshots(ctx)
	if err != nil {
		return err
	}

	for _, snap:= range snaps {
		if snap.Status == model.StatusStopped {
			continue
		}

		if m.term.Exists(snap.SessionName) {
			a:= &model.Agent{
				ID: snap.AgentID,
				Project: snap.Project,
				SessionName: snap.SessionName,
				WorkspacePath: snap.Location,
				BranchName: snap.BranchName,
				Status: snap.Status,
				CreatedAt: snap.CreatedAt,
				LastActivityAt: snap.LastActivity,
				Task: snap.Task,
				ProfileName: snap.Profile,
				SubAgentCount: snap.SubAgentCount,
				Parked: snap.Parked,
				LastResponse: snap.LastResponse,
				LastUserMessage: snap.LastUserMessage,
			}
			m.mu.Lock()
			m.agents[a.ID] = a
			m.mu.Unlock()
			m.logger.Info("recovered live agent", zap.String("agent_id", a.ID), zap.String("session_name", a.SessionName))
			continue
		}

		m.logger.Warn("agent session missing at boot, marking stopped", zap.String("agent_id", snap.AgentID))
		snap.Status = model.StatusStopped
		if err:= m.store.SaveSnapshot(ctx, snap); err != nil {
			m.logger.Warn("failed to persist crash snapshot", zap.Error(err), zap.String("agent_id", snap.AgentID))
		}
		m.logEvent(ctx, snap.AgentID, snap.Project, model.EventCrash, map[string]interface{}{
				"reason": "session not found at boot",
		})
	}
	return nil
}

// StopAll ends every live agent's session, used during a coordinated
// shutdown. Workspaces, branches and snapshots are left intact; since the
// sessions are gone, the next boot's Recover marks these agents stopped.
func (m *Manager) StopAll(ctx context.Context) {
	for _, a := range m.List() {
		if a.Status.Terminal() {
			continue
		}
		if err:= m.term.Kill(a.SessionName); err != nil {
			m.logger.Warn("shutdown: failed to kill session", zap.Error(err), zap.String("agent_id", a.ID))
		}
	}
}
