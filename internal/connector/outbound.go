package connector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/model"
)

// NotifyTransition implements both agent.TransitionNotifier (called
	// directly by the Agent Manager on spawn/kill) and scheduler.Notifier
// (called by the Scheduler on every other status change), giving every
// taxonomic outbound notice from a single formatting
// path regardless of which caller observed the transition.
func (r *Router) NotifyTransition(ctx context.Context, snap model.Snapshot, previous model.Status) {
	r.mu.Lock()
	dedupeKey:= snap.AgentID + ":" + string(snap.Status)
	already:= r.notified[dedupeKey]
	if already {
		r.mu.Unlock()
		return
	}
	r.notified[dedupeKey] = true
	delete(r.notified, snap.AgentID+":"+string(previous))
	r.mu.Unlock()

	title, body, buttons:= formatNotice(snap, previous)
	if title == "" {
		return
	}

	for _, key:= range r.outboundChannelsFor(snap.Project) {
		r.mu.Lock()
		inst, ok:= r.instances[key.connectorID]
		r.mu.Unlock()
		if !ok {
			continue
		}
		text:= title
		if body != "" {
			text = title + "\n" + body
		}
		if err:= inst.platform.SendText(ctx, key.channelID, text, buttons); err != nil {
			r.logger.Warn("outbound notification failed", zap.Error(err),
				zap.String("connector_id", key.connectorID), zap.String("agent_id", snap.AgentID))
		}
	}
}

// formatNotice renders the taxonomic outbound notice for a transition;
// content is platform-agnostic text plus optional action buttons, left
// to each Platform implementation to render in its own idiom.
func formatNotice(snap model.Snapshot, previous model.Status) (title, body string, buttons []Button) {
	switch {
		case previous == model.Status(""):
		return fmt.Sprintf("agent %s started", snap.AgentID), fmt.Sprintf("project %s: %s", snap.Project, snap.Task), nil
		case snap.Status == model.StatusStopped:
		return fmt.Sprintf("agent %s stopped", snap.AgentID), "", nil
		case snap.Status == model.StatusWaitingInput:
		return fmt.Sprintf("agent %s is waiting for input", snap.AgentID), truncate(snap.LastResponse, 400), []Button{
			{Label: "Approve", CallbackID: "approve:" + snap.AgentID},
			{Label: "Reject", CallbackID: "reject:" + snap.AgentID},
			{Label: "Interrupt", CallbackID: "interrupt:" + snap.AgentID},
		}
		case snap.Status == model.StatusIdle:
		return fmt.Sprintf("agent %s is idle", snap.AgentID), truncate(snap.LastResponse, 800), nil
		case snap.Status == model.StatusError:
		return fmt.Sprintf("agent %s hit an error", snap.AgentID), truncate(snap.LastResponse, 400), nil
		default:
		return "", "", nil
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
