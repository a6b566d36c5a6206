package connector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/model"
)

// HandleInbound implements InboundSink: every connector calls this for
// each platform message it receives. It applies the
// inbound routing rules in order.
func (r *Router) HandleInbound(ctx context.Context, msg InboundMessage) {
	inboundProjects:= r.boundProjects(msg.ConnectorID, msg.ChannelID, true)
	if len(inboundProjects) == 0 {
		// Rule 1: no inbound binding for this (connector, channel).
		return
	}

	if msg.ButtonCallback != "" {
		r.handleButtonCallback(ctx, msg)
		return
	}

	if cmd, ok:= parseCommand(msg.Text); ok {
		reply:= r.runCommand(ctx, cmd)
		r.replyTo(ctx, msg.ConnectorID, msg.ChannelID, reply)
		return
	}

	if project, task, ok:= parseProjectPrefix(msg.Text); ok {
		r.routeToProject(ctx, msg, project, task)
		return
	}

	if len(inboundProjects) == 1 {
		// Rule 4: single-bound channel, bare message auto-routes.
		r.routeToProject(ctx, msg, inboundProjects[0], msg.Text)
		return
	}

	r.replyTo(ctx, msg.ConnectorID, msg.ChannelID, "ambiguous channel: prefix with @project")
}

// parseProjectPrefix recognizes "@project text" and "@project:id text",
// rule 3. The first return value is the whole target ("project" or
// "project:id", split later by routeToProject); the second is the
// remaining message text, empty when there is none.
func parseProjectPrefix(text string) (project, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "@") {
		return "", "", false
	}
	fields:= strings.SplitN(text[1:], " ", 2)
	target:= fields[0]
	rest = ""
	if len(fields) > 1 {
		rest = fields[1]
	}
	return target, rest, true
}

// routeToProject sends text to the most recent non-stopped agent in the
// named project, or to an explicit "project:id" target. Attachments are
// staged into the target agent's workspace.media/ before text delivery.
func (r *Router) routeToProject(ctx context.Context, msg InboundMessage, target, text string) {
	project:= target
	explicitID:= ""
	if idx:= strings.Index(target, ":"); idx >= 0 {
		project = target[:idx]
		explicitID = target[idx+1:]
	}

	var targetAgent *model.Agent
	if explicitID != "" {
		a, ok:= r.agents.Get(explicitID)
		if ok && a.Project == project {
			targetAgent = a
		}
	} else {
		for _, a:= range r.agents.ByProject(project) {
			if !a.Status.Terminal() {
				targetAgent = a
				break
			}
		}
	}
	if targetAgent == nil {
		r.replyTo(ctx, msg.ConnectorID, msg.ChannelID, "no active agent for "+target)
		return
	}

	for _, att:= range msg.Attachments {
		if _, err:= r.mediaPathFor(targetAgent.WorkspacePath, att); err != nil {
			r.logger.Warn("failed to stage inbound attachment", zap.Error(err), zap.String("agent_id", targetAgent.ID))
		}
	}

	if text == "" {
		return
	}
	if err:= r.agents.SendMessage(ctx, targetAgent.ID, text); err != nil {
		r.logger.Warn("send_message failed", zap.Error(err), zap.String("agent_id", targetAgent.ID))
		r.replyTo(ctx, msg.ConnectorID, msg.ChannelID, "failed to deliver message")
	}
}

// handleButtonCallback maps an inbound button press to a send-control
// action rule 6. The callback id is expected to
// carry the target agent id, e.g. "approve:a1b2c3".
func (r *Router) handleButtonCallback(ctx context.Context, msg InboundMessage) {
	parts:= strings.SplitN(msg.ButtonCallback, ":", 2)
	if len(parts) != 2 {
		return
	}
	action, agentID:= parts[0], parts[1]
	if err:= r.agents.SendControl(ctx, agentID, action); err != nil {
		r.logger.Warn("send_control from button callback failed", zap.Error(err), zap.String("agent_id", agentID))
	}
}

func (r *Router) replyTo(ctx context.Context, connectorID, channelID, text string) {
	r.mu.Lock()
	inst, ok:= r.instances[connectorID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err:= inst.platform.SendText(ctx, channelID, text, nil); err != nil {
		r.logger.Warn("reply send failed", zap.Error(err), zap.String("connector_id", connectorID))
	}
}
