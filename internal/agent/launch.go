package agent

import (
	"fmt"
	"strings"

	"github.com/agentforge/agentforge/internal/model"
)

// LaunchCommand is a fully composed command line ready to hand to the
// terminal multiplexer, plus the environment it should run with.
type LaunchCommand struct {
	Command []string
	Env map[string]string
}

// buildLaunchCommand composes the agent process invocation from
// configuration defaults, an optional sandbox prefix, and the profile's
// system prompt.
func buildLaunchCommand(baseCommand []string, sandboxPrefix []string, profile *model.Profile, env map[string]string) LaunchCommand {
	cmd:= make([]string, 0, len(sandboxPrefix)+len(baseCommand)+2)
	cmd = append(cmd, sandboxPrefix...)
	cmd = append(cmd, baseCommand...)

	if profile != nil && profile.SystemPrompt != "" {
		cmd = append(cmd, "--append-system-prompt", profile.SystemPrompt)
	}

	merged:= make(map[string]string, len(env))
	for k, v:= range env {
		merged[k] = v
	}

	return LaunchCommand{Command: cmd, Env: merged}
}

// controlSequence translates the send-control actions into the
// literal text and control keys the terminal multiplexer should inject.
// The first return value is text to type (may be empty); the second is a
// named control key, or "" if none applies.
func controlSequence(action string) (text string, control string, err error) {
	switch strings.ToLower(action) {
		case "approve":
		return "1", "enter", nil
		case "reject":
		return "2", "enter", nil
		case "always-allow":
		return "2", "enter", nil
		case "interrupt":
		return "", "ctrl-c", nil
		case "restart":
		return "", "ctrl-d", nil
		case "up":
		return "", "up", nil
		case "down":
		return "", "down", nil
		case "left":
		return "", "left", nil
		case "right":
		return "", "right", nil
		case "enter":
		return "", "enter", nil
		case "escape":
		return "", "escape", nil
		case "tab":
		return "", "tab", nil
		default:
		return "", "", fmt.Errorf("agent: unknown control action %q", action)
	}
}
