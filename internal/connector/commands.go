package connector

import (
	"context"
	"fmt"
	"strings"
)

// command is a parsed leading-"/" verb with its argument tokens.
type command struct {
	verb string
	args []string
}

// parseCommand recognizes rule 2's leading-"/"
// commands. ok is false for anything not starting with "/".
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	fields:= strings.Fields(text[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	return command{verb: fields[0], args: fields[1:]}, true
}

// runCommand dispatches a parsed command against the Agent Manager and
// returns the reply text to send back to the originating channel.
func (r *Router) runCommand(ctx context.Context, cmd command) string {
	switch cmd.verb {
		case "status":
		return r.cmdStatus(cmd.args)
		case "projects":
		return r.cmdProjects()
		case "spawn":
		return r.cmdSpawn(ctx, cmd.args)
		case "kill":
		return r.cmdKill(ctx, cmd.args)
		default:
		return fmt.Sprintf("unknown command: /%s", cmd.verb)
	}
}

func (r *Router) cmdStatus(args []string) string {
	if len(args) == 0 {
		agents := r.agents.List()
		if len(agents) == 0 {
			return "no agents running"
		}
		var b strings.Builder
		for _, a:= range agents {
			fmt.Fprintf(&b, "%s [%s] %s: %s\n", a.ID, a.Project, a.Status, a.Task)
		}
		return b.String()
	}
	a, ok:= r.agents.Get(args[0])
	if !ok {
		return fmt.Sprintf("no such agent: %s", args[0])
	}
	return fmt.Sprintf("%s [%s] %s: %s", a.ID, a.Project, a.Status, a.Task)
}

func (r *Router) cmdProjects() string {
	r.mu.Lock()
	cfg:= r.cfg
	r.mu.Unlock()
	if len(cfg.Projects) == 0 {
		return "no projects configured"
	}
	var b strings.Builder
	for name, p:= range cfg.Projects {
		fmt.Fprintf(&b, "%s: %s\n", name, p.Description)
	}
	return b.String()
}

func (r *Router) cmdSpawn(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: /spawn project [task]"
	}
	project:= args[0]
	task:= strings.Join(args[1:], " ")
	a, err:= r.agents.Spawn(ctx, project, task, "")
	if err != nil {
		return fmt.Sprintf("spawn failed: %v", err)
	}
	return fmt.Sprintf("spawned %s in %s", a.ID, project)
}

func (r *Router) cmdKill(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: /kill id"
	}
	if err:= r.agents.Kill(ctx, args[0]); err != nil {
		return fmt.Sprintf("kill failed: %v", err)
	}
	return fmt.Sprintf("killed %s", args[0])
}
