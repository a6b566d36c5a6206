package connector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/agent"
	"github.com/agentforge/agentforge/internal/model"
	"github.com/agentforge/agentforge/internal/platform/config"
	"github.com/agentforge/agentforge/internal/platform/logger"
)

// binding is a resolved (connector, channel) → project routing rule,
// flattened out of config.ProjectConfig.Channels for O(1) inbound lookup.
// A channel may bind more than one project; when exactly one bound
// project accepts inbound, rule 4 auto-routes bare messages to it.
type binding struct {
	project string
	inbound bool
	outbound bool
}

// instance pairs a running Platform with its configured entry and current
// lifecycle state per the connector state machine.
type instance struct {
	id string
	platform Platform
	entry config.ConnectorEntry
	state model.ConnectorState
}

// Router is the Connector Router: it owns every configured connector
// instance, routes inbound platform traffic to the Agent Manager, and
// notifies bound channels of agent transitions. Constructed once by the
// composition root and handed to connectors as their InboundSink, per
// the "process-wide mutable registries become explicit
// services" re-architecture note.
type Router struct {
	agents *agent.Manager
	logger *logger.Logger
	factory map[string]Factory

	mu sync.Mutex
	cfg *config.Config
	instances map[string]*instance
	bindings map[bindingKey][]binding
	notified map[string]bool
}

type bindingKey struct {
	connectorID string
	channelID string
}

// New builds a Router. factory maps a connector "type" tag (e.g.
	// "telegram", "discord") to the constructor that builds its Platform.
func New(cfg *config.Config, agents *agent.Manager, factory map[string]Factory, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Default()
	}
	r:= &Router{
		agents: agents,
		logger: log.WithFields(zap.String("component", "connector-router")),
		factory: factory,
		instances: make(map[string]*instance),
		notified: make(map[string]bool),
	}
	r.rebuildBindings(cfg)
	r.cfg = cfg
	return r
}

// Start constructs and starts every enabled connector instance.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	cfg:= r.cfg
	r.mu.Unlock()

	var firstErr error
	for id, entry:= range cfg.Connectors {
		if !entry.Enabled {
			r.setState(id, model.ConnectorDisabled)
			continue
		}
		if err:= r.startOne(ctx, id, entry); err != nil {
			r.logger.Error("connector failed to start", zap.String("connector_id", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Stop() stops every running connector instance.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	instances:= make([]*instance, 0, len(r.instances))
	for _, inst:= range r.instances {
		instances = append(instances, inst)
	}
	r.mu.Unlock()

	var firstErr error
	for _, inst:= range instances {
		r.setState(inst.id, model.ConnectorStopping)
		if err:= inst.platform.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		r.setState(inst.id, model.ConnectorStopped)
	}
	return firstErr
}

// Reconcile swaps in newCfg and starts added connectors, stops removed
// ones, and restarts any whose credentials changed — section
// 4.9's hot-reload contract.
func (r *Router) Reconcile(ctx context.Context, newCfg *config.Config) error {
	r.mu.Lock()
	oldCfg:= r.cfg
	r.mu.Unlock()

	added, removed, changed:= diffConnectors(oldCfg.Connectors, newCfg.Connectors)

	for _, id:= range removed {
		r.logger.Info("connector removed by reload", zap.String("connector_id", id))
		r.stopOne(ctx, id)
	}
	for _, id:= range changed {
		r.logger.Info("connector credentials changed, restarting", zap.String("connector_id", id))
		r.stopOne(ctx, id)
		entry:= newCfg.Connectors[id]
		if entry.Enabled {
			if err:= r.startOne(ctx, id, entry); err != nil {
				r.logger.Error("connector restart failed", zap.String("connector_id", id), zap.Error(err))
			}
		} else {
			r.setState(id, model.ConnectorDisabled)
		}
	}
	for _, id:= range added {
		entry:= newCfg.Connectors[id]
		if !entry.Enabled {
			r.setState(id, model.ConnectorDisabled)
			continue
		}
		if err:= r.startOne(ctx, id, entry); err != nil {
			r.logger.Error("connector start failed", zap.String("connector_id", id), zap.Error(err))
		}
	}

	r.mu.Lock()
	r.cfg = newCfg
	r.mu.Unlock()
	r.rebuildBindings(newCfg)
	return nil
}

func (r *Router) startOne(ctx context.Context, id string, entry config.ConnectorEntry) error {
	factory, ok:= r.factory[entry.Type]
	if !ok {
		return fmt.Errorf("connector %s: unknown type %q", id, entry.Type)
	}
	r.setState(id, model.ConnectorStarting)
	platform, err:= factory(id, entry.Credentials, entry.Settings, r)
	if err != nil {
		r.setState(id, model.ConnectorStopped)
		return err
	}
	if err:= platform.Start(ctx); err != nil {
		r.setState(id, model.ConnectorReconnecting)
		return err
	}
	r.mu.Lock()
	r.instances[id] = &instance{id: id, platform: platform, entry: entry, state: model.ConnectorRunning}
	r.mu.Unlock()
	r.setState(id, model.ConnectorRunning)
	return nil
}

func (r *Router) stopOne(ctx context.Context, id string) {
	r.mu.Lock()
	inst, ok:= r.instances[id]
	if ok {
		delete(r.instances, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.setState(id, model.ConnectorStopping)
	if err:= inst.platform.Stop(ctx); err != nil {
		r.logger.Warn("connector stop failed", zap.String("connector_id", id), zap.Error(err))
	}
	r.setState(id, model.ConnectorStopped)
}

func (r *Router) setState(id string, s model.ConnectorState) {
	r.mu.Lock()
	if inst, ok:= r.instances[id]; ok {
		inst.state = s
	}
	r.mu.Unlock()
}

func diffConnectors(old, new map[string]config.ConnectorEntry) (added, removed, changed []string) {
	for id:= range new {
		if _, ok:= old[id]; !ok {
			added = append(added, id)
		}
	}
	for id:= range old {
		if _, ok:= new[id]; !ok {
			removed = append(removed, id)
		}
	}
	for id, oldEntry:= range old {
		newEntry, ok:= new[id]
		if !ok {
			continue
		}
		if !credentialsEqual(oldEntry.Credentials, newEntry.Credentials) {
			changed = append(changed, id)
		}
	}
	return added, removed, changed
}

func credentialsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v:= range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (r *Router) rebuildBindings(cfg *config.Config) {
	bindings:= make(map[bindingKey][]binding)
	for projectName, proj:= range cfg.Projects {
		for _, ch:= range proj.Channels {
			key:= bindingKey{connectorID: ch.ConnectorID, channelID: ch.ChannelID}
			bindings[key] = append(bindings[key], binding{
					project: projectName,
					inbound: ch.Inbound,
					outbound: ch.Outbound,
			})
		}
	}
	r.mu.Lock()
	r.bindings = bindings
	r.mu.Unlock()
}

// boundProjects returns the projects bound to a channel, inbound only
// when inboundOnly is true.
func (r *Router) boundProjects(connectorID, channelID string, inboundOnly bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b:= range r.bindings[bindingKey{connectorID: connectorID, channelID: channelID}] {
		if inboundOnly && !b.inbound {
			continue
		}
		out = append(out, b.project)
	}
	return out
}

// outboundChannelsFor returns every (connectorID, channelID) bound to
// notify a project outbound.
func (r *Router) outboundChannelsFor(project string) []bindingKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bindingKey
	for key, bs:= range r.bindings {
		for _, b:= range bs {
			if b.project == project && b.outbound {
				out = append(out, key)
			}
		}
	}
	return out
}

// mediaPathFor stages an inbound attachment under the target agent's
// workspace.media/ directory routing rule 5.
func (r *Router) mediaPathFor(workspacePath string, att Attachment) (string, error) {
	dir:= filepath.Join(workspacePath, ".media")
	if err:= os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name:= att.FileName
	if name == "" {
		name = uuid.NewString()
	}
	dest:= filepath.Join(dir, name)
	if err:= copyFile(att.LocalPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	data, err:= os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
