// Package agent implements the Agent Manager from: the
// sole owner of the in-memory agent table and the gateway through which
// every mutation of a supervised agent process must flow.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/inference"
	"github.com/agentforge/agentforge/internal/model"
	"github.com/agentforge/agentforge/internal/platform/apperror"
	"github.com/agentforge/agentforge/internal/platform/config"
	"github.com/agentforge/agentforge/internal/platform/logger"
	"github.com/agentforge/agentforge/internal/store"
	"github.com/agentforge/agentforge/internal/term"
	"github.com/agentforge/agentforge/internal/workspace"
)

// Broadcaster is the narrow slice of the Broadcast Hub the manager needs:
// publishing an agent_update after any mutation. Defined here to avoid a
// dependency cycle with the hub package, which in turn depends on agent
// snapshots flowing out of this manager.
type Broadcaster interface {
	PublishAgentUpdate(snap model.Snapshot)
}

// TransitionNotifier is the narrow slice of the Connector Router the
// manager drives outbound agent-started/agent-stopped notifications
// through (the outbound taxonomy); all other
// transitions are driven by the Scheduler, which sees every status
// change, not just spawn/kill. previous is the empty Status for a fresh
// spawn, signaling "no prior state".
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, snap model.Snapshot, previous model.Status)
}

// idLock is a refcounted per-agent mutex, mirroring the workspace
// package's per-repository lock.
type idLock struct {
	mu sync.Mutex
	ref int
}

// Manager owns the in-memory agent table and every operation that spawns,
// kills, restarts, or messages an agent.
type Manager struct {
	cfg *config.Config
	term *term.Multiplexer
	ws *workspace.Manager
	store *store.Store
	engine *inference.Engine
	logger *logger.Logger
	hub Broadcaster
	notifier TransitionNotifier

	mu sync.Mutex
	agents map[string]*model.Agent
	idLocks map[string]*idLock
	projLocks map[string]*sync.Mutex
}

// Deps bundles the Manager's collaborators.
type Deps struct {
	Config *config.Config
	Multiplexer *term.Multiplexer
	Workspace *workspace.Manager
	Store *store.Store
	Engine *inference.Engine
	Logger *logger.Logger
	Hub Broadcaster
	Notifier TransitionNotifier
}

// New builds a Manager with an empty agent table.
func New(d Deps) *Manager {
	log:= d.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		cfg: d.Config,
		term: d.Multiplexer,
		ws: d.Workspace,
		store: d.Store,
		engine: d.Engine,
		logger: log.WithFields(zap.String("component", "agent-manager")),
		hub: d.Hub,
		notifier: d.Notifier,
		agents: make(map[string]*model.Agent),
		idLocks: make(map[string]*idLock),
		projLocks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockID(id string) *idLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok:= m.idLocks[id]
	if !ok {
		l = &idLock{}
		m.idLocks[id] = l
	}
	l.ref++
	return l
}

func (m *Manager) unlockID(id string, l *idLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ref--
	if l.ref <= 0 {
		delete(m.idLocks, id)
	}
}

func (m *Manager) projectLock(project string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok:= m.projLocks[project]
	if !ok {
		l = &sync.Mutex{}
		m.projLocks[project] = l
	}
	return l
}

func (m *Manager) liveCount(project string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n:= 0
	for _, a:= range m.agents {
		if a.Project == project && !a.Status.Terminal() {
			n++
		}
	}
	return n
}

func (m *Manager) maxAgents(project string) int {
	if p, ok:= m.cfg.Projects[project]; ok && p.MaxAgents > 0 {
		return p.MaxAgents
	}
	if m.cfg.Defaults.MaxAgentsPerProject > 0 {
		return m.cfg.Defaults.MaxAgentsPerProject
	}
	return 3
}

func (m *Manager) broadcast(a *model.Agent) {
	if m.hub == nil {
		return
	}
	m.hub.PublishAgentUpdate(model.SnapshotOf(a))
}

func (m *Manager) logEvent(ctx context.Context, agentID, project string, kind model.EventKind, payload map[string]interface{}) {
	if m.store == nil {
		return
	}
	if _, err:= m.store.LogEvent(ctx, model.Event{
			AgentID: agentID,
			Project: project,
			Kind: kind,
			Payload: payload,
			Timestamp: time.Now(),
	}); err != nil {
		m.logger.Warn("failed to log event", zap.Error(err), zap.String("agent_id", agentID), zap.String("kind", string(kind)))
	}
}

func (m *Manager) saveSnapshot(ctx context.Context, a *model.Agent) {
	if m.store == nil {
		return
	}
	if err:= m.store.SaveSnapshot(ctx, model.SnapshotOf(a)); err != nil {
		m.logger.Warn("failed to save snapshot", zap.Error(err), zap.String("agent_id", a.ID))
	}
}

// Spawn provisions a workspace and starts a new agent session, per
//.
func (m *Manager) Spawn(ctx context.Context, project, task, profileName string) (*model.Agent, error) {
	projCfg, ok:= m.cfg.Projects[project]
	if !ok {
		return nil, apperror.New(apperror.KindConfig, "spawn", fmt.Errorf("unknown project %q", project))
	}

	lock:= m.projectLock(project)
	lock.Lock()
	defer lock.Unlock()

	if m.liveCount(project) >= m.maxAgents(project) {
		return nil, apperror.New(apperror.KindSession, "spawn", apperror.ErrCapExceeded)
	}

	id, err:= NewID()
	if err != nil {
		return nil, apperror.New(apperror.KindSession, "spawn", err)
	}

	var profile *model.Profile
	if profileName != "" {
		pc, ok:= m.cfg.Profiles[profileName]
		if !ok {
			return nil, apperror.New(apperror.KindConfig, "spawn", apperror.ErrInvalidProfile)
		}
		profile = profileFromConfig(profileName, pc)
	}

	instructions:= m.cfg.Defaults.AgentInstructions
	projInstructions:= projCfg.AgentInstructions
	if profile != nil && profile.Instructions != "" {
		projInstructions = projInstructions + "\n\n" + profile.Instructions
	}

	sandbox:= projCfg.Sandbox
	if sandbox == "" {
		sandbox = m.cfg.Defaults.Sandbox
	}

	ws, err:= m.ws.Provision(ctx, workspace.CreateRequest{
			AgentID: id,
			Project: project,
			RepositoryPath: projCfg.Path,
			DefaultBranch: projCfg.DefaultBranch,
			Task: task,
			GlobalInstructions: instructions,
			ProjectInstructions: projInstructions,
			ContextFiles: projCfg.ContextFiles,
			Sandbox: sandbox,
	})
	if err != nil {
		return nil, apperror.New(apperror.KindProvision, "spawn", err)
	}

	sessionName:= term.SessionName(project, id)
	baseCommand:= splitCommand(m.cfg.Defaults.ClaudeCommand)
	var sandboxPrefix []string
	if ws.ContainerID != "" {
		sandboxPrefix = (&workspace.DockerSandbox{}).ExecPrefix(ws.ContainerID)
	}
	launch:= buildLaunchCommand(baseCommand, sandboxPrefix, profile, m.cfg.Defaults.ClaudeEnv)

	if err:= m.term.Create(ctx, sessionName, ws.Path, launch.Command, envSlice(launch.Env), 120, 40); err != nil {
		_ = m.ws.Teardown(ctx, ws, projCfg.Path)
		return nil, apperror.New(apperror.KindSession, "spawn", apperror.ErrSessionFail)
	}

	now:= time.Now()
	profileLabel:= ""
	if profile != nil {
		profileLabel = profile.Name
	}
	a:= &model.Agent{
		ID: id,
		Project: project,
		SessionName: sessionName,
		WorkspacePath: ws.Path,
		BranchName: ws.Branch,
		Status: model.StatusStarting,
		CreatedAt: now,
		LastActivityAt: now,
		Task: task,
		ProfileName: profileLabel,
	}

	m.mu.Lock()
	m.agents[id] = a
	m.mu.Unlock()

	m.logEvent(ctx, id, project, model.EventSpawned, map[string]interface{}{"task": task, "profile": profileLabel})
	m.saveSnapshot(ctx, a)
	m.broadcast(a)
	if m.notifier != nil {
		m.notifier.NotifyTransition(ctx, model.SnapshotOf(a), model.Status(""))
	}

	if profile != nil && len(profile.StartSequence) > 0 {
		go m.replayStartSequence(context.Background(), id, profile.StartSequence)
	}

	return a.Clone(), nil
}

// Kill ends an agent's session and removes its workspace.
func (m *Manager) Kill(ctx context.Context, id string) error {
	lock:= m.lockID(id)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.unlockID(id, lock)
	}()

	m.mu.Lock()
	a, ok:= m.agents[id]
	m.mu.Unlock()
	if !ok {
		return apperror.New(apperror.KindSession, "kill", apperror.ErrNotFound)
	}

	if err:= m.term.Kill(a.SessionName); err != nil {
		m.logger.Warn("kill: session teardown failed", zap.Error(err), zap.String("agent_id", id))
	}

	projCfg:= m.cfg.Projects[a.Project]
	ws:= &workspace.Workspace{AgentID: a.ID, Path: a.WorkspacePath, Branch: a.BranchName}
	if err:= m.ws.Teardown(ctx, ws, projCfg.Path); err != nil {
		m.logger.Warn("kill: workspace teardown failed", zap.Error(err), zap.String("agent_id", id))
	}

	previousStatus:= a.Status
	m.mu.Lock()
	a.Status = model.StatusStopped
	a.LastActivityAt = time.Now()
	delete(m.agents, id)
	m.mu.Unlock()

	m.logEvent(ctx, id, a.Project, model.EventKilled, nil)
	m.saveSnapshot(ctx, a)
	m.broadcast(a)
	if m.notifier != nil {
		m.notifier.NotifyTransition(ctx, model.SnapshotOf(a), previousStatus)
	}
	return nil
}

// Restart kills an agent and spawns a replacement with the same
// (project, task, profile), returning the new agent under a new id.
func (m *Manager) Restart(ctx context.Context, id string) (*model.Agent, error) {
	m.mu.Lock()
	a, ok:= m.agents[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperror.New(apperror.KindSession, "restart", apperror.ErrNotFound)
	}
	project, task, profile:= a.Project, a.Task, a.ProfileName

	if err:= m.Kill(ctx, id); err != nil {
		return nil, err
	}
	m.logEvent(ctx, id, project, model.EventRestarted, nil)
	return m.Spawn(ctx, project, task, profile)
}

// SendMessage injects text followed by Enter into a running agent's session.
func (m *Manager) SendMessage(ctx context.Context, id, text string) error {
	lock:= m.lockID(id)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.unlockID(id, lock)
	}()

	m.mu.Lock()
	a, ok:= m.agents[id]
	m.mu.Unlock()
	if !ok {
		return apperror.New(apperror.KindSession, "send_message", apperror.ErrNotFound)
	}
	if a.Status.Terminal() {
		return apperror.New(apperror.KindSession, "send_message", apperror.ErrTerminated)
	}

	if err:= m.term.SendText(ctx, a.SessionName, text); err != nil {
		return apperror.New(apperror.KindSession, "send_message", err)
	}
	if err:= m.term.SendControl(ctx, a.SessionName, term.ControlEnter); err != nil {
		return apperror.New(apperror.KindSession, "send_message", err)
	}

	m.mu.Lock()
	a.LastUserMessage = text
	a.LastActivityAt = time.Now()
	m.mu.Unlock()

	m.logEvent(ctx, id, a.Project, model.EventUserMessage, map[string]interface{}{"text": text})
	m.saveSnapshot(ctx, a)
	return nil
}

// SendControl translates a named action into key sequences and injects
// them into the agent's session.
func (m *Manager) SendControl(ctx context.Context, id, action string) error {
	lock:= m.lockID(id)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.unlockID(id, lock)
	}()

	m.mu.Lock()
	a, ok:= m.agents[id]
	m.mu.Unlock()
	if !ok {
		return apperror.New(apperror.KindSession, "send_control", apperror.ErrNotFound)
	}
	if a.Status.Terminal() {
		return apperror.New(apperror.KindSession, "send_control", apperror.ErrTerminated)
	}

	text, control, err:= controlSequence(action)
	if err != nil {
		return apperror.New(apperror.KindSession, "send_control", err)
	}
	if text != "" {
		if err:= m.term.SendText(ctx, a.SessionName, text); err != nil {
			return apperror.New(apperror.KindSession, "send_control", err)
		}
	}
	if control != "" {
		if err:= m.term.SendControl(ctx, a.SessionName, term.Control(control)); err != nil {
			return apperror.New(apperror.KindSession, "send_control", err)
		}
	}

	m.mu.Lock()
	a.LastActivityAt = time.Now()
	m.mu.Unlock()
	return nil
}

// List returns an immutable snapshot of every known agent.
func (m *Manager) List() []*model.Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out:= make([]*model.Agent, 0, len(m.agents))
	for _, a:= range m.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns a single agent's immutable snapshot.
func (m *Manager) Get(id string) (*model.Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok:= m.agents[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// ByProject returns every known agent for a project, most recently
// created first — used by the Connector Router's @project routing rule.
func (m *Manager) ByProject(project string) []*model.Agent {
	all := m.List()
	out:= make([]*model.Agent, 0, len(all))
	for _, a:= range all {
		if a.Project == project {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Mutate applies fn to the in-memory agent under its id lock, and is used
// by the scheduler to update status/last_response without reaching past
// the manager's API (the "direct access is forbidden").
func (m *Manager) Mutate(ctx context.Context, id string, fn func(a *model.Agent)) (*model.Agent, bool) {
	lock:= m.lockID(id)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.unlockID(id, lock)
	}()

	m.mu.Lock()
	a, ok:= m.agents[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	fn(a)
	m.saveSnapshot(ctx, a)
	m.broadcast(a)
	return a.Clone(), true
}

// SetNotifier wires the Connector Router in after construction, breaking
// the Manager/Router construction cycle (the Router needs a live *Manager
	// to route into, and the Manager needs the Router as its notifier).
func (m *Manager) SetNotifier(n TransitionNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// UpdateConfig swaps the project/profile/connector table a running
// Manager consults, for the config-reload endpoint in.
func (m *Manager) UpdateConfig(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// RecordSubAgentEvent implements the hook endpoint
// semantics: increment sub_agent_count on SubagentStart and decrement it
// (floor zero) on SubagentStop, then persist and broadcast the snapshot.
func (m *Manager) RecordSubAgentEvent(ctx context.Context, id, event, detail string) error {
	var kind model.EventKind
	switch event {
		case "SubagentStart":
		kind = model.EventSubAgentStart
		case "SubagentStop":
		kind = model.EventSubAgentStop
		default:
		return fmt.Errorf("agent: unknown hook event %q", event)
	}

	a, ok:= m.Mutate(ctx, id, func(a *model.Agent) {
			if kind == model.EventSubAgentStart {
				a.SubAgentCount++
			} else if a.SubAgentCount > 0 {
				a.SubAgentCount--
			}
	})
	if !ok {
		return apperror.ErrNotFound
	}
	m.logEvent(ctx, a.ID, a.Project, kind, map[string]interface{}{"detail": detail})
	return nil
}

// Forget drops a stopped agent from the in-memory table without touching
// its workspace or session — used once its stopped snapshot has been
// durably recorded (: "clear from in-memory table only
	// on explicit kill; otherwise retain as stopped snapshot").
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, id)
}

// Adopt inserts an agent directly into the in-memory table without
// provisioning anything, for a session the caller already knows to be
// live. Used by Recover to re-adopt agents found still running at boot.
func (m *Manager) Adopt(a *model.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
}

func profileFromConfig(name string, pc config.ProfileConfig) *model.Profile {
	seq:= make([]model.StartDirective, 0, len(pc.StartSequence))
	for _, d:= range pc.StartSequence {
		seq = append(seq, model.StartDirective{Action: d.Action, Value: d.Value})
	}
	return &model.Profile{
		Name: name,
		Description: pc.Description,
		SystemPrompt: pc.SystemPrompt,
		Instructions: pc.Instructions,
		StartSequence: seq,
	}
}

// envSlice renders a map into KEY=VALUE pairs for exec.Cmd.Env.
func envSlice(env map[string]string) []string {
	out:= make([]string, 0, len(env))
	for k, v:= range env {
		out = append(out, k+"="+v)
	}
	return out
}

// splitCommand is a minimal shell-word splitter for the configured base
// command string; it does not support quoting.
func splitCommand(s string) []string {
	var out []string
	cur:= ""
	for _, r:= range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
