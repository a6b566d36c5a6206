// Package workspace provisions the isolated working copy each agent runs
// in: a dedicated branch, checked out from the
// project's default branch, so concurrent agents never share files.
package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/platform/logger"
)

// CreateRequest describes one agent's workspace requirements.
type CreateRequest struct {
	AgentID string
	Project string
	RepositoryPath string
	DefaultBranch string
	BranchPrefix string
	Task string

	// Pre-spawn write-throughs.
	GlobalInstructions string
	ProjectInstructions string
	ContextFiles []string
	CatalogDirs []string
	HookEndpoint string

	Sandbox string // "" or "docker"
}

// Workspace is a provisioned, isolated working copy.
type Workspace struct {
	AgentID string
	Path string
	Branch string
	ContainerID string // set when Sandbox == "docker"
	CreatedAt time.Time
}

// repoLock serializes concurrent `git worktree add`/`remove` against the
// same source repository.
type repoLock struct {
	mu sync.Mutex
	ref int
}

// Manager provisions and tears down workspaces.
type Manager struct {
	cfg Config
	logger *logger.Logger
	sandbox *DockerSandbox

	mu sync.Mutex
	locks map[string]*repoLock
}

// New builds a Manager. sandbox may be nil if no project in this
// deployment uses docker sandboxing.
func New(cfg Config, sandbox *DockerSandbox, log *logger.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default()
	}
	base, err := cfg.ExpandedBasePath()
	if err != nil {
		return nil, err
	}
	if err:= os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create base dir: %w", err)
	}
	return &Manager{
		cfg: cfg,
		logger: log.WithFields(zap.String("component", "workspace-manager")),
		sandbox: sandbox,
		locks: make(map[string]*repoLock),
	}, nil
}

func (m *Manager) lockRepo(repoPath string) *repoLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok:= m.locks[repoPath]
	if !ok {
		l = &repoLock{}
		m.locks[repoPath] = l
	}
	l.ref++
	return l
}

func (m *Manager) unlockRepo(repoPath string, l *repoLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ref--
	if l.ref <= 0 {
		delete(m.locks, repoPath)
	}
}

// Provision creates an isolated working copy on a dedicated branch and
// writes through the pre-spawn assets. It is idempotent against a
// partially created workspace: any stale directory at the target path is
// cleaned up before retrying.
func (m *Manager) Provision(ctx context.Context, req CreateRequest) (*Workspace, error) {
	if req.AgentID == "" || req.RepositoryPath == "" {
		return nil, fmt.Errorf("workspace: agent id and repository path are required")
	}
	branchPrefix:= req.BranchPrefix
	if branchPrefix == "" {
		branchPrefix = m.cfg.BranchPrefix
	}
	branch:= BranchName(branchPrefix, req.AgentID, req.Task)
	dirName:= req.AgentID

	path, err:= m.cfg.Path(dirName)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve path: %w", err)
	}

	// Idempotent cleanup: a previous partial attempt may have left a
	// worktree registration or directory behind.
	if err:= m.cleanupStale(ctx, req.RepositoryPath, path, branch); err != nil {
		m.logger.Warn("cleanup of stale workspace failed, continuing", zap.Error(err))
	}

	lock:= m.lockRepo(req.RepositoryPath)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.unlockRepo(req.RepositoryPath, lock)
	}()

	baseRef:= req.DefaultBranch
	if baseRef == "" {
		baseRef = "main"
	}

	cmd:= exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, path, baseRef)
	cmd.Dir = req.RepositoryPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("workspace: git worktree add: %w: %s", err, string(out))
	}

	ws:= &Workspace{AgentID: req.AgentID, Path: path, Branch: branch, CreatedAt: time.Now()}

	if err:= m.writeThroughs(req, path); err != nil {
		// Provisioning failures are fatal to spawn;
		// unwind the worktree we just created.
		_ = m.removeWorktree(ctx, req.RepositoryPath, path)
		return nil, fmt.Errorf("workspace: write-throughs: %w", err)
	}

	if req.Sandbox == "docker" && m.sandbox != nil {
		containerID, err:= m.sandbox.Start(ctx, sandboxName(req.AgentID), path)
		if err != nil {
			_ = m.removeWorktree(ctx, req.RepositoryPath, path)
			return nil, fmt.Errorf("workspace: start sandbox: %w", err)
		}
		ws.ContainerID = containerID
	}

	m.logger.Info("provisioned workspace",
		zap.String("agent_id", req.AgentID),
		zap.String("path", path),
		zap.String("branch", branch))

	return ws, nil
}

// Teardown removes the isolated working copy first, then prunes its branch
// metadata. Safe to call more than once.
func (m *Manager) Teardown(ctx context.Context, ws *Workspace, repositoryPath string) error {
	if ws == nil {
		return nil
	}

	if ws.ContainerID != "" && m.sandbox != nil {
		if err:= m.sandbox.Stop(ctx, ws.ContainerID); err != nil {
			m.logger.Warn("failed to stop sandbox container", zap.Error(err))
		}
	}

	lock:= m.lockRepo(repositoryPath)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		m.unlockRepo(repositoryPath, lock)
	}()

	if err:= m.removeWorktree(ctx, repositoryPath, ws.Path); err != nil {
		return err
	}

	// Prune branch metadata after the directory is gone.
	pruneCmd:= exec.CommandContext(ctx, "git", "worktree", "prune")
	pruneCmd.Dir = repositoryPath
	_ = pruneCmd.Run()

	branchCmd:= exec.CommandContext(ctx, "git", "branch", "-D", ws.Branch)
	branchCmd.Dir = repositoryPath
	_ = branchCmd.Run() // best-effort: branch may already be gone

	m.logger.Info("tore down workspace", zap.String("agent_id", ws.AgentID), zap.String("path", ws.Path))
	return nil
}

func (m *Manager) removeWorktree(ctx context.Context, repositoryPath, path string) error {
	cmd:= exec.CommandContext(ctx, "git", "worktree", "remove", "--force", path)
	cmd.Dir = repositoryPath
	if out, err := cmd.CombinedOutput(); err != nil {
		// Fall back to a raw directory removal if git has lost track of it.
		if rmErr:= os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("workspace: remove worktree %q: %w: %s", path, err, string(out))
		}
	}
	return nil
}

// cleanupStale removes a leftover directory/worktree registration from a
// previous interrupted provision attempt, so Provision can retry cleanly.
func (m *Manager) cleanupStale(ctx context.Context, repositoryPath, path, branch string) error {
	if _, err:= os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err:= m.removeWorktree(ctx, repositoryPath, path); err != nil {
		return err
	}
	cmd:= exec.CommandContext(ctx, "git", "branch", "-D", branch)
	cmd.Dir = repositoryPath
	_ = cmd.Run()
	return nil
}

func sandboxName(agentID string) string {
	return "agentforge-sandbox-" + agentID
}
