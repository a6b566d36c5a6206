// Package scheduler drives the single periodic capture→infer→persist→notify
// loop described in.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/agent"
	"github.com/agentforge/agentforge/internal/inference"
	"github.com/agentforge/agentforge/internal/model"
	"github.com/agentforge/agentforge/internal/platform/logger"
	"github.com/agentforge/agentforge/internal/store"
)

var (
	ErrAlreadyRunning = errors.New("scheduler: already running")
	ErrNotRunning = errors.New("scheduler: not running")
)

// Notifier is the narrow slice of the Connector Router the scheduler
// drives outbound notifications through.
type Notifier interface {
	NotifyTransition(ctx context.Context, snap model.Snapshot, previous model.Status)
}

// Capturer is the slice of the terminal multiplexer the scheduler polls.
type Capturer interface {
	Capture(sessionName string) (string, error)
	Exists(sessionName string) bool
}

// Scheduler ticks at a configurable interval, capturing and classifying
// every non-stopped agent's pane.
type Scheduler struct {
	agents *agent.Manager
	term Capturer
	engine *inference.Engine
	notifier Notifier
	store *store.Store
	logger *logger.Logger

	interval time.Duration

	mu sync.Mutex
	running bool
	stopCh chan struct{}
	wg sync.WaitGroup
	lastCapture map[string]captureState
}

type captureState struct {
	capture string
	status model.Status
	lastChange time.Time
}

// Deps bundles the Scheduler's collaborators.
type Deps struct {
	Agents *agent.Manager
	Term Capturer
	Engine *inference.Engine
	Notifier Notifier
	Store *store.Store
	Logger *logger.Logger
	Interval time.Duration
}

// New builds a Scheduler. Interval defaults to 3s.
func New(d Deps) *Scheduler {
	log:= d.Logger
	if log == nil {
		log = logger.Default()
	}
	interval:= d.Interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Scheduler{
		agents: d.Agents,
		term: d.Term,
		engine: d.Engine,
		notifier: d.Notifier,
		store: d.Store,
		logger: log.WithFields(zap.String("component", "scheduler")),
		interval: interval,
		lastCapture: make(map[string]captureState),
	}
}

// Start begins the tick loop. It returns once the first goroutine launch
// succeeds; the loop itself runs until Stop() is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", zap.Duration("interval", s.interval))
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop() ends the tick loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker:= time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
			case <-ctx.Done():
			return
			case <-s.stopCh:
			return
			case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one capture→infer→persist→notify pass over every non-stopped
// agent. A single agent's failure never aborts the others, per
// section 7.
func (s *Scheduler) tick(ctx context.Context) {
	for _, a:= range s.agents.List() {
		if a.Status.Terminal() {
			continue
		}
		s.tickAgent(ctx, a)
	}
}

func (s *Scheduler) tickAgent(ctx context.Context, a *model.Agent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler: panic while ticking agent, skipping", zap.Any("panic", r), zap.String("agent_id", a.ID))
		}
	}()

	if !s.term.Exists(a.SessionName) {
		s.handleStopped(ctx, a)
		return
	}

	capture, err:= s.term.Capture(a.SessionName)
	if err != nil {
		s.logger.Warn("scheduler: capture failed, skipping this tick", zap.Error(err), zap.String("agent_id", a.ID))
		return
	}

	prev, seen:= s.lastCapture[a.ID]
	if !seen {
		// First observation of this agent: the capture is its own
		// baseline, so it does not count as a change.
		prev.capture = capture
	}
	lastChange:= prev.lastChange
	if lastChange.IsZero() {
		lastChange = time.Now()
	}
	if capture != prev.capture {
		lastChange = time.Now()
	}

	previousStatus:= a.Status

	status:= s.engine.Classify(inference.Input{
			Capture: capture,
			PreviousCapture: prev.capture,
			PreviousStatus: previousStatus,
			LastChangeElapsed: time.Since(lastChange),
	})

	s.lastCapture[a.ID] = captureState{capture: capture, status: status, lastChange: lastChange}

	if status == previousStatus {
		return
	}

	updated, ok:= s.agents.Mutate(ctx, a.ID, func(ag *model.Agent) {
			ag.Status = status
			ag.LastActivityAt = time.Now()
			switch status {
				case model.StatusWaitingInput, model.StatusError:
				ag.NeedsAttention = true
				case model.StatusIdle:
				if previousStatus == model.StatusWorking {
					ag.LastResponse = inference.ExtractResponse(capture)
				}
			}
	})
	if !ok {
		return
	}

	s.logEvent(ctx, a.ID, a.Project, status)

	if s.notifier != nil {
		switch status {
			case model.StatusWaitingInput, model.StatusError:
			s.notifier.NotifyTransition(ctx, model.SnapshotOf(updated), previousStatus)
			case model.StatusIdle:
			if previousStatus == model.StatusWorking {
				s.notifier.NotifyTransition(ctx, model.SnapshotOf(updated), previousStatus)
			}
		}
	}
}

func (s *Scheduler) handleStopped(ctx context.Context, a *model.Agent) {
	if a.Status == model.StatusStopped {
		return
	}
	delete(s.lastCapture, a.ID)
	if _, ok:= s.agents.Mutate(ctx, a.ID, func(ag *model.Agent) {
			ag.Status = model.StatusStopped
			ag.LastActivityAt = time.Now()
	}); !ok {
		return
	}
	s.logEvent(ctx, a.ID, a.Project, model.StatusStopped)
}

func (s *Scheduler) logEvent(ctx context.Context, agentID, project string, status model.Status) {
	s.logger.Info("agent status transition",
		zap.String("agent_id", agentID),
		zap.String("project", project),
		zap.String("status", string(status)))

	if s.store == nil {
		return
	}
	if _, err:= s.store.LogEvent(ctx, model.Event{
			AgentID: agentID,
			Project: project,
			Kind: model.EventStatusChange,
			Payload: map[string]interface{}{"status": string(status)},
			Timestamp: time.Now(),
	}); err != nil {
		s.logger.Warn("scheduler: failed to log status-change event", zap.Error(err), zap.String("agent_id", agentID))
	}
}
