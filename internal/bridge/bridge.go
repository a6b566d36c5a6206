// Package bridge implements the Terminal Bridge Fan-out from
// section 4.7: a per-session relay between one terminal multiplexer
// session and any number of live subscribers (typically WebSocket
	// clients attached through the gateway, out of this kernel's scope).
package bridge

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/platform/backoff"
	"github.com/agentforge/agentforge/internal/platform/logger"
)

// lingerDuration is how long a session bridge survives after its last
// subscriber leaves, in case a reconnect follows immediately.
const lingerDuration = 5 * time.Second

// pollInterval is how often the bridge re-captures the session while it
// has live subscribers, feeding the diff to subscribers as output bytes.
const pollInterval = 200 * time.Millisecond

// Capturer is the slice of the terminal multiplexer a bridge attaches to.
type Capturer interface {
	Capture(sessionName string) (string, error)
	Exists(sessionName string) bool
	SendText(ctx context.Context, sessionName, text string) error
	Resize(sessionName string, cols, rows int) error
}

// Subscriber receives a session's output as raw bytes and may push
// keystrokes and resize directives back.
type Subscriber struct {
	Output chan []byte
	id string
}

// Resize is a client-requested terminal size change.
type Resize struct {
	Cols int
	Rows int
}

// sessionBridge is the live relay for one terminal session.
type sessionBridge struct {
	name string
	term Capturer

	mu sync.Mutex
	subscribers map[string]*Subscriber
	nextID int
	lastCapture string
	stopCh chan struct{}
	lingerTimer *time.Timer
}

// Manager owns one sessionBridge per currently-subscribed-to session.
type Manager struct {
	term Capturer
	logger *logger.Logger

	mu sync.Mutex
	bridges map[string]*sessionBridge
}

// New builds a Manager bound to a terminal multiplexer.
func New(term Capturer, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		term: term,
		logger: log.WithFields(zap.String("component", "terminal-bridge")),
		bridges: make(map[string]*sessionBridge),
	}
}

// Subscribe attaches a new subscriber to a session's bridge, creating the
// bridge if this is the first subscriber.
func (m *Manager) Subscribe(sessionName string) *Subscriber {
	m.mu.Lock()
	b, ok:= m.bridges[sessionName]
	if !ok {
		b = &sessionBridge{
			name: sessionName,
			term: m.term,
			subscribers: make(map[string]*Subscriber),
			stopCh: make(chan struct{}),
		}
		m.bridges[sessionName] = b
		go m.runBridge(b)
	}
	m.mu.Unlock()

	return b.addSubscriber()
}

// Unsubscribe removes a subscriber; if it was the last one, the bridge
// destroys itself after a short linger.
func (m *Manager) Unsubscribe(sessionName string, sub *Subscriber) {
	m.mu.Lock()
	b, ok:= m.bridges[sessionName]
	m.mu.Unlock()
	if !ok {
		return
	}

	remaining:= b.removeSubscriber(sub)
	if remaining > 0 {
		return
	}

	b.mu.Lock()
	b.lingerTimer = time.AfterFunc(lingerDuration, func() {
			b.mu.Lock()
			empty:= len(b.subscribers) == 0
			b.mu.Unlock()
			if !empty {
				return
			}
			m.mu.Lock()
			delete(m.bridges, sessionName)
			m.mu.Unlock()
			close(b.stopCh)
	})
	b.mu.Unlock()
}

// SendInput forwards a subscriber's inbound bytes to the session's
// keyboard.
func (m *Manager) SendInput(ctx context.Context, sessionName string, data []byte) error {
	return m.term.SendText(ctx, sessionName, string(data))
}

// Resize applies a subscriber-requested resize directive to the session.
func (m *Manager) Resize(sessionName string, r Resize) error {
	return m.term.Resize(sessionName, r.Cols, r.Rows)
}

func (b *sessionBridge) addSubscriber() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lingerTimer != nil {
		b.lingerTimer.Stop()
		b.lingerTimer = nil
	}
	b.nextID++
	sub:= &Subscriber{Output: make(chan []byte, 256), id: subID(b.nextID)}
	b.subscribers[sub.id] = sub
	return sub
}

func (b *sessionBridge) removeSubscriber(sub *Subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok:= b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(sub.Output)
	}
	return len(b.subscribers)
}

// runBridge polls the session and fans out any new output to every
// subscriber, reconnecting with exponential backoff if the session
// temporarily can't be captured while subscribers remain attached.
func (m *Manager) runBridge(b *sessionBridge) {
	bo:= backoff.Default()
	ticker:= time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
			case <-b.stopCh:
			return
			case <-ticker.C:
			if !b.term.Exists(b.name) {
				b.mu.Lock()
				hasSubscribers:= len(b.subscribers) > 0
				b.mu.Unlock()
				if !hasSubscribers {
					return
				}
				delay:= bo.Next()
				m.logger.Warn("bridge: session unavailable, backing off", zap.String("session", b.name), zap.Duration("delay", delay))
				time.Sleep(delay)
				continue
			}
			bo.Reset()

			capture, err:= b.term.Capture(b.name)
			if err != nil {
				m.logger.Warn("bridge: capture failed", zap.Error(err), zap.String("session", b.name))
				continue
			}
			b.fanOutDelta(capture)
		}
	}
}

// fanOutDelta forwards only the newly appended tail of the capture to
// every subscriber, preserving byte order per subscriber.
func (b *sessionBridge) fanOutDelta(capture string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delta:= diffTail(b.lastCapture, capture)
	b.lastCapture = capture
	if delta == "" {
		return
	}

	data:= []byte(delta)
	for _, sub:= range b.subscribers {
		select {
			case sub.Output <- data:
			default:
			// A full subscriber mailbox misses this delta rather than
			// blocking the bridge; lastCapture has already advanced, so
			// these bytes are not resent to that subscriber.
		}
	}
}

// diffTail returns the suffix of next past the shared prefix with prev,
// or the whole of next if prev isn't a prefix of it (e.g. the pane was
	// cleared).
func diffTail(prev, next string) string {
	if len(next) >= len(prev) && next[:len(prev)] == prev {
		return next[len(prev):]
	}
	return next
}

func subID(n int) string {
	return "sub-" + strconv.Itoa(n)
}
