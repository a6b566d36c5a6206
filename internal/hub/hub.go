// Package hub implements the Broadcast Hub from: a
// typed pub/sub with bounded, lossy, per-subscriber mailboxes.
package hub

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/agentforge/internal/model"
	"github.com/agentforge/agentforge/internal/platform/logger"
)

// MessageKind is the closed set of broadcast message kinds.
type MessageKind string

const (
	KindAgentUpdate MessageKind = "agent_update"
	KindTerminalOutput MessageKind = "terminal_output"
	KindMetricsUpdate MessageKind = "metrics_update"
	KindLogLine MessageKind = "log_line"
)

// Message is one broadcastable event, JSON-serializable with a `type`
// discriminator per the `/ws` contract.
type Message struct {
	Type MessageKind `json:"type"`
	Data interface{} `json:"data"`
}

// mailboxCapacity bounds each subscriber's buffered channel. When full,
// the oldest buffered message is dropped to make room for the newest,
// per the "lossy" mailbox.
const mailboxCapacity = 256

// livenessPingInterval is how often subscribers receive a liveness ping.
const livenessPingInterval = 30 * time.Second

// Subscriber is a single registered mailbox.
type Subscriber struct {
	id string
	ch chan Message
	hub *Hub
	mu sync.Mutex
	closed bool
}

// C returns the channel to receive messages from. Closed when
// Unsubscribe is called.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Unsubscribe removes this subscriber from the hub and closes its channel.
func (s *Subscriber) Unsubscribe() {
	s.hub.remove(s)
}

// Hub is a typed, bounded, lossy pub/sub.
type Hub struct {
	mu sync.RWMutex
	subscribers map[string]*Subscriber
	logger *logger.Logger
	nextID int
}

// New builds an empty Hub.
func New(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		logger: log.WithFields(zap.String("component", "broadcast-hub")),
	}
}

// Subscribe registers a new mailbox and starts its liveness pinger.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	h.nextID++
	id:= subscriberID(h.nextID)
	sub:= &Subscriber{id: id, ch: make(chan Message, mailboxCapacity), hub: h}
	h.subscribers[id] = sub
	h.mu.Unlock()

	go h.pingLoop(sub)
	return sub
}

func (h *Hub) remove(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub.id)
	h.mu.Unlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

func (h *Hub) pingLoop(sub *Subscriber) {
	ticker:= time.NewTicker(livenessPingInterval)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		_, alive:= h.subscribers[sub.id]
		h.mu.RUnlock()
		if !alive {
			return
		}
		h.deliver(sub, Message{Type: KindLogLine, Data: map[string]string{"ping": "liveness"}})
	}
}

// publish sends msg to every current subscriber, FIFO per subscriber but
// unordered across subscribers.
func (h *Hub) publish(msg Message) {
	h.mu.RLock()
	subs:= make([]*Subscriber, 0, len(h.subscribers))
	for _, s:= range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s:= range subs {
		h.deliver(s, msg)
	}
}

// deliver pushes msg onto a single subscriber's mailbox, dropping the
// oldest buffered message if the mailbox is full.
func (h *Hub) deliver(sub *Subscriber, msg Message) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	for {
		select {
			case sub.ch <- msg:
			return
			default:
			select {
				case <-sub.ch:
				h.logger.Warn("broadcast mailbox full, dropped oldest message", zap.String("subscriber", sub.id))
				default:
				return
			}
		}
	}
}

// PublishAgentUpdate broadcasts an agent snapshot, satisfying the
// agent.Broadcaster contract.
func (h *Hub) PublishAgentUpdate(snap model.Snapshot) {
	h.publish(Message{Type: KindAgentUpdate, Data: snap})
}

// PublishTerminalOutput relays raw terminal text for the legacy text
// relay channel.
func (h *Hub) PublishTerminalOutput(agentID, text string) {
	h.publish(Message{Type: KindTerminalOutput, Data: map[string]string{"agent_id": agentID, "text": text}})
}

// PublishMetricsUpdate broadcasts an arbitrary metrics payload.
func (h *Hub) PublishMetricsUpdate(metrics interface{}) {
	h.publish(Message{Type: KindMetricsUpdate, Data: metrics})
}

// PublishLogLine broadcasts a structured log line for UI tailing.
func (h *Hub) PublishLogLine(line string) {
	h.publish(Message{Type: KindLogLine, Data: map[string]string{"line": line}})
}

// MarshalJSON renders a Message the way `/ws` clients expect it on the wire.
func (m Message) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type MessageKind `json:"type"`
		Data interface{} `json:"data"`
	}
	return json.Marshal(wire{Type: m.Type, Data: m.Data})
}

func subscriberID(n int) string {
	return "sub-" + strconv.Itoa(n)
}
