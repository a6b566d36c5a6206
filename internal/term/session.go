// Package term wraps a PTY-hosted interactive process behind the minimal
// named-session contract an OS terminal multiplexer needs to support:
// create, send-text, send-control, capture, exists, kill. A vt10x virtual
// terminal renders the visible pane so capture never has to shell out to a
// real tmux.
package term

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/tuzig/vt10x"

	"github.com/agentforge/agentforge/internal/platform/logger"
)

// DefaultTimeout is the multiplexer's nominal 5s operation bound. No
// Multiplexer method applies it: create, send, capture, resize and kill act
// on the in-process PTY without a deadline.
const DefaultTimeout = 5 * time.Second

// sessionNamePattern enforces forge__{project}__{id}.
var sessionNamePattern = regexp.MustCompile(`^forge__[^_]+(?:-[^_]+)*__[0-9a-f]{6}$`)

// ValidSessionName reports whether name matches the mandated session-name shape.
func ValidSessionName(name string) bool {
	return sessionNamePattern.MatchString(name)
}

// SessionName builds the mandated session name for a project/agent-id pair.
func SessionName(project, agentID string) string {
	return fmt.Sprintf("forge__%s__%s", project, agentID)
}

// Control is the closed set of injectable control sequences.
type Control string

const (
	ControlUp     Control = "up"
	ControlDown   Control = "down"
	ControlLeft   Control = "left"
	ControlRight  Control = "right"
	ControlEnter  Control = "enter"
	ControlCtrlC  Control = "ctrl-c"
	ControlCtrlD  Control = "ctrl-d"
	ControlCtrlT  Control = "ctrl-t"
	ControlEscape Control = "escape"
	ControlTab    Control = "tab"
)

var controlBytes = map[Control][]byte{
	ControlUp:     {0x1b, '[', 'A'},
	ControlDown:   {0x1b, '[', 'B'},
	ControlRight:  {0x1b, '[', 'C'},
	ControlLeft:   {0x1b, '[', 'D'},
	ControlEnter:  {'\r'},
	ControlCtrlC:  {0x03},
	ControlCtrlD:  {0x04},
	ControlCtrlT:  {0x14},
	ControlEscape: {0x1b},
	ControlTab:    {'\t'},
}

const (
	defaultCols = 120
	defaultRows = 40
	writeChunk  = 4096 // large send-text payloads are split
)

type session struct {
	name string
	cmd  *exec.Cmd
	pty  *os.File
	term vt10x.Terminal
	cols int
	rows int

	mu     sync.Mutex
	closed bool
}

// Multiplexer hosts named PTY sessions and answers the contract.
type Multiplexer struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *logger.Logger
}

// New creates an empty Multiplexer.
func New(log *logger.Logger) *Multiplexer {
	if log == nil {
		log = logger.Default()
	}
	return &Multiplexer{sessions: make(map[string]*session), logger: log}
}

// Create starts a new named session running the given command in cwd.
func (m *Multiplexer) Create(ctx context.Context, name, cwd string, command []string, env []string, cols, rows int) error {
	if !ValidSessionName(name) {
		return fmt.Errorf("term: invalid session name %q", name)
	}
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	m.mu.Lock()
	if _, exists := m.sessions[name]; exists {
		m.mu.Unlock()
		return ErrAlreadyExists
	}
	m.mu.Unlock()

	if len(command) == 0 {
		return fmt.Errorf("term: empty command")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Dir = cwd
	cmd.Env = env

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return fmt.Errorf("term: start pty: %w", err)
	}

	s := &session{
		name: name,
		cmd:  cmd,
		pty:  f,
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
	}

	m.mu.Lock()
	m.sessions[name] = s
	m.mu.Unlock()

	go m.pump(s)

	m.logger.Info("created terminal session", zapStr("session", name), zapStr("cwd", cwd))
	return nil
}

// pump continuously feeds PTY output into the virtual terminal for capture.
func (m *Multiplexer) pump(s *session) {
	buf := make([]byte, 4096)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			s.mu.Lock()
			_, _ = s.term.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			m.mu.Lock()
			delete(m.sessions, s.name)
			m.mu.Unlock()
			m.logger.Debug("terminal session ended", zapStr("session", s.name))
			return
		}
	}
}

// SendText transmits literal characters, splitting large payloads.
func (m *Multiplexer) SendText(ctx context.Context, name, text string) error {
	s, err := m.get(name)
	if err != nil {
		return err
	}
	data := []byte(text)
	for len(data) > 0 {
		n := writeChunk
		if n > len(data) {
			n = len(data)
		}
		if _, err := s.pty.Write(data[:n]); err != nil {
			return fmt.Errorf("term: write: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// SendControl injects a single control sequence.
func (m *Multiplexer) SendControl(ctx context.Context, name string, c Control) error {
	s, err := m.get(name)
	if err != nil {
		return err
	}
	seq, ok := controlBytes[c]
	if !ok {
		return fmt.Errorf("term: unknown control %q", c)
	}
	if _, err := s.pty.Write(seq); err != nil {
		return fmt.Errorf("term: write control: %w", err)
	}
	return nil
}

// Resize applies a new pane size.
func (m *Multiplexer) Resize(name string, cols, rows int) error {
	s, err := m.get(name)
	if err != nil {
		return err
	}
	if err := pty.Setsize(s.pty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return err
	}
	s.mu.Lock()
	s.term.Resize(cols, rows)
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

// Capture returns the current visible-pane string.
func (m *Multiplexer) Capture(name string) (string, error) {
	s, err := m.get(name)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, s.rows)
	for row := 0; row < s.rows; row++ {
		runes := make([]rune, s.cols)
		for col := 0; col < s.cols; col++ {
			g := s.term.Cell(col, row)
			if g.Char == 0 {
				runes[col] = ' '
			} else {
				runes[col] = g.Char
			}
		}
		lines[row] = string(runes)
	}
	return joinTrimRight(lines), nil
}

// Exists reports whether a session with this name is live.
func (m *Multiplexer) Exists(name string) bool {
	_, err := m.get(name)
	return err == nil
}

// Kill terminates the session. Idempotent: killing an unknown session is not an error.
func (m *Multiplexer) Kill(name string) error {
	m.mu.Lock()
	s, ok := m.sessions[name]
	if ok {
		delete(m.sessions, name)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_ = s.pty.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	m.logger.Info("killed terminal session", zapStr("session", name))
	return nil
}

func (m *Multiplexer) get(name string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[name]
	if !ok {
		return nil, ErrNoSuchSession
	}
	return s, nil
}
