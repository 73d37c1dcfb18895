// Package pty owns the PTY sessions behind externally-spawned CLI agents.
//
// Each session couples a pseudo-terminal running the agent process with a
// vt10x terminal emulator. A dedicated reader goroutine is the only writer
// of the emulator; screen snapshots take concurrent read access. The
// registry holds just the agent id; file descriptors, parser, and child
// process live here.
package pty

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/tuzig/vt10x"
	"go.uber.org/zap"

	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/common/config"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
	"github.com/kandev/axiom/internal/term"
)

// Minimum PTY dimensions. Resizes below these are clamped.
const (
	MinCols = 10
	MinRows = 3
)

const readBufferSize = 4096

// setsize performs the TIOCSWINSZ syscall. Swappable so tests can observe
// that unchanged dimensions skip the syscall entirely.
var setsize = func(f *os.File, ws *pty.Winsize) error {
	return pty.Setsize(f, ws)
}

// Session is one PTY-backed CLI agent.
type Session struct {
	id     agent.ID
	bus    *bus.Bus
	logger *logger.Logger

	mu     sync.Mutex
	ptmx   *os.File
	cmd    *exec.Cmd
	cols   uint16
	rows   uint16
	exited bool

	termMu   sync.RWMutex
	terminal vt10x.Terminal

	scrollback *ringBuffer
}

// newSession opens a PTY pair, spawns the configured command with the user
// prompt appended as the final argument, and starts the reader goroutine.
func newSession(
	id agent.ID,
	cfg config.CliAgentConfig,
	prompt string,
	cwd string,
	cols, rows uint16,
	b *bus.Bus,
	log *logger.Logger,
) (*Session, error) {
	cols = max(cols, MinCols)
	rows = max(rows, MinRows)

	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, &Error{Kind: ErrCreate, Err: err}
	}

	if err := setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, &Error{Kind: ErrCreate, Err: err}
	}

	args := append([]string(nil), cfg.DefaultArgs...)
	if prompt != "" {
		args = append(args, prompt)
	}
	cmd := exec.Command(cfg.Command, args...)
	if cfg.UseCwd {
		cmd.Dir = cwd
	}
	cmd.Env = overlayEnv(cfg.Env)
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, &Error{Kind: ErrSpawn, Err: err}
	}
	// The child holds its own copy of the slave side.
	_ = tty.Close()

	s := &Session{
		id:         id,
		bus:        b,
		logger:     log.WithAgentID(uint64(id)),
		ptmx:       ptmx,
		cmd:        cmd,
		cols:       cols,
		rows:       rows,
		terminal:   vt10x.New(vt10x.WithSize(int(cols), int(rows))),
		scrollback: newRingBuffer(0),
	}

	go s.readLoop()

	s.logger.Info("pty session started",
		zap.String("command", cfg.Command),
		zap.Int("pid", cmd.Process.Pid),
		zap.Uint16("cols", cols),
		zap.Uint16("rows", rows))

	return s, nil
}

// readLoop is the sole writer of the terminal emulator. It feeds PTY bytes
// to the parser, publishes CliAgentOutput, and reports the child's exit.
func (s *Session) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)

			s.termMu.Lock()
			_, _ = s.terminal.Write(data)
			s.termMu.Unlock()

			s.scrollback.append(data)

			if sendErr := s.bus.Send(events.CliAgentOutput{ID: s.id, Data: data}); sendErr != nil {
				// Closed bus means shutdown; wind down without an exit event.
				return
			}
		}
		if err != nil {
			code := s.waitExitCode()
			s.mu.Lock()
			s.exited = true
			s.mu.Unlock()

			s.logger.Debug("pty session exited", zap.Int("exit_code", code))
			_ = s.bus.Send(events.CliAgentExit{ID: s.id, ExitCode: code})
			return
		}
	}
}

// waitExitCode reaps the child and extracts its exit code. Signals map to
// 128+n; an unreadable status reports -1.
func (s *Session) waitExitCode() int {
	err := s.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return 128 + int(ws.Signal())
			}
			return ws.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return -1
}

// Write sends input bytes to the PTY. os.File writes are unbuffered, so the
// data reaches the kernel before Write returns.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptmx == nil {
		return &Error{Kind: ErrWrite, Err: errors.New("session closed")}
	}
	if _, err := s.ptmx.Write(data); err != nil {
		return &Error{Kind: ErrWrite, Err: err}
	}
	return nil
}

// Resize changes the PTY dimensions, forwarding SIGWINCH to the child and
// resizing the emulator to match. Unchanged dimensions skip the syscall.
func (s *Session) Resize(cols, rows uint16) error {
	cols = max(cols, MinCols)
	rows = max(rows, MinRows)

	s.mu.Lock()
	if s.cols == cols && s.rows == rows {
		s.mu.Unlock()
		return nil
	}
	s.cols = cols
	s.rows = rows
	ptmx := s.ptmx
	s.mu.Unlock()

	if ptmx != nil {
		if err := setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
			return &Error{Kind: ErrResize, Err: err}
		}
	}

	s.termMu.Lock()
	s.terminal.Resize(int(cols), int(rows))
	s.termMu.Unlock()
	return nil
}

// Screen snapshots the emulator's current grid.
func (s *Session) Screen() term.Screen {
	s.mu.Lock()
	cols, rows := int(s.cols), int(s.rows)
	s.mu.Unlock()

	s.termMu.RLock()
	defer s.termMu.RUnlock()
	return term.Snapshot(s.terminal, cols, rows)
}

// Text renders the visible screen as plain text.
func (s *Session) Text() string {
	return s.Screen().Text()
}

// Scrollback returns the retained raw output.
func (s *Session) Scrollback() []byte {
	return s.scrollback.bytes()
}

// Size returns the current PTY dimensions.
func (s *Session) Size() (cols, rows uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// Exited reports whether the child process has exited.
func (s *Session) Exited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

func (s *Session) markExited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exited = true
}

// close tears the session down. Closing the master side delivers SIGHUP to
// the child's session; the reader goroutine observes the error and reaps it.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ptmx != nil {
		_ = s.ptmx.Close()
		s.ptmx = nil
	}
}

func overlayEnv(overrides map[string]string) []string {
	env := os.Environ()
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	return env
}

func max(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

// ringBuffer keeps a byte-bounded window of recent raw PTY output so a
// reattaching viewer can restore scrollback.
type ringBuffer struct {
	mu       sync.Mutex
	maxBytes int
	size     int
	chunks   [][]byte
}

const defaultScrollbackBytes = 256 * 1024

func newRingBuffer(maxBytes int) *ringBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultScrollbackBytes
	}
	return &ringBuffer{maxBytes: maxBytes}
}

func (b *ringBuffer) append(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, data)
	b.size += len(data)
	for b.size > b.maxBytes && len(b.chunks) > 0 {
		b.size -= len(b.chunks[0])
		b.chunks = b.chunks[1:]
	}
}

func (b *ringBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	return out
}
