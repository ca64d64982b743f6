// Package ptymgr spawns child processes attached to a pseudoterminal,
// streams their output as tagged events, and accepts writes, resizes, and
// kills against an opaque ptyId.
package ptymgr

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"github.com/oklog/ulid/v2"

	"github.com/sk8tingusmc/forge/internal/event"
)

const (
	defaultCols = 120
	defaultRows = 30

	minCols, maxCols = 1, 500
	minRows, maxRows = 1, 200

	readChunkSize = 32 * 1024
)

// Spec describes a PTY spawn request.
type Spec struct {
	Cmd  string
	Args []string
	Cwd  string
	Cols int
	Rows int
	Env  map[string]string
}

// Handle identifies a live PTY session.
type Handle struct {
	PtyID string
}

type session struct {
	ptyID string
	file  *os.File
	cmd   *exec.Cmd

	killOnce sync.Once
}

// Manager owns every live PTY, keyed by ptyId.
type Manager struct {
	bus *event.Bus

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a Manager that publishes pty.data and pty.exit onto bus.
func New(bus *event.Bus) *Manager {
	return &Manager{bus: bus, sessions: make(map[string]*session)}
}

// Spawn starts spec's command attached to a fresh pseudoterminal and
// returns its ptyId.
func (m *Manager) Spawn(spec Spec) (string, error) {
	cols, rows := spec.Cols, spec.Rows
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}

	cmd := exec.Command(spec.Cmd, spec.Args...)
	cmd.Dir = spec.Cwd
	cmd.Env = sanitizeEnv(spec.Env)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return "", fmt.Errorf("spawn pty: %w", err)
	}

	ptyID := ulid.Make().String()
	sess := &session{ptyID: ptyID, file: f, cmd: cmd}

	m.mu.Lock()
	m.sessions[ptyID] = sess
	m.mu.Unlock()

	go m.readLoop(sess)

	return ptyID, nil
}

// readLoop streams a session's output as pty.data events until the child
// exits or the PTY is closed, then publishes exactly one pty.exit.
func (m *Manager) readLoop(sess *session) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := sess.file.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			m.bus.Publish(event.Event{
				Type: event.PtyData,
				Data: event.PtyDataData{PtyID: sess.ptyID, Chunk: chunk},
			})
		}
		if err != nil {
			if err != io.EOF {
				_ = err
			}
			break
		}
	}

	code := m.waitExitCode(sess)

	m.mu.Lock()
	delete(m.sessions, sess.ptyID)
	m.mu.Unlock()

	m.bus.Publish(event.Event{
		Type: event.PtyExit,
		Data: event.PtyExitData{PtyID: sess.ptyID, Code: code},
	})
}

func (m *Manager) waitExitCode(sess *session) int {
	err := sess.cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func (m *Manager) lookup(ptyID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[ptyID]
}

// Write sends data to ptyID's input. A missing handle is a silent no-op.
func (m *Manager) Write(ptyID string, data []byte) {
	sess := m.lookup(ptyID)
	if sess == nil {
		return
	}
	_, _ = sess.file.Write(data)
}

// Resize changes ptyID's terminal size. cols must be in [1,500] and rows
// in [1,200]; out-of-range requests are rejected.
func (m *Manager) Resize(ptyID string, cols, rows int) error {
	if cols < minCols || cols > maxCols {
		return fmt.Errorf("cols %d out of range [%d,%d]", cols, minCols, maxCols)
	}
	if rows < minRows || rows > maxRows {
		return fmt.Errorf("rows %d out of range [%d,%d]", rows, minRows, maxRows)
	}
	sess := m.lookup(ptyID)
	if sess == nil {
		return nil
	}
	return pty.Setsize(sess.file, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Kill terminates ptyID's process. It's idempotent: the handle is removed
// from the map before the process is signaled, so a concurrent or repeat
// call is a no-op.
func (m *Manager) Kill(ptyID string) {
	m.mu.Lock()
	sess, ok := m.sessions[ptyID]
	if ok {
		delete(m.sessions, ptyID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	sess.killOnce.Do(func() {
		if sess.cmd.Process != nil {
			_ = sess.cmd.Process.Kill()
		}
		_ = sess.file.Close()
	})
}

// Alive reports whether ptyID still has a live handle.
func (m *Manager) Alive(ptyID string) bool {
	return m.lookup(ptyID) != nil
}
