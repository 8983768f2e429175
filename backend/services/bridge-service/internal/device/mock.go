package device

import (
	"sync"
)

// MockLink is an in-memory Link for tests and bench runs without hardware.
// Lines queued with Feed are returned by ReadLine in order.
type MockLink struct {
	mu        sync.Mutex
	lines     [][]byte
	readErrs  []error
	writeErr  error
	commands  []Command
	reads     int
	closed    bool
	absent    bool
	terminal  error
	resetCall int
}

// NewMockLink returns a present, empty mock link.
func NewMockLink() *MockLink {
	return &MockLink{}
}

// Feed queues lines for ReadLine.
func (m *MockLink) Feed(lines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range lines {
		m.lines = append(m.lines, []byte(line))
	}
}

// FailReads makes the next ReadLine calls return errs in order.
func (m *MockLink) FailReads(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErrs = append(m.readErrs, errs...)
}

// SetWriteErr makes WriteCommand fail with err.
func (m *MockLink) SetWriteErr(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// SetTerminal makes ReadLine return err once queued lines are consumed.
func (m *MockLink) SetTerminal(err error) {
	m.mu.Lock()
	m.terminal = err
	m.mu.Unlock()
}

// SetAbsent flips Present to false.
func (m *MockLink) SetAbsent(absent bool) {
	m.mu.Lock()
	m.absent = absent
	m.mu.Unlock()
}

// ReadLine implements Link.
func (m *MockLink) ReadLine() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++

	if len(m.readErrs) > 0 {
		err := m.readErrs[0]
		m.readErrs = m.readErrs[1:]
		return nil, err
	}
	if len(m.lines) > 0 {
		line := m.lines[0]
		m.lines = m.lines[1:]
		return line, nil
	}
	if m.terminal != nil {
		return nil, m.terminal
	}
	return nil, ErrEmpty
}

// WriteCommand implements Link.
func (m *MockLink) WriteCommand(cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.commands = append(m.commands, cmd)
	return nil
}

// ResetInput implements Link.
func (m *MockLink) ResetInput() error {
	m.mu.Lock()
	m.resetCall++
	m.mu.Unlock()
	return nil
}

// Present implements Link.
func (m *MockLink) Present() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.absent
}

// Close implements Link.
func (m *MockLink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Commands returns the commands written so far.
func (m *MockLink) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.commands))
	copy(out, m.commands)
	return out
}

// Reads returns how many times ReadLine was called.
func (m *MockLink) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Pending returns how many fed lines have not been read yet.
func (m *MockLink) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

var _ Link = (*MockLink)(nil)
