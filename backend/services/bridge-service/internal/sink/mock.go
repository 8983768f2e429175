package sink

import (
	"context"
	"sync"

	"biotune/backend/services/bridge-service/internal/models"
)

// MockSink records uploads in memory. It backs tests and the "log only"
// bench setup where no remote store is reachable.
type MockSink struct {
	mu       sync.Mutex
	uploads  []models.Reading
	attempts int
	failNext int
	err      error
	block    chan struct{}
}

// NewMockSink returns an always-succeeding sink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// FailNext makes the next n uploads return err.
func (m *MockSink) FailNext(n int, err error) {
	m.mu.Lock()
	m.failNext = n
	m.err = err
	m.mu.Unlock()
}

// Block makes uploads wait until the returned func is called or ctx ends.
func (m *MockSink) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Name implements Sink.
func (m *MockSink) Name() string { return "mock" }

// Upload implements Sink.
func (m *MockSink) Upload(ctx context.Context, r models.Reading) error {
	m.mu.Lock()
	m.attempts++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return uploadFailed(m.Name(), ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return uploadFailed(m.Name(), m.err)
	}
	m.uploads = append(m.uploads, r)
	return nil
}

// Uploads returns the successfully uploaded readings in order.
func (m *MockSink) Uploads() []models.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Reading, len(m.uploads))
	copy(out, m.uploads)
	return out
}

// Attempts returns how many times Upload was called.
func (m *MockSink) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

var _ Sink = (*MockSink)(nil)
