package camera

import (
	"sync"
	"time"
)

// MockSource replays scripted frames. The last frame repeats.
type MockSource struct {
	mu     sync.Mutex
	Frames []Frame
	Err    error
	Reads  int
	Closed bool
}

// Read implements Source.
func (m *MockSource) Read() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return Frame{}, ErrClosed
	}
	m.Reads++
	if m.Err != nil {
		return Frame{}, m.Err
	}
	if len(m.Frames) == 0 {
		return Frame{}, ErrReadFailed
	}
	f := m.Frames[min(m.Reads-1, len(m.Frames)-1)]
	if f.Time.IsZero() {
		f.Time = time.Now()
	}
	return f, nil
}

// Close implements Source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
