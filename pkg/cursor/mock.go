package cursor

import "sync"

// Point is a recorded pointer position.
type Point struct {
	X, Y int
}

// MockActuator records moves and clicks instead of touching the desktop.
type MockActuator struct {
	mu     sync.Mutex
	Width  int
	Height int
	Moves  []Point
	Clicks int
	Err    error
}

// NewMockActuator returns a recorder for a w x h screen.
func NewMockActuator(w, h int) *MockActuator {
	return &MockActuator{Width: w, Height: h}
}

// Move implements Actuator.
func (m *MockActuator) Move(x, y float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	px, py := Clamp(x, y, m.Width, m.Height)
	m.Moves = append(m.Moves, Point{X: px, Y: py})
	return nil
}

// Click implements Actuator.
func (m *MockActuator) Click() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Clicks++
	return nil
}

// ScreenSize implements Actuator.
func (m *MockActuator) ScreenSize() (int, int) {
	return m.Width, m.Height
}

// Last returns the most recent move.
func (m *MockActuator) Last() (Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Moves) == 0 {
		return Point{}, false
	}
	return m.Moves[len(m.Moves)-1], true
}

// ClickCount returns the number of clicks so far.
func (m *MockActuator) ClickCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Clicks
}
