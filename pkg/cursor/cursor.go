// Package cursor drives the system pointer from tracked screen points.
package cursor

import (
	"math"
	"sync"

	"github.com/go-vgo/robotgo"
)

// Actuator moves and clicks the pointer.
type Actuator interface {
	Move(x, y float64) error
	Click() error
	ScreenSize() (width, height int)
}

// System controls the real desktop pointer.
type System struct {
	mu sync.Mutex
	w  int
	h  int
}

// NewSystem queries the primary display size once.
func NewSystem() *System {
	w, h := robotgo.GetScreenSize()
	return &System{w: w, h: h}
}

// ScreenSize returns the primary display size in pixels.
func (s *System) ScreenSize() (int, int) {
	return s.w, s.h
}

// Move places the pointer, clamped to the screen.
func (s *System) Move(x, y float64) error {
	px, py := Clamp(x, y, s.w, s.h)

	s.mu.Lock()
	defer s.mu.Unlock()
	robotgo.Move(px, py)
	return nil
}

// Click presses the left button at the current position.
func (s *System) Click() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	robotgo.Click("left", false)
	return nil
}

// Clamp rounds a point to pixel coordinates inside a w x h screen.
func Clamp(x, y float64, w, h int) (int, int) {
	px := int(math.Round(x))
	py := int(math.Round(y))
	return max(0, min(w-1, px)), max(0, min(h-1, py))
}
