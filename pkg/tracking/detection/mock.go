package detection

import "sync"

// MockDetector returns scripted results, one per call. The last entry repeats.
type MockDetector struct {
	mu      sync.Mutex
	Results [][]FaceLandmarks
	Err     error
	Calls   int
	Closed  bool
}

// Detect implements Detector.
func (m *MockDetector) Detect(jpeg []byte) ([]FaceLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Results) == 0 {
		return nil, nil
	}
	i := min(m.Calls-1, len(m.Results)-1)
	return m.Results[i], nil
}

// Close implements Detector.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
