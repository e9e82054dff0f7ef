package tracking

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// GateDecision is the stability gate's verdict for one observation.
type GateDecision int

const (
	// GateNotYetStable means the recent window is missing or too noisy.
	GateNotYetStable GateDecision = iota
	// GateStillSampling means the window is stable but more samples are needed.
	GateStillSampling
	// GateStableAccepted means the target is ready to be accepted.
	GateStableAccepted
)

func (d GateDecision) String() string {
	switch d {
	case GateStillSampling:
		return "still_sampling"
	case GateStableAccepted:
		return "stable_accepted"
	default:
		return "not_yet_stable"
	}
}

// MarshalText renders the decision by name in JSON.
func (d GateDecision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// StabilityGate decides when a fixation on one target is steady enough to keep.
//
// The stability counter rises by one for every stable window and falls by
// InstabilityPenalty for every unstable one, so a twitch costs several frames of
// steady fixation.
type StabilityGate struct {
	holdSamples    int
	window         int
	minStable      int
	tolerance      float64
	penalty        int
	forceAcceptMin int
	trimFraction   float64
	centerDecay    float64

	samples   []GazeVector
	counter   int
	stableEAR []float64 // eye openness seen on stable frames of this target
}

// NewStabilityGate creates a gate from the calibration settings of cfg.
func NewStabilityGate(cfg Config) *StabilityGate {
	return &StabilityGate{
		holdSamples:    cfg.HoldSamples,
		window:         cfg.StabilityWindow,
		minStable:      cfg.MinStableFrames,
		tolerance:      cfg.StableTolerance,
		penalty:        cfg.InstabilityPenalty,
		forceAcceptMin: cfg.ForceAcceptMin,
		trimFraction:   cfg.TrimFraction,
		centerDecay:    cfg.CenterDecay,
		samples:        make([]GazeVector, 0, cfg.HoldSamples),
	}
}

// Observe buffers one gaze sample and updates the stability counter.
func (g *StabilityGate) Observe(gaze GazeVector, ear float64) GateDecision {
	if len(g.samples) == g.holdSamples {
		copy(g.samples, g.samples[1:])
		g.samples = g.samples[:len(g.samples)-1]
	}
	g.samples = append(g.samples, gaze)

	decision := GateNotYetStable
	if len(g.samples) >= g.window {
		xs, ys := gazeAxes(g.samples[len(g.samples)-g.window:])
		if math.Max(popStdDev(xs), popStdDev(ys)) < g.tolerance {
			g.counter++
			g.stableEAR = append(g.stableEAR, ear)
			decision = GateStillSampling
		} else {
			g.counter = max(0, g.counter-g.penalty)
		}
	}

	if g.Ready() {
		return GateStableAccepted
	}
	return decision
}

// Ready reports whether both the hold target and the stability threshold are met.
func (g *StabilityGate) Ready() bool {
	return len(g.samples) >= g.holdSamples && g.counter >= g.minStable
}

// Len returns the number of buffered samples.
func (g *StabilityGate) Len() int {
	return len(g.samples)
}

// Progress returns sample and stability progress, both in [0, 1].
func (g *StabilityGate) Progress() (samples, stability float64) {
	samples = float64(len(g.samples)) / float64(g.holdSamples)
	stability = math.Min(1, float64(g.counter)/float64(g.minStable))
	return samples, stability
}

// Accept reduces the buffer to one robust gaze estimate and clears the gate.
// It also returns the eye openness values recorded on stable frames.
// With ForceAcceptMin or fewer samples nothing changes and ErrInsufficientFixation
// is returned.
func (g *StabilityGate) Accept() (GazeVector, []float64, error) {
	if len(g.samples) <= g.forceAcceptMin {
		return GazeVector{}, nil, fmt.Errorf("%w: have %d, need more than %d",
			ErrInsufficientFixation, len(g.samples), g.forceAcceptMin)
	}

	avg := robustAverage(g.samples, g.trimFraction, g.centerDecay)
	ear := g.stableEAR
	g.reset()
	return avg, ear, nil
}

// Spread returns the per-axis std-dev of the samples robustAverage would keep.
func (g *StabilityGate) Spread() (sx, sy float64) {
	kept := trimmed(g.samples, g.trimFraction)
	pts := make([]GazeVector, len(kept))
	for i, k := range kept {
		pts[i] = g.samples[k]
	}
	xs, ys := gazeAxes(pts)
	return popStdDev(xs), popStdDev(ys)
}

// Discard drops the partial buffer, used when a target is skipped.
// The eye openness recorded on its stable frames is returned so it can still be pooled.
func (g *StabilityGate) Discard() []float64 {
	ear := g.stableEAR
	g.reset()
	return ear
}

func (g *StabilityGate) reset() {
	g.samples = g.samples[:0]
	g.counter = 0
	g.stableEAR = nil
}

// trimmed returns the buffer indices of the samples closest to the per-axis median,
// keeping the given fraction of them.
func trimmed(samples []GazeVector, fraction float64) []int {
	if len(samples) == 0 {
		return nil
	}
	xs, ys := gazeAxes(samples)
	med := GazeVector{X: median(xs), Y: median(ys)}

	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return samples[idx[a]].Dist(med) < samples[idx[b]].Dist(med)
	})

	keep := max(1, int(float64(len(samples))*fraction))
	return idx[:keep]
}

// robustAverage keeps the samples nearest the median and averages them with weights
// that fall off with distance from the buffer's temporal center.
func robustAverage(samples []GazeVector, fraction, decay float64) GazeVector {
	center := len(samples) / 2
	kept := trimmed(samples, fraction)

	xs := make([]float64, len(kept))
	ys := make([]float64, len(kept))
	ws := make([]float64, len(kept))
	for j, i := range kept {
		xs[j], ys[j] = samples[i].X, samples[i].Y
		ws[j] = 1 / (1 + decay*math.Abs(float64(i-center)))
	}
	return GazeVector{X: stat.Mean(xs, ws), Y: stat.Mean(ys, ws)}
}
