// Package progress fakes forward motion for an operation whose real
// completion time is unknown: a capped ramp plus scripted phase labels.
package progress

import (
	"sync"
	"time"

	"github.com/craftlabs/forma/internal/timers"
)

// rampCap is the highest value the ramp reaches on its own. Only a real
// completion signal moves progress to 100.
const rampCap = 90

// defaultFinishReset is how long the 100% value lingers before resetting.
const defaultFinishReset = time.Second

// Simulator produces a monotonically increasing progress value and
// scripted phase labels for one operation at a time. All of its timers
// live in a registry that Begin replaces and Finish/Abort drain, so a
// superseded ramp can never tick into the next one.
type Simulator struct {
	clock       timers.Clock
	onProgress  func(int)
	onPhase     func(string)
	finishReset time.Duration

	mu     sync.Mutex
	reg    *timers.Registry
	gen    uint64
	value  int
	active bool
}

// NewSimulator creates an idle simulator. Either callback may be nil.
func NewSimulator(clock timers.Clock, onProgress func(int), onPhase func(string)) *Simulator {
	return &Simulator{
		clock:       clock,
		onProgress:  onProgress,
		onPhase:     onPhase,
		finishReset: defaultFinishReset,
	}
}

// SetFinishReset overrides the delay between Finish and the reset to 0.
func (s *Simulator) SetFinishReset(d time.Duration) {
	if d > 0 {
		s.finishReset = d
	}
}

// Begin starts a fresh ramp: value climbs by step every interval, capped
// at 90, and each cue fires its label after its offset. Any prior ramp is
// torn down first.
func (s *Simulator) Begin(step int, interval time.Duration, cues []PhaseCue) {
	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.value = 0
	s.active = true
	s.reg = timers.NewRegistry(s.clock)

	s.reg.Every(interval, func() { s.tick(gen, step) })
	for _, cue := range cues {
		label := cue.Label
		s.reg.AfterFunc(cue.After, func() { s.phase(gen, label) })
	}
	s.mu.Unlock()
}

// Finish reports real completion: the ramp stops, progress jumps to 100,
// and after a short delay resets to 0 (the stage transition has already
// happened by then).
func (s *Simulator) Finish() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.reg.CancelAll()
	s.active = false
	s.value = 100
	gen := s.gen
	s.reg.AfterFunc(s.finishReset, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.value = 0
		s.mu.Unlock()
		s.emit(0)
	})
	s.mu.Unlock()
	s.emit(100)
}

// Abort tears the ramp down without claiming completion. Used on failure
// and cancellation.
func (s *Simulator) Abort() {
	s.mu.Lock()
	if s.reg == nil {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.gen++
	s.value = 0
	s.mu.Unlock()
	s.emit(0)
}

// Value returns the current simulated progress.
func (s *Simulator) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *Simulator) teardownLocked() {
	if s.reg != nil {
		s.reg.CancelAll()
	}
	s.active = false
}

func (s *Simulator) tick(gen uint64, step int) {
	s.mu.Lock()
	if gen != s.gen || !s.active {
		s.mu.Unlock()
		return
	}
	s.value += step
	if s.value > rampCap {
		s.value = rampCap
	}
	v := s.value
	s.mu.Unlock()
	s.emit(v)
}

func (s *Simulator) phase(gen uint64, label string) {
	s.mu.Lock()
	stale := gen != s.gen || !s.active
	s.mu.Unlock()
	if stale {
		return
	}
	if s.onPhase != nil {
		s.onPhase(label)
	}
}

func (s *Simulator) emit(v int) {
	if s.onProgress != nil {
		s.onProgress(v)
	}
}
