package timers

import (
	"sync"
	"time"
)

// Clock abstracts timer creation so pipeline code can be driven by a
// virtual clock in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn to run once after d.
	AfterFunc(d time.Duration, fn func()) Handle
	// Every schedules fn to run repeatedly every d until stopped.
	Every(d time.Duration, fn func()) Handle
}

// Handle is a cancelable scheduled callback.
type Handle interface {
	// Stop cancels the callback. Safe to call more than once.
	Stop()
}

// SystemClock implements Clock using real timers.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) Handle {
	return &systemTimer{t: time.AfterFunc(d, fn)}
}

func (SystemClock) Every(d time.Duration, fn func()) Handle {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()
	return &systemTicker{ticker: ticker, done: done}
}

type systemTimer struct {
	t *time.Timer
}

func (s *systemTimer) Stop() { s.t.Stop() }

type systemTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (s *systemTicker) Stop() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
}
