package timers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_CancelAllStopsEverything(t *testing.T) {
	clock := NewFakeClock()
	reg := NewRegistry(clock)

	fired := 0
	reg.AfterFunc(time.Second, func() { fired++ })
	reg.AfterFunc(3*time.Second, func() { fired++ })
	reg.Every(500*time.Millisecond, func() { fired++ })

	assert.Equal(t, 3, reg.Len())

	reg.CancelAll()
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, clock.Pending())

	// Past every scheduled deadline: nothing may fire.
	clock.Advance(10 * time.Second)
	assert.Equal(t, 0, fired)
}

func TestRegistry_CancelAllIdempotent(t *testing.T) {
	clock := NewFakeClock()
	reg := NewRegistry(clock)

	reg.CancelAll() // empty registry
	reg.AfterFunc(time.Second, func() {})
	reg.CancelAll()
	reg.CancelAll()

	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_UsableAfterCancelAll(t *testing.T) {
	clock := NewFakeClock()
	reg := NewRegistry(clock)

	reg.AfterFunc(time.Second, func() { t.Fatal("cancelled timer fired") })
	reg.CancelAll()

	fired := false
	reg.AfterFunc(time.Second, func() { fired = true })
	clock.Advance(time.Second)
	assert.True(t, fired)
}

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	clock := NewFakeClock()

	var order []string
	clock.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	clock.AfterFunc(time.Second, func() { order = append(order, "a") })
	clock.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	clock.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestFakeClock_PeriodicReschedules(t *testing.T) {
	clock := NewFakeClock()

	ticks := 0
	h := clock.Every(time.Second, func() { ticks++ })

	clock.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, ticks)

	h.Stop()
	clock.Advance(5 * time.Second)
	assert.Equal(t, 3, ticks)
}

func TestFakeClock_CallbackSchedulesWithinWindow(t *testing.T) {
	clock := NewFakeClock()

	var order []string
	clock.AfterFunc(time.Second, func() {
		order = append(order, "first")
		clock.AfterFunc(time.Second, func() { order = append(order, "second") })
	})

	clock.Advance(3 * time.Second)
	assert.Equal(t, []string{"first", "second"}, order)
}
