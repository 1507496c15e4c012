package progress

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlabs/forma/internal/timers"
)

type simHarness struct {
	clock  *timers.FakeClock
	sim    *Simulator
	values []int
	phases []string
}

func newSimHarness() *simHarness {
	h := &simHarness{clock: timers.NewFakeClock()}
	h.sim = NewSimulator(h.clock,
		func(v int) { h.values = append(h.values, v) },
		func(label string) { h.phases = append(h.phases, label) },
	)
	return h
}

func TestSimulator_RampIsMonotonicAndCapped(t *testing.T) {
	h := newSimHarness()
	h.sim.Begin(10, time.Second, nil)

	h.clock.Advance(20 * time.Second)

	require.NotEmpty(t, h.values)
	prev := 0
	for _, v := range h.values {
		assert.GreaterOrEqual(t, v, prev, "progress must never decrease")
		assert.LessOrEqual(t, v, 90, "ramp alone never claims completion")
		prev = v
	}
	assert.Equal(t, 90, h.sim.Value())
}

func TestSimulator_PhaseCuesFireAtOffsets(t *testing.T) {
	h := newSimHarness()
	h.sim.Begin(10, 10*time.Second, []PhaseCue{
		{After: time.Second, Label: "first"},
		{After: 3 * time.Second, Label: "second"},
		{After: 5 * time.Second, Label: "third"},
	})

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, []string{"first"}, h.phases)

	h.clock.Advance(4 * time.Second)
	assert.Equal(t, []string{"first", "second", "third"}, h.phases)
}

func TestSimulator_FinishForcesHundredThenResets(t *testing.T) {
	h := newSimHarness()
	h.sim.Begin(10, time.Second, nil)
	h.clock.Advance(3 * time.Second)

	h.sim.Finish()
	assert.Equal(t, 100, h.sim.Value())

	// Ramp is cancelled: nothing ticks past 100.
	h.clock.Advance(900 * time.Millisecond)
	assert.Equal(t, 100, h.sim.Value())

	h.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 0, h.sim.Value())
}

func TestSimulator_AbortTearsDownWithoutCompletion(t *testing.T) {
	h := newSimHarness()
	h.sim.Begin(10, time.Second, []PhaseCue{{After: 2 * time.Second, Label: "late"}})
	h.clock.Advance(time.Second)

	h.sim.Abort()
	assert.Equal(t, 0, h.sim.Value())
	assert.Equal(t, 0, h.clock.Pending(), "abort drains every timer")

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 0, h.sim.Value())
	assert.NotContains(t, h.phases, "late")
	assert.NotContains(t, h.values, 100)
}

func TestSimulator_BeginReplacesPriorRamp(t *testing.T) {
	h := newSimHarness()
	h.sim.Begin(10, time.Second, []PhaseCue{{After: 5 * time.Second, Label: "old"}})
	h.clock.Advance(3 * time.Second)
	assert.Equal(t, 30, h.sim.Value())

	h.sim.Begin(5, time.Second, nil)
	assert.Equal(t, 0, h.sim.Value(), "new ramp starts from zero")

	h.clock.Advance(4 * time.Second)
	assert.Equal(t, 20, h.sim.Value())
	assert.NotContains(t, h.phases, "old", "superseded cues must not fire")
}

func TestSimulator_FinishIdempotent(t *testing.T) {
	h := newSimHarness()
	h.sim.Begin(10, time.Second, nil)
	h.sim.Finish()
	h.sim.Finish() // second call is a no-op
	assert.Equal(t, 100, h.sim.Value())
}

func TestLoadScripts_Defaults(t *testing.T) {
	scripts, err := LoadScripts("")
	require.NoError(t, err)
	assert.Len(t, scripts[OpAnalyze], 3)
	assert.Len(t, scripts[OpSuggest], 3)
	assert.Len(t, scripts[OpSynthesize], 3)
}

func TestLoadScripts_FileOverridesOneOperation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phases.yaml")
	content := `operations:
  analyze:
    - after: 2s
      label: "Looking closely..."
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	scripts, err := LoadScripts(path)
	require.NoError(t, err)
	require.Len(t, scripts[OpAnalyze], 1)
	assert.Equal(t, 2*time.Second, scripts[OpAnalyze][0].After)
	assert.Equal(t, "Looking closely...", scripts[OpAnalyze][0].Label)

	// Untouched operations keep defaults.
	assert.Len(t, scripts[OpSynthesize], 3)
}

func TestLoadScripts_MissingFile(t *testing.T) {
	_, err := LoadScripts(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
