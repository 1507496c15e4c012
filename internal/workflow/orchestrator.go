// Package workflow sequences the formulation pipeline: image analysis,
// suggestion generation, and formulation synthesis, each a long-running
// operation with simulated progress and strict single-flight semantics.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/craftlabs/forma/internal/models"
	"github.com/craftlabs/forma/internal/progress"
	"github.com/craftlabs/forma/internal/timers"
)

// Stage is one phase of the formulation workflow.
type Stage int

const (
	StageInput Stage = iota
	StageAnalysis
	StageSuggestions
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageInput:
		return "input"
	case StageAnalysis:
		return "analysis"
	case StageSuggestions:
		return "suggestions"
	case StageReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Runner executes the three external formulation operations.
type Runner interface {
	Analyze(ctx context.Context, req models.OperationRequest) (*models.AnalysisResult, error)
	Suggest(ctx context.Context, req models.OperationRequest) ([]models.Suggestion, error)
	Synthesize(ctx context.Context, req models.OperationRequest) (*models.Formulation, error)
}

// Config holds the orchestrator tunables.
type Config struct {
	RampStep        int           // progress percent added per ramp tick
	RampInterval    time.Duration // ramp tick interval
	ErrorClearDelay time.Duration // how long stage errors stay visible
	FinishReset     time.Duration // delay before 100% resets to 0
	Scripts         map[string][]progress.PhaseCue
	CostTarget      float64
}

// DefaultConfig returns the stock orchestrator tunables.
func DefaultConfig() Config {
	return Config{
		RampStep:        8,
		RampInterval:    400 * time.Millisecond,
		ErrorClearDelay: 2000 * time.Millisecond,
		FinishReset:     time.Second,
		Scripts:         progress.DefaultScripts(),
	}
}

// Callbacks receive orchestrator notifications. Any field may be nil.
type Callbacks struct {
	OnChange   func(Snapshot)            // after every state mutation
	OnProgress func(int)                 // simulated progress ticks
	OnPhase    func(string)              // scripted phase labels
	OnResult   func(*models.Formulation) // once per successful synthesis
	OnError    func(string)              // stage operation failures
}

// Snapshot is a read-only copy of the workflow state.
type Snapshot struct {
	Stage       Stage
	InputRef    string
	Description string
	Category    string
	Analysis    *models.AnalysisResult
	Suggestions []models.Suggestion
	Selected    *models.Suggestion
	Prompt      string
	InFlight    bool
	ErrMsg      string
}

// Orchestrator owns the workflow state. Callers issue commands and read
// snapshots; they never mutate state directly. At most one operation is
// in flight at a time, and every teardown path drains the operation's
// timers before anything new starts.
type Orchestrator struct {
	clock  timers.Clock
	runner Runner
	cfg    Config
	cb     Callbacks
	sim    *progress.Simulator

	mu       sync.Mutex
	epoch    uint64
	inFlight bool
	reg      *timers.Registry // error auto-clear timers

	stage       Stage
	inputRef    string
	description string
	category    string
	analysis    *models.AnalysisResult
	suggestions []models.Suggestion
	selected    *models.Suggestion
	prompt      string
	errMsg      string
}

// NewOrchestrator creates an orchestrator at the Input stage. Zero config
// fields fall back to defaults.
func NewOrchestrator(clock timers.Clock, runner Runner, cfg Config, cb Callbacks) *Orchestrator {
	def := DefaultConfig()
	if cfg.RampStep <= 0 {
		cfg.RampStep = def.RampStep
	}
	if cfg.RampInterval <= 0 {
		cfg.RampInterval = def.RampInterval
	}
	if cfg.ErrorClearDelay <= 0 {
		cfg.ErrorClearDelay = def.ErrorClearDelay
	}
	if cfg.FinishReset <= 0 {
		cfg.FinishReset = def.FinishReset
	}
	if cfg.Scripts == nil {
		cfg.Scripts = def.Scripts
	}
	o := &Orchestrator{
		clock:  clock,
		runner: runner,
		cfg:    cfg,
		cb:     cb,
		reg:    timers.NewRegistry(clock),
		stage:  StageInput,
	}
	o.sim = progress.NewSimulator(clock, cb.OnProgress, cb.OnPhase)
	o.sim.SetFinishReset(cfg.FinishReset)
	return o
}

// Snapshot returns a copy of the current workflow state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Stage:       o.stage,
		InputRef:    o.inputRef,
		Description: o.description,
		Category:    o.category,
		Prompt:      o.prompt,
		InFlight:    o.inFlight,
		ErrMsg:      o.errMsg,
	}
	if o.analysis != nil {
		a := *o.analysis
		snap.Analysis = &a
	}
	if len(o.suggestions) > 0 {
		snap.Suggestions = append([]models.Suggestion(nil), o.suggestions...)
	}
	if o.selected != nil {
		sel := *o.selected
		snap.Selected = &sel
	}
	return snap
}

// Progress returns the current simulated progress value.
func (o *Orchestrator) Progress() int {
	return o.sim.Value()
}

// SelectInput replaces the workflow input. Everything downstream of the
// input is invalidated: the current operation's timers are drained and
// the workflow returns to the Input stage.
func (o *Orchestrator) SelectInput(inputRef, description string) {
	o.mu.Lock()
	o.teardownLocked()
	o.inputRef = inputRef
	o.description = description
	o.mu.Unlock()
	o.notify()
}

// SetCategory changes the target category. Downstream results assumed the
// old category, so this tears down and returns to Input like SelectInput,
// keeping the selected input itself.
func (o *Orchestrator) SetCategory(category string) {
	o.mu.Lock()
	o.teardownLocked()
	o.category = category
	o.mu.Unlock()
	o.notify()
}

// Reset returns the workflow to an empty Input stage.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.teardownLocked()
	o.inputRef = ""
	o.description = ""
	o.category = ""
	o.mu.Unlock()
	o.notify()
}

// teardownLocked invalidates the in-flight operation (if any), drains
// its timers, and clears every stage result downstream of Input.
func (o *Orchestrator) teardownLocked() {
	o.epoch++
	o.inFlight = false
	o.sim.Abort()
	o.reg.CancelAll()
	o.stage = StageInput
	o.analysis = nil
	o.suggestions = nil
	o.selected = nil
	o.prompt = ""
	o.errMsg = ""
}

// Analyze runs the image-analysis operation. No-op unless the workflow is
// at Input with an input selected and nothing in flight.
func (o *Orchestrator) Analyze(ctx context.Context) {
	o.mu.Lock()
	if o.inFlight || o.stage != StageInput || o.inputRef == "" {
		o.mu.Unlock()
		return
	}
	epoch, req := o.beginOpLocked(progress.OpAnalyze, o.description)
	o.mu.Unlock()
	o.notify()

	go func() {
		result, err := o.runner.Analyze(ctx, req)
		o.settle(epoch, func() func() {
			if err != nil {
				return o.failLocked(epoch, "analysis failed: "+err.Error())
			}
			o.analysis = result
			o.stage = StageAnalysis
			o.sim.Finish()
			return nil
		})
	}()
}

// GenerateSuggestions runs the suggestion operation. Requires a completed
// analysis; guarded against double invocation.
func (o *Orchestrator) GenerateSuggestions(ctx context.Context) {
	o.mu.Lock()
	if o.inFlight || o.stage != StageAnalysis || o.analysis == nil {
		o.mu.Unlock()
		return
	}
	epoch, req := o.beginOpLocked(progress.OpSuggest, o.analysis.Summary)
	o.mu.Unlock()
	o.notify()

	go func() {
		suggestions, err := o.runner.Suggest(ctx, req)
		o.settle(epoch, func() func() {
			if err != nil {
				return o.failLocked(epoch, "suggestion generation failed: "+err.Error())
			}
			o.suggestions = suggestions
			o.stage = StageSuggestions
			o.sim.Finish()
			return nil
		})
	}()
}

// SelectSuggestion picks one suggestion and advances to Ready, seeding
// the editable prompt with the suggestion's text.
func (o *Orchestrator) SelectSuggestion(index int) {
	o.mu.Lock()
	if o.inFlight || o.stage != StageSuggestions || index < 0 || index >= len(o.suggestions) {
		o.mu.Unlock()
		return
	}
	sel := o.suggestions[index]
	o.selected = &sel
	o.prompt = sel.Text
	o.stage = StageReady
	o.mu.Unlock()
	o.notify()
}

// BackToSuggestions is the one backward transition: from Ready back to
// the suggestion list to choose differently.
func (o *Orchestrator) BackToSuggestions() {
	o.mu.Lock()
	if o.inFlight || o.stage != StageReady {
		o.mu.Unlock()
		return
	}
	o.selected = nil
	o.prompt = ""
	o.stage = StageSuggestions
	o.mu.Unlock()
	o.notify()
}

// SetPrompt edits the final prompt while at Ready.
func (o *Orchestrator) SetPrompt(text string) {
	o.mu.Lock()
	if o.stage != StageReady {
		o.mu.Unlock()
		return
	}
	o.prompt = text
	o.mu.Unlock()
	o.notify()
}

// Synthesize runs the final formulation operation. On success the result
// goes to the caller via OnResult; the workflow stays at Ready so the
// user can refine the prompt and synthesize again.
func (o *Orchestrator) Synthesize(ctx context.Context) {
	o.mu.Lock()
	if o.inFlight || o.stage != StageReady || o.prompt == "" {
		o.mu.Unlock()
		return
	}
	epoch, req := o.beginOpLocked(progress.OpSynthesize, o.prompt)
	o.mu.Unlock()
	o.notify()

	go func() {
		formulation, err := o.runner.Synthesize(ctx, req)
		o.settle(epoch, func() func() {
			if err != nil {
				return o.failLocked(epoch, "synthesis failed: "+err.Error())
			}
			o.sim.Finish()
			if o.cb.OnResult == nil {
				return nil
			}
			return func() { o.cb.OnResult(formulation) }
		})
	}()
}

// beginOpLocked marks an operation in flight, starts its progress ramp,
// and builds the request payload.
func (o *Orchestrator) beginOpLocked(op, promptText string) (uint64, models.OperationRequest) {
	o.epoch++
	o.inFlight = true
	o.errMsg = ""
	o.sim.Begin(o.cfg.RampStep, o.cfg.RampInterval, o.cfg.Scripts[op])
	return o.epoch, models.OperationRequest{
		InputRef:   o.inputRef,
		PromptText: promptText,
		Category:   o.category,
		CostTarget: o.cfg.CostTarget,
	}
}

// settle applies an operation outcome unless the operation was superseded
// while it ran. apply runs under the lock and may return a callback to
// invoke after the lock is released.
func (o *Orchestrator) settle(epoch uint64, apply func() func()) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}
	o.inFlight = false
	after := apply()
	o.mu.Unlock()
	if after != nil {
		after()
	}
	o.notify()
}

// failLocked records a stage error that auto-clears. The stage does not
// change: the caller may retry the same transition. Returns the OnError
// dispatch to run outside the lock.
func (o *Orchestrator) failLocked(epoch uint64, msg string) func() {
	o.sim.Abort()
	o.errMsg = msg
	o.reg.AfterFunc(o.cfg.ErrorClearDelay, func() {
		o.mu.Lock()
		if epoch != o.epoch || o.errMsg != msg {
			o.mu.Unlock()
			return
		}
		o.errMsg = ""
		o.mu.Unlock()
		o.notify()
	})
	if o.cb.OnError == nil {
		return nil
	}
	return func() { o.cb.OnError(msg) }
}

func (o *Orchestrator) notify() {
	if o.cb.OnChange != nil {
		o.cb.OnChange(o.Snapshot())
	}
}
