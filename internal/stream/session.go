package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/craftlabs/forma/internal/models"
	"github.com/craftlabs/forma/internal/timers"
)

// SessionState is the lifecycle state of one stream session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateStreaming
	StateComplete
	StateError
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OpenFunc opens the byte stream for one request. It must return an error
// (and no body) for non-2xx responses and transport failures.
type OpenFunc func(ctx context.Context, req models.OperationRequest) (io.ReadCloser, error)

// Config holds the caller-overridable session timings.
type Config struct {
	SuccessClearDelay time.Duration // lastUpdate auto-clear after complete
	ErrorClearDelay   time.Duration // lastUpdate auto-clear after error
}

// DefaultConfig returns the stock auto-clear delays.
func DefaultConfig() Config {
	return Config{
		SuccessClearDelay: 3000 * time.Millisecond,
		ErrorClearDelay:   5000 * time.Millisecond,
	}
}

// Callbacks receive session notifications. Any field may be nil.
type Callbacks struct {
	OnStatus func(models.StatusUpdate) // every parsed update
	OnResult func(payload []byte)      // once, on complete
	OnError  func(msg string)          // once, on error
	OnClear  func()                    // when lastUpdate auto-clears
}

// Controller owns at most one live stream session. Starting a new session
// tears down the previous one first; a monotonically increasing epoch
// discards anything a superseded session delivers late.
type Controller struct {
	clock  timers.Clock
	open   OpenFunc
	cfg    Config
	cb     Callbacks
	logger *slog.Logger

	mu    sync.Mutex
	state SessionState
	epoch uint64
	last  *models.StatusUpdate
	reg   *timers.Registry
	body  io.ReadCloser
}

// NewController creates an idle controller. Zero delays in cfg fall back
// to the defaults.
func NewController(clock timers.Clock, open OpenFunc, cfg Config, cb Callbacks, logger *slog.Logger) *Controller {
	def := DefaultConfig()
	if cfg.SuccessClearDelay <= 0 {
		cfg.SuccessClearDelay = def.SuccessClearDelay
	}
	if cfg.ErrorClearDelay <= 0 {
		cfg.ErrorClearDelay = def.ErrorClearDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		clock:  clock,
		open:   open,
		cfg:    cfg,
		cb:     cb,
		logger: logger,
		state:  StateIdle,
	}
}

// Start opens a new session for req, replacing any live one.
func (c *Controller) Start(ctx context.Context, req models.OperationRequest) {
	c.mu.Lock()
	c.teardownLocked()
	c.epoch++
	epoch := c.epoch
	c.state = StateStreaming
	c.reg = timers.NewRegistry(c.clock)
	c.mu.Unlock()

	go c.consume(ctx, epoch, req)
}

// Stop cancels the live session: the stream is closed, all timers are
// drained, and lastUpdate clears immediately. Late reads from the old
// session are discarded by the epoch guard.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.teardownLocked()
	c.epoch++
	c.state = StateCancelled
	c.mu.Unlock()
}

// teardownLocked releases the current session's resources without
// bumping the epoch or picking the next state.
func (c *Controller) teardownLocked() {
	if c.body != nil {
		_ = c.body.Close()
		c.body = nil
	}
	if c.reg != nil {
		c.reg.CancelAll()
	}
	c.last = nil
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastUpdate returns a copy of the most recent update, or nil.
func (c *Controller) LastUpdate() *models.StatusUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	u := *c.last
	return &u
}

func (c *Controller) consume(ctx context.Context, epoch uint64, req models.OperationRequest) {
	body, err := c.open(ctx, req)
	if err != nil || body == nil {
		if err != nil {
			c.logger.Warn("stream open failed", "error", err)
		}
		c.fail(epoch, "connection to formulation service failed")
		return
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		_ = body.Close()
		return
	}
	c.body = body
	c.mu.Unlock()

	dec := &FrameDecoder{}
	buf := make([]byte, 4096)
	terminal := false
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range dec.Decode(buf[:n]) {
				terminal = c.handleLine(epoch, line) || terminal
			}
		}
		if err == io.EOF {
			if line, ok := dec.Flush(); ok {
				terminal = c.handleLine(epoch, line) || terminal
			}
			if !terminal {
				c.fail(epoch, "stream ended before completion")
			}
			return
		}
		if err != nil {
			c.fail(epoch, "stream interrupted")
			return
		}
	}
}

// handleLine parses and applies one frame. Returns true once the session
// reached a terminal state.
func (c *Controller) handleLine(epoch uint64, line string) bool {
	update, ok := ParseUpdate(c.logger, line)
	if !ok {
		return false
	}

	c.mu.Lock()
	if epoch != c.epoch || c.state != StateStreaming {
		c.mu.Unlock()
		return epoch != c.epoch
	}

	// Progress never moves backwards within a session.
	if c.last != nil && update.Progress < c.last.Progress {
		update.Progress = c.last.Progress
	}
	u := update
	c.last = &u

	terminal := false
	switch update.Status {
	case models.KindComplete:
		c.state = StateComplete
		c.scheduleClearLocked(epoch, c.cfg.SuccessClearDelay)
		terminal = true
	case models.KindError:
		c.state = StateError
		c.scheduleClearLocked(epoch, c.cfg.ErrorClearDelay)
		terminal = true
	}
	c.mu.Unlock()

	if c.cb.OnStatus != nil {
		c.cb.OnStatus(update)
	}
	switch update.Status {
	case models.KindComplete:
		if c.cb.OnResult != nil {
			c.cb.OnResult(update.Payload)
		}
	case models.KindError:
		if c.cb.OnError != nil {
			c.cb.OnError(update.Error)
		}
	}
	return terminal
}

// fail transitions the session to Error with a synthetic transport
// failure. A stale epoch means the session was superseded; nothing fires.
func (c *Controller) fail(epoch uint64, msg string) {
	c.mu.Lock()
	if epoch != c.epoch || c.state != StateStreaming {
		c.mu.Unlock()
		return
	}
	c.state = StateError
	c.last = &models.StatusUpdate{Status: models.KindError, Error: msg}
	c.scheduleClearLocked(epoch, c.cfg.ErrorClearDelay)
	c.mu.Unlock()

	if c.cb.OnError != nil {
		c.cb.OnError(msg)
	}
}

func (c *Controller) scheduleClearLocked(epoch uint64, delay time.Duration) {
	c.reg.AfterFunc(delay, func() {
		c.mu.Lock()
		if epoch != c.epoch {
			c.mu.Unlock()
			return
		}
		c.last = nil
		c.mu.Unlock()
		if c.cb.OnClear != nil {
			c.cb.OnClear()
		}
	})
}
