package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftlabs/forma/internal/models"
	"github.com/craftlabs/forma/internal/timers"
)

// sessionHarness wires a Controller to an in-memory pipe so tests can
// feed frames and observe callbacks.
type sessionHarness struct {
	clock    *timers.FakeClock
	ctrl     *Controller
	writer   *io.PipeWriter
	writers  chan *io.PipeWriter
	statuses chan models.StatusUpdate
	results  chan []byte
	errs     chan string
	clears   chan struct{}
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		clock:    timers.NewFakeClock(),
		writers:  make(chan *io.PipeWriter, 4),
		statuses: make(chan models.StatusUpdate, 16),
		results:  make(chan []byte, 4),
		errs:     make(chan string, 4),
		clears:   make(chan struct{}, 4),
	}
	open := func(ctx context.Context, req models.OperationRequest) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		h.writers <- pw
		return pr, nil
	}
	h.ctrl = NewController(h.clock, open, Config{}, Callbacks{
		OnStatus: func(u models.StatusUpdate) { h.statuses <- u },
		OnResult: func(p []byte) { h.results <- p },
		OnError:  func(msg string) { h.errs <- msg },
		OnClear:  func() { h.clears <- struct{}{} },
	}, discard)
	return h
}

func (h *sessionHarness) start(t *testing.T) {
	t.Helper()
	h.ctrl.Start(context.Background(), models.OperationRequest{InputRef: "img-1"})
	// Wait for the consume goroutine to open the pipe.
	select {
	case h.writer = <-h.writers:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session to open its stream")
	}
}

func (h *sessionHarness) send(t *testing.T, frame string) {
	t.Helper()
	_, err := h.writer.Write([]byte(frame))
	require.NoError(t, err)
}

func (h *sessionHarness) waitStatus(t *testing.T) models.StatusUpdate {
	t.Helper()
	select {
	case u := <-h.statuses:
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status")
		return models.StatusUpdate{}
	}
}

func (h *sessionHarness) waitClear(t *testing.T) {
	t.Helper()
	select {
	case <-h.clears:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clear")
	}
}

func TestController_CompleteFlow(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)
	assert.Equal(t, StateStreaming, h.ctrl.State())

	h.send(t, "data: {\"status\":\"thinking\",\"progress\":10}\n")
	assert.Equal(t, models.KindThinking, h.waitStatus(t).Status)

	h.send(t, "data: {\"status\":\"analyzing\",\"progress\":40}\n")
	assert.Equal(t, 40, h.waitStatus(t).Progress)

	h.send(t, "data: {\"status\":\"complete\",\"progress\":100,\"payload\":{\"summary\":\"done\"}}\n")
	last := h.waitStatus(t)
	assert.Equal(t, models.KindComplete, last.Status)

	select {
	case payload := <-h.results:
		assert.JSONEq(t, `{"summary":"done"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("OnResult never fired")
	}
	assert.Equal(t, StateComplete, h.ctrl.State())
	require.NotNil(t, h.ctrl.LastUpdate())

	// Not cleared before the success delay...
	h.clock.Advance(2900 * time.Millisecond)
	assert.NotNil(t, h.ctrl.LastUpdate())

	// ...cleared once it elapses.
	h.clock.Advance(100 * time.Millisecond)
	h.waitClear(t)
	assert.Nil(t, h.ctrl.LastUpdate())

	// OnResult fired exactly once.
	assert.Empty(t, h.results)
}

func TestController_SplitFrameAcrossChunks(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)

	h.send(t, `data: {"status":"anal`)
	h.send(t, "yzing\",\"progress\":40}\n")

	u := h.waitStatus(t)
	assert.Equal(t, models.KindAnalyzing, u.Status)
	assert.Equal(t, 40, u.Progress)
	assert.Empty(t, h.statuses, "exactly one update expected")
}

func TestController_ErrorFlow(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)

	h.send(t, "data: {\"status\":\"error\",\"error\":\"model overloaded\"}\n")
	assert.Equal(t, models.KindError, h.waitStatus(t).Status)

	select {
	case msg := <-h.errs:
		assert.Equal(t, "model overloaded", msg)
	case <-time.After(time.Second):
		t.Fatal("OnError never fired")
	}
	assert.Equal(t, StateError, h.ctrl.State())

	// Error clear uses the longer delay.
	h.clock.Advance(3 * time.Second)
	assert.NotNil(t, h.ctrl.LastUpdate())
	h.clock.Advance(2 * time.Second)
	h.waitClear(t)
	assert.Nil(t, h.ctrl.LastUpdate())
}

func TestController_StopClearsImmediately(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)

	h.send(t, "data: {\"status\":\"thinking\",\"progress\":10}\n")
	h.waitStatus(t)

	h.ctrl.Stop()
	assert.Equal(t, StateCancelled, h.ctrl.State())
	assert.Nil(t, h.ctrl.LastUpdate(), "stop clears synchronously, no delay")
	assert.Equal(t, 0, h.clock.Pending(), "all session timers drained")

	// A late chunk from the torn-down session produces no callback.
	_, _ = h.writer.Write([]byte("data: {\"status\":\"analyzing\",\"progress\":50}\n"))
	h.clock.Advance(10 * time.Second)
	assert.Empty(t, h.statuses)
	assert.Empty(t, h.errs)
	assert.Empty(t, h.clears)
}

func TestController_StartReplacesLiveSession(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)

	h.send(t, "data: {\"status\":\"thinking\",\"progress\":10}\n")
	h.waitStatus(t)
	h.ctrl.Start(context.Background(), models.OperationRequest{InputRef: "img-2"})
	select {
	case h.writer = <-h.writers:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replacement session")
	}
	assert.Equal(t, StateStreaming, h.ctrl.State())

	h.send(t, "data: {\"status\":\"analyzing\",\"progress\":20}\n")
	u := h.waitStatus(t)
	assert.Equal(t, models.KindAnalyzing, u.Status)
}

func TestController_OpenFailureBecomesError(t *testing.T) {
	clock := timers.NewFakeClock()
	errs := make(chan string, 1)
	open := func(ctx context.Context, req models.OperationRequest) (io.ReadCloser, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	ctrl := NewController(clock, open, Config{}, Callbacks{
		OnError: func(msg string) { errs <- msg },
	}, discard)

	ctrl.Start(context.Background(), models.OperationRequest{})
	select {
	case msg := <-errs:
		assert.Equal(t, "connection to formulation service failed", msg)
	case <-time.After(time.Second):
		t.Fatal("OnError never fired")
	}
	assert.Equal(t, StateError, ctrl.State())
}

func TestController_EOFWithoutTerminalBecomesError(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)

	h.send(t, "data: {\"status\":\"thinking\",\"progress\":10}\n")
	h.waitStatus(t)

	require.NoError(t, h.writer.Close())
	select {
	case msg := <-h.errs:
		assert.Equal(t, "stream ended before completion", msg)
	case <-time.After(time.Second):
		t.Fatal("OnError never fired")
	}
	assert.Equal(t, StateError, h.ctrl.State())
}

func TestController_ProgressNeverDecreases(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)

	h.send(t, "data: {\"status\":\"analyzing\",\"progress\":40}\n")
	assert.Equal(t, 40, h.waitStatus(t).Progress)

	h.send(t, "data: {\"status\":\"researching\",\"progress\":25}\n")
	assert.Equal(t, 40, h.waitStatus(t).Progress, "regressing progress is clamped")
}

func TestController_MalformedFrameDoesNotKillStream(t *testing.T) {
	h := newSessionHarness(t)
	h.start(t)

	h.send(t, "data: {broken\n")
	h.send(t, "data: {\"status\":\"thinking\",\"progress\":5}\n")
	assert.Equal(t, models.KindThinking, h.waitStatus(t).Status)
}
