// Package guard serializes optimization runs. A Guard admits at most one run
// at a time and remembers the result of the last one that completed.
//
// All run state lives in a single goroutine; callers reach it by sending
// closures.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imgpress/internal/events"
	"imgpress/internal/processor"
)

var (
	ErrAlreadyRunning = errors.New("a run is already in progress")
	ErrClosed         = errors.New("run guard is closed")
	ErrRunFailed      = errors.New("run failed unexpectedly")
)

// Runner executes one batch. *processor.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, cfg processor.RunConfig, cancel *processor.CancelToken, sink events.Sink) (processor.FinalResult, error)
}

// Handle tracks a started run.
type Handle struct {
	ID uuid.UUID

	done   chan struct{}
	result processor.FinalResult
	err    error
}

// Done is closed once the run has finished and the guard is idle again.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its outcome.
func (h *Handle) Wait() (processor.FinalResult, error) {
	<-h.done
	return h.result, h.err
}

type state struct {
	running bool
	runID   uuid.UUID
	last    *processor.FinalResult
}

// Guard is the run state machine: Idle or Running.
type Guard struct {
	runner Runner
	sink   events.Sink
	log    *zap.Logger

	token processor.CancelToken

	ops       chan func(*state)
	quit      chan struct{}
	closeOnce sync.Once
}

// New starts the guard's owner goroutine. Call Close to stop it.
func New(runner Runner, sink events.Sink, log *zap.Logger) *Guard {
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	g := &Guard{
		runner: runner,
		sink:   sink,
		log:    log,
		ops:    make(chan func(*state)),
		quit:   make(chan struct{}),
	}
	go g.loop()
	return g
}

func (g *Guard) loop() {
	var st state
	for {
		select {
		case op := <-g.ops:
			op(&st)
		case <-g.quit:
			return
		}
	}
}

// do runs op on the owner goroutine and waits for it.
func (g *Guard) do(op func(*state)) error {
	done := make(chan struct{})
	select {
	case g.ops <- func(s *state) {
		defer close(done)
		op(s)
	}:
	case <-g.quit:
		return ErrClosed
	}
	<-done
	return nil
}

// Start launches a run in the background. It fails with ErrAlreadyRunning,
// leaving the active run untouched, if one is in progress. ctx bounds the
// run itself, not just the call, so it should outlive the caller's request.
func (g *Guard) Start(ctx context.Context, cfg processor.RunConfig) (*Handle, error) {
	var (
		h   *Handle
		err error
	)
	if e := g.do(func(s *state) {
		if s.running {
			err = ErrAlreadyRunning
			return
		}
		g.token.Reset()
		s.running = true
		s.last = nil
		s.runID = uuid.New()
		h = &Handle{ID: s.runID, done: make(chan struct{})}
	}); e != nil {
		return nil, e
	}
	if err != nil {
		return nil, err
	}

	g.log.Info("run admitted", zap.String("run_id", h.ID.String()), zap.Int("inputs", len(cfg.Tasks)))
	g.sink.Emit(events.RunState(true))

	go g.execute(ctx, cfg, h)
	return h, nil
}

// Run starts a run and waits for it.
func (g *Guard) Run(ctx context.Context, cfg processor.RunConfig) (uuid.UUID, processor.FinalResult, error) {
	h, err := g.Start(ctx, cfg)
	if err != nil {
		return uuid.Nil, processor.FinalResult{}, err
	}
	res, err := h.Wait()
	return h.ID, res, err
}

func (g *Guard) execute(ctx context.Context, cfg processor.RunConfig, h *Handle) {
	log := g.log.With(zap.String("run_id", h.ID.String()))

	res, err := g.runSafely(ctx, cfg)
	if err != nil {
		log.Warn("run aborted", zap.Error(err))
		g.sink.Emit(events.Status(err.Error()))
	} else {
		log.Info("run complete",
			zap.Uint64("processed", res.ProcessedFiles),
			zap.Uint64("total", res.TotalFiles),
			zap.Bool("canceled", res.Canceled))
	}

	if e := g.do(func(s *state) {
		s.running = false
		if err == nil {
			last := res
			s.last = &last
		}
	}); e != nil {
		log.Debug("guard closed before run finished")
	}
	g.sink.Emit(events.RunState(false))

	h.result, h.err = res, err
	close(h.done)
}

func (g *Guard) runSafely(ctx context.Context, cfg processor.RunConfig) (res processor.FinalResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = processor.FinalResult{}
			err = fmt.Errorf("%w: %v", ErrRunFailed, r)
		}
	}()
	return g.runner.Run(ctx, cfg, &g.token, g.sink)
}

// Cancel asks the active run to stop at its next checkpoint. It is a no-op
// when nothing is running and safe to call repeatedly.
func (g *Guard) Cancel() {
	_ = g.do(func(s *state) {
		if s.running {
			g.token.Cancel()
		}
	})
}

// Running reports whether a run is active.
func (g *Guard) Running() bool {
	var running bool
	if err := g.do(func(s *state) { running = s.running }); err != nil {
		return false
	}
	return running
}

// LastResult returns the result of the most recent successful run. It
// reports false while a run is active or before any run has completed.
func (g *Guard) LastResult() (processor.FinalResult, bool) {
	var (
		res processor.FinalResult
		ok  bool
	)
	_ = g.do(func(s *state) {
		if s.running || s.last == nil {
			return
		}
		res, ok = *s.last, true
	})
	return res, ok
}

// Close cancels any active run and stops the owner goroutine. Later calls
// to Start return ErrClosed.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		g.Cancel()
		close(g.quit)
	})
}
