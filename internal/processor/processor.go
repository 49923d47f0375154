package processor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"imgpress/internal/events"
)

// Engine runs optimization batches. The zero value is not usable: Tools must
// be set, and Codecs should be for JPEG and derived formats to do anything.
type Engine struct {
	Codecs  Codecs
	Tools   ToolPreparer
	Workers int
	Log     *zap.Logger
}

// Run executes one batch and blocks until every worker has returned. It fails
// only before scheduling (invalid config, tool setup, empty input); per-file
// problems just shrink the totals. ctx cancellation is forwarded to cancel.
func (e *Engine) Run(ctx context.Context, cfg RunConfig, cancel *CancelToken, sink events.Sink) (FinalResult, error) {
	started := time.Now()
	log := e.logger()
	if sink == nil {
		sink = events.Discard
	}
	if cancel == nil {
		cancel = &CancelToken{}
	}

	if err := cfg.Validate(); err != nil {
		return FinalResult{}, err
	}

	if e.Tools == nil {
		return FinalResult{}, fmt.Errorf("%w: no tool gateway configured", ErrToolSetup)
	}
	png, err := e.Tools.Prepare(ctx)
	if err != nil {
		return FinalResult{}, fmt.Errorf("%w: %w", ErrToolSetup, err)
	}

	sink.Emit(events.Status("Preparing files..."))

	tasks, err := CollectTasks(cfg)
	if err != nil {
		return FinalResult{}, err
	}
	total := uint64(len(tasks))

	sink.Emit(events.ProgressOf(total, 0, "Starting..."))
	log.Info("run started",
		zap.Int("files", len(tasks)),
		zap.Bool("recompress", cfg.Recompress),
		zap.Bool("webp", cfg.WebP),
		zap.Bool("avif", cfg.AVIF))

	stop := context.AfterFunc(ctx, cancel.Cancel)
	defer stop()
	if ctx.Err() != nil {
		cancel.Cancel()
	}

	p := &pipeline{
		cfg:    cfg,
		codecs: e.Codecs,
		png:    png,
		cancel: cancel,
		sink:   sink,
		log:    log,
		total:  total,
	}

	stats := make([]FileStats, len(tasks))
	jobs := make(chan int)

	workers := e.workers(len(tasks))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				stats[idx] = p.safeProcess(ctx, tasks[idx])
			}
		}()
	}

	for idx := range tasks {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	res := Aggregate(stats, time.Since(started), p.done.Load(), cancel.Canceled())
	log.Info("run finished",
		zap.Uint64("total", res.TotalFiles),
		zap.Uint64("processed", res.ProcessedFiles),
		zap.Bool("canceled", res.Canceled),
		zap.Int64("saved_bytes", res.TotalSaved),
		zap.Duration("elapsed", res.Duration))

	return res, nil
}

func (e *Engine) workers(tasks int) int {
	n := e.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > tasks {
		n = tasks
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// pipeline is the state shared read-only by all workers of a run, plus the
// atomic done counter.
type pipeline struct {
	cfg    RunConfig
	codecs Codecs
	png    Compressor
	cancel *CancelToken
	sink   events.Sink
	log    *zap.Logger
	total  uint64
	done   atomic.Uint64
}

// safeProcess turns a panicking task into zeroed stats.
func (p *pipeline) safeProcess(ctx context.Context, task Task) (stats FileStats) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked",
				zap.String("source", task.Source),
				zap.Any("panic", r))
			stats = FileStats{}
		}
	}()
	return p.process(ctx, task)
}
