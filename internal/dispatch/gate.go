// Package dispatch moves blocking inference calls off request handlers onto a
// bounded set of workers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// Config of the gate
type Config struct {
	Workers   int
	MaxQueued int           // 0 - unlimited
	Timeout   time.Duration // 0 - none, covers waiting and running
}

// Gate admits work in FIFO order and runs at most Workers ops at once
type Gate struct {
	cfg     Config
	sem     *semaphore.Weighted
	waiting atomic.Int64
	metrics *metrics
}

type metrics struct {
	queued   prometheus.Gauge
	running  prometheus.Gauge
	duration prometheus.Histogram
	timeouts prometheus.Counter
	rejected prometheus.Counter
}

// New creates a gate. Metrics are registered in reg when it is not nil.
func New(cfg Config, reg prometheus.Registerer) (*Gate, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("wrong workers count %d", cfg.Workers)
	}
	if cfg.MaxQueued < 0 {
		return nil, fmt.Errorf("wrong queue limit %d", cfg.MaxQueued)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("wrong timeout %v", cfg.Timeout)
	}
	res := &Gate{cfg: cfg, sem: semaphore.NewWeighted(int64(cfg.Workers)), metrics: newMetrics()}
	if reg != nil {
		for _, c := range res.metrics.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}
	goapp.Log.Info().Int("workers", cfg.Workers).Int("maxQueued", cfg.MaxQueued).
		Dur("timeout", cfg.Timeout).Msg("Dispatch gate")
	return res, nil
}

func newMetrics() *metrics {
	return &metrics{
		queued: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "stt", Subsystem: "dispatch",
			Name: "queued", Help: "Requests waiting for a worker"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "stt", Subsystem: "dispatch",
			Name: "running", Help: "Transcriptions in progress"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "stt", Subsystem: "dispatch",
			Name: "duration_seconds", Help: "Transcription run time",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10)}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "stt", Subsystem: "dispatch",
			Name: "timeouts_total", Help: "Requests that hit the transcription timeout"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "stt", Subsystem: "dispatch",
			Name: "rejected_total", Help: "Requests rejected because the queue was full"}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.queued, m.running, m.duration, m.timeouts, m.rejected}
}

// Waiting returns the number of calls waiting for a worker
func (g *Gate) Waiting() int {
	return int(g.waiting.Load())
}

type result[T any] struct {
	value T
	err   error
}

// Run executes op on a worker slot and waits for its result.
// If ctx ends or the timeout passes first, Run returns at once; op keeps
// running and its slot is freed only when op returns.
func Run[T any](ctx context.Context, g *Gate, op func() (T, error)) (T, error) {
	var empty T
	parent := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	if !g.sem.TryAcquire(1) {
		if !g.enqueue() {
			g.metrics.rejected.Inc()
			return empty, domain.NewError(domain.ErrEngineBusy, "Transcription service is busy. Try again later.")
		}
		g.metrics.queued.Inc()
		err := g.sem.Acquire(ctx, 1)
		g.waiting.Add(-1)
		g.metrics.queued.Dec()
		if err != nil {
			return empty, g.stopErr(parent, ctx)
		}
	}

	ch := make(chan result[T], 1)
	go func() {
		defer g.sem.Release(1)
		g.metrics.running.Inc()
		defer g.metrics.running.Dec()
		start := time.Now()
		v, err := safeCall(op)
		g.metrics.duration.Observe(time.Since(start).Seconds())
		ch <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return empty, g.stopErr(parent, ctx)
	}
}

// enqueue takes a waiting place, false when MaxQueued places are taken
func (g *Gate) enqueue() bool {
	for {
		n := g.waiting.Load()
		if g.cfg.MaxQueued > 0 && n >= int64(g.cfg.MaxQueued) {
			return false
		}
		if g.waiting.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (g *Gate) stopErr(parent, ctx context.Context) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("request canceled: %w", err)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.metrics.timeouts.Inc()
		return domain.WrapError(domain.ErrEngineTimeout, ctx.Err(), "Transcription timed out after %s.", g.cfg.Timeout)
	}
	return ctx.Err()
}

func safeCall[T any](op func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			goapp.Log.Error().Str("stack", string(debug.Stack())).Msgf("transcription panic: %v", r)
			err = fmt.Errorf("transcription panic: %v", r)
		}
	}()
	return op()
}
