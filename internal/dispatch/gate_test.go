package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airenas/whisper-stt/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "ok", cfg: Config{Workers: 2}},
		{name: "no workers", cfg: Config{}, wantErr: true},
		{name: "queue", cfg: Config{Workers: 1, MaxQueued: -1}, wantErr: true},
		{name: "timeout", cfg: Config{Workers: 1, Timeout: -time.Second}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, nil)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestNew_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(Config{Workers: 1}, reg)
	require.Nil(t, err)
	_, err = New(Config{Workers: 1}, reg)
	assert.NotNil(t, err)
}

func TestRun(t *testing.T) {
	g, err := New(Config{Workers: 1}, nil)
	require.Nil(t, err)
	v, err := Run(context.Background(), g, func() (string, error) { return "olia", nil })
	require.Nil(t, err)
	assert.Equal(t, "olia", v)

	_, err = Run(context.Background(), g, func() (string, error) { return "", errors.New("fail") })
	assert.Equal(t, "fail", err.Error())
}

func TestRun_Panic(t *testing.T) {
	g, err := New(Config{Workers: 1}, nil)
	require.Nil(t, err)
	_, err = Run(context.Background(), g, func() (int, error) { panic("boom") })
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "boom")
	// slot is released
	v, err := Run(context.Background(), g, func() (int, error) { return 1, nil })
	assert.Nil(t, err)
	assert.Equal(t, 1, v)
}

func TestRun_Bounded(t *testing.T) {
	g, err := New(Config{Workers: 2}, nil)
	require.Nil(t, err)
	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(context.Background(), g, func() (bool, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return true, nil
			})
			assert.Nil(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestRun_FIFO(t *testing.T) {
	g, err := New(Config{Workers: 1}, nil)
	require.Nil(t, err)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), g, func() (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	var lock sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = Run(context.Background(), g, func() (int, error) {
				lock.Lock()
				order = append(order, i)
				lock.Unlock()
				return i, nil
			})
		}(i)
		require.Eventually(t, func() bool { return g.Waiting() == i }, time.Second, time.Millisecond)
	}
	close(release)
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRun_Busy(t *testing.T) {
	g, err := New(Config{Workers: 1, MaxQueued: 1}, nil)
	require.Nil(t, err)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), g, func() (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started
	done := make(chan error, 1)
	go func() {
		_, err := Run(context.Background(), g, func() (int, error) { return 0, nil })
		done <- err
	}()
	require.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)

	_, err = Run(context.Background(), g, func() (int, error) { return 0, nil })
	assert.True(t, errors.Is(err, domain.ErrEngineBusy))
	close(release)
	assert.Nil(t, <-done)
}

func TestRun_BusyConcurrent(t *testing.T) {
	g, err := New(Config{Workers: 1, MaxQueued: 2}, nil)
	require.Nil(t, err)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), g, func() (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	const callers = 20
	var peak atomic.Int32
	rejected := make(chan struct{}, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(context.Background(), g, func() (int, error) { return 0, nil })
			if errors.Is(err, domain.ErrEngineBusy) {
				rejected <- struct{}{}
			}
		}()
	}
	require.Eventually(t, func() bool {
		if w := int32(g.Waiting()); w > peak.Load() {
			peak.Store(w)
		}
		return len(rejected) == callers-2
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, g.Waiting())
	close(release)
	wg.Wait()
	assert.Equal(t, callers-2, len(rejected))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_Timeout(t *testing.T) {
	g, err := New(Config{Workers: 1, Timeout: 20 * time.Millisecond}, nil)
	require.Nil(t, err)
	release := make(chan struct{})
	finished := make(chan struct{})
	_, err = Run(context.Background(), g, func() (int, error) {
		defer close(finished)
		<-release
		return 1, nil
	})
	assert.True(t, errors.Is(err, domain.ErrEngineTimeout))

	// slot is still taken by the abandoned call
	_, err = Run(context.Background(), g, func() (int, error) { return 2, nil })
	assert.True(t, errors.Is(err, domain.ErrEngineTimeout))

	close(release)
	<-finished
	v, err := Run(context.Background(), g, func() (int, error) { return 3, nil })
	require.Nil(t, err)
	assert.Equal(t, 3, v)
}

func TestRun_Canceled(t *testing.T) {
	g, err := New(Config{Workers: 1}, nil)
	require.Nil(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = Run(ctx, g, func() (int, error) {
		<-release
		return 1, nil
	})
	close(release)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domain.ErrEngineTimeout))
}
