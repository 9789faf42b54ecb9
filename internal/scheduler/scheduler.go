// Package scheduler runs the fixed-interval dispatch loop. The loop owns a
// single timer: Start and Stop are idempotent and report whether they
// changed state, so the operational start/stop endpoints can be called
// repeatedly without side effects. A tick failure (or panic) is logged and
// never prevents the next tick.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Loop invokes a tick function on a fixed interval.
type Loop struct {
	interval time.Duration
	tick     func(context.Context)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Loop. The tick function must tolerate being invoked while a
// previous invocation is still in flight elsewhere (manual sends run
// concurrently with the loop).
func New(interval time.Duration, tick func(context.Context)) (*Loop, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tick == nil {
		return nil, errors.New("tick must not be nil")
	}
	return &Loop{interval: interval, tick: tick}, nil
}

// Start launches the loop. It returns false when the loop was already
// running. The first tick fires immediately, then every interval.
func (l *Loop) Start() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.running = true

	go func(done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		log.Info().Dur("interval", l.interval).Msg("scheduler started")

		l.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("scheduler stopping")
				return
			case <-ticker.C:
				l.safeTick(ctx)
			}
		}
	}(l.done)

	return true
}

// Stop halts the loop and waits for the in-flight tick to return. It
// returns false when the loop was not running.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return false
	}

	l.cancel()
	<-l.done
	l.running = false

	log.Info().Msg("scheduler stopped")
	return true
}

// IsRunning reports whether the loop is active.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// safeTick shields the loop from tick panics so one poisoned tick cannot
// kill the timer.
func (l *Loop) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scheduler tick panic recovered")
		}
	}()

	start := time.Now()
	l.tick(ctx)
	log.Debug().Dur("took", time.Since(start)).Msg("scheduler tick completed")
}
