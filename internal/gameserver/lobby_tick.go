package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LobbyTicker periodically invokes a broadcast callback, typically
// Coordinator.BroadcastLobby.
//
// Invariant: the callback is never invoked concurrently with itself.
type LobbyTicker struct {
	initialDelay time.Duration
	interval     time.Duration
	fn           func() error
	logger       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLobbyTicker returns a ticker that first fires after initialDelay and then
// every interval.
//
// Precondition: interval must be > 0 and initialDelay >= 0; fn and logger must be non-nil.
func NewLobbyTicker(initialDelay, interval time.Duration, fn func() error, logger *zap.Logger) *LobbyTicker {
	if interval <= 0 {
		panic("gameserver.NewLobbyTicker: interval must be > 0")
	}
	if initialDelay < 0 {
		panic("gameserver.NewLobbyTicker: initialDelay must be >= 0")
	}
	return &LobbyTicker{
		initialDelay: initialDelay,
		interval:     interval,
		fn:           fn,
		logger:       logger,
	}
}

// Start begins the tick loop. It runs until ctx is cancelled or Stop is called.
// Calling Start on a running ticker is a no-op.
func (l *LobbyTicker) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (l *LobbyTicker) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *LobbyTicker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay := time.NewTimer(l.initialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}
	l.tick()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick runs the callback once. Errors and panics are logged; the loop continues.
func (l *LobbyTicker) tick() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("lobby tick panicked", zap.Any("panic", r))
		}
	}()
	if err := l.fn(); err != nil {
		l.logger.Warn("lobby tick failed", zap.Error(err))
	}
}
