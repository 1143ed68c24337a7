package tiercachefx

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const cleanupTimeout = 30 * time.Second

// Cleaner drops expired items from the backing stores.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Janitor periodically runs Cleanup on the backing stores. Redis expires keys
// on its own; the memory and bbolt stores only drop them when asked.
type Janitor struct {
	cleaner  Cleaner
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewJanitor returns a stopped Janitor. A non-positive interval disables it.
func NewJanitor(cleaner Cleaner, interval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,

		stopCh: make(chan struct{}),
	}
}

// Start launches the cleanup loop. Calling it again has no effect.
func (j *Janitor) Start() {
	if j.interval <= 0 {
		j.logger.Debug("store cleanup disabled")
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true

	j.wg.Add(1)
	go j.run()

	j.logger.Info("store cleanup started", zap.Duration("interval", j.interval))
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.cleanup()
		case <-j.stopCh:
			return
		}
	}
}

func (j *Janitor) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := j.cleaner.Cleanup(ctx); err != nil {
		j.logger.Warn("store cleanup failed", zap.Error(err))
	}
}

// Stop ends the cleanup loop and waits for a running pass to finish.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		close(j.stopCh)
	})
	j.wg.Wait()
}
