package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// cleaner periodically removes expired history in the background.
type cleaner struct {
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newCleaner(logger *zap.Logger) *cleaner {
	return &cleaner{logger: logger, stopCh: make(chan struct{}), done: make(chan struct{})}
}

// start runs cleanup every freq until stop is called.
func (c *cleaner) start(freq time.Duration, cleanup func(ctx context.Context) (int64, error)) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(freq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := cleanup(context.Background())
				if err != nil {
					c.logger.Error("Failed to clean up prediction history", zap.Error(err))
					continue
				}
				c.logger.Debug("Cleaned up expired prediction history", zap.Int64("expired_count", n))
			case <-c.stopCh:
				return
			}
		}
	}()
}

// stop ends the background task and waits for it. Safe to call if start
// was never called.
func (c *cleaner) stop(started bool) {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if started {
			<-c.done
		}
	})
}
