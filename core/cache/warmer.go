package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Warmer refreshes collection snapshots on a cron schedule, so dashboard reads rarely miss.
type Warmer struct {
	cron        *cron.Cron
	cache       *Cache
	collections []string
	timeout     time.Duration
}

// NewWarmer schedules the refresh of the collections. schedule accepts the standard cron
// format and descriptors such as "@every 1m".
func NewWarmer(c *Cache, schedule string, timeout time.Duration, collections ...string) (*Warmer, error) {
	w := &Warmer{
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		cache:       c,
		collections: collections,
		timeout:     timeout,
	}
	if _, err := w.cron.AddFunc(schedule, w.Warm); err != nil {
		return nil, errors.Wrapf(err, "scheduling cache warmer %q", schedule)
	}
	return w, nil
}

// Warm refreshes every collection once.
func (w *Warmer) Warm() {
	ctx, cancel := context.WithTimeout(w.cache.ctx, w.timeout)
	defer cancel()

	start := time.Now()
	for _, col := range w.collections {
		w.cache.Refresh(ctx, col)
	}
	w.cache.logger.Debug(fmt.Sprintf("cache: warmed %d collections in %v", len(w.collections), time.Since(start)))
}

func (w *Warmer) Start() {
	w.cron.Start()
}

// Stop stops the schedule and waits for a running refresh.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
}
