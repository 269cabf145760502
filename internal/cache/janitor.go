package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type purger interface {
	Purge() int
}

// RunJanitor purges expired in-process entries every interval until ctx
// ends. It returns at once for caches that hold nothing locally.
func RunJanitor(ctx context.Context, c domain.Cache, every time.Duration) {
	p, ok := c.(purger)
	if !ok || every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Purge(); n > 0 {
				slog.Debug("purged expired cache entries", "count", n)
			}
		}
	}
}
