package gateway

import (
	"context"
	"time"

	"github.com/sipeed/picobot/pkg/cron"
	"github.com/sipeed/picobot/pkg/logger"
	"github.com/sipeed/picobot/pkg/ratelimit"
	"github.com/sipeed/picobot/pkg/state"
)

// PendingSweepJob drops continuations nobody answered within ttl.
func PendingSweepJob(store state.Store, ttl time.Duration, expr string) cron.Job {
	return cron.Job{
		Name: "pending-sweep",
		Expr: expr,
		Run: func(ctx context.Context) error {
			n, err := store.PurgeOlderThan(ctx, time.Now().Add(-ttl))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.InfoCF("gateway", "Stale continuations removed", map[string]any{"count": n})
			}
			return nil
		},
	}
}

// LimiterPruneJob forgets idle per-user rate limiters.
func LimiterPruneJob(l *ratelimit.Limiter, expr string) cron.Job {
	return cron.Job{
		Name: "limiter-prune",
		Expr: expr,
		Run: func(context.Context) error {
			l.Prune()
			return nil
		},
	}
}
