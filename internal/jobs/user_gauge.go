package jobs

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/metrics"
)

type UserCounter interface {
	CountUsersByRole(ctx context.Context) (map[auth.Role]int, error)
}

// StartUserGaugeJob refreshes the per-role user gauge once immediately and then
// on every tick until ctx is done. The returned channel closes when the
// goroutine exits.
func StartUserGaugeJob(ctx context.Context, interval time.Duration, users UserCounter, m *metrics.Metrics, log logr.Logger) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := 10 * time.Second
	if interval < timeout {
		timeout = interval
	}

	refresh := func() {
		tickCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		counts, err := users.CountUsersByRole(tickCtx)
		if err != nil {
			log.Error(err, "user gauge refresh failed")
			return
		}
		// Roles without users still need a zero sample.
		for _, role := range auth.Roles() {
			if _, ok := counts[role]; !ok {
				counts[role] = 0
			}
		}
		m.SetUsers(counts)
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		refresh()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				refresh()
			}
		}
	}()
	return done
}
