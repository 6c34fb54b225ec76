package scheduler

import (
	"context"
	"time"

	"github.com/lojasmm/feishubot/internal/dedup"
	"github.com/lojasmm/feishubot/internal/metrics"
	"github.com/lojasmm/feishubot/internal/session"
)

// PurgeDedup deletes expired dedup records. Backends that expire entries on
// their own do not implement dedup.Purger and get no job.
func (s *Scheduler) PurgeDedup(store dedup.Store, interval time.Duration) error {
	p, ok := store.(dedup.Purger)
	if !ok {
		s.log.Debug().Msg("dedup backend expires records itself, no purge job")
		return nil
	}
	return s.Every("dedup-purge", interval, func(ctx context.Context) error {
		n, err := p.Purge(ctx)
		if err != nil {
			return err
		}
		metrics.DedupPurged.Add(float64(n))
		if n > 0 {
			s.log.Info().Int("removed", n).Msg("dedup: purged expired records")
		}
		return nil
	})
}

// CleanupSessions drops chat locks idle for longer than maxAge.
func (s *Scheduler) CleanupSessions(m *session.Manager, interval, maxAge time.Duration) error {
	return s.Every("session-cleanup", interval, func(context.Context) error {
		if n := m.Cleanup(maxAge); n > 0 {
			s.log.Debug().Int("removed", n).Msg("session: cleaned up idle chat locks")
		}
		return nil
	})
}
