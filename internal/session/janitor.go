package session

import (
	"context"
	"time"

	"github.com/gonka-ai/inference-gateway/internal/log"
)

// RunJanitor periodically sweeps expired sessions until ctx is canceled,
// mirroring gateway/main.py's _session_cleanup_loop (sleep then
// cleanup_expired, repeat).
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	logger := log.WithComponent("session")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.CleanupExpired(); n > 0 {
				logger.Info().Int("removed", n).Msg("swept expired sessions")
			}
		}
	}
}
