package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cleaner 支持清理过期会话的存储
type Cleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// RunJanitor 定期清理过期会话，直到ctx结束
func RunJanitor(ctx context.Context, c Cleaner, interval time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := c.CleanExpired(ctx)
			if err != nil {
				logger.Warn("failed to clean expired sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("expired sessions removed", zap.Int64("count", n))
			}
		case <-ctx.Done():
			return nil
		}
	}
}
