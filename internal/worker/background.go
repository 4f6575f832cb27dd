package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-automation/internal/service"
	"github.com/spec-kit/ticket-automation/internal/sweeper"
)

// Background supervises the in-process background components: the
// notification event handlers and the time-trigger sweeper.
type Background struct {
	sweep  *sweeper.Sweeper
	logger *zap.Logger
}

// Start registers the notification handlers on the event stream and starts
// the sweeper when one is provided. A nil sweeper is valid and means the
// sweeping feature is disabled.
func Start(notifications *service.NotificationService, sweep *sweeper.Sweeper, logger *zap.Logger) (*Background, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if notifications != nil {
		notifications.RegisterHandlers()
		logger.Info("notification handlers registered")
	}

	if sweep != nil {
		if err := sweep.Start(); err != nil {
			return nil, err
		}
		logger.Info("time-trigger sweeper started")
	}

	return &Background{sweep: sweep, logger: logger}, nil
}

// Stop halts the background components. Safe to call once on shutdown.
func (b *Background) Stop() {
	if b == nil {
		return
	}
	if b.sweep != nil {
		b.sweep.Stop()
	}
	b.logger.Info("background workers stopped")
}
