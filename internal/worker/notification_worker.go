package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/service"
)

const notificationDrainTimeout = 5 * time.Second

// StartNotificationWorker subscribes webhook delivery to coordinator events.
// Once ctx is cancelled it drains in-flight deliveries and closes the
// returned channel.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if notificationService == nil {
		close(done)
		return done
	}
	notificationService.RegisterHandlers()
	go func() {
		defer close(done)
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), notificationDrainTimeout)
		defer cancel()
		if err := notificationService.Wait(drainCtx); err != nil {
			logger.Warn("notification deliveries still in flight at shutdown", zap.Error(err))
		}
	}()
	return done
}
