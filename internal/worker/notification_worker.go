package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartRealtimeRelay runs the Redis relay in the background until ctx ends.
// The returned channel closes once the relay has stopped.
func StartRealtimeRelay(ctx context.Context, broker *realtime.Broker, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		broker.Run(ctx)
		logger.Debug("realtime relay stopped")
	}()
	return done
}
