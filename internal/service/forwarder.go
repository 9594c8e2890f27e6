package service

import (
	"context"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/event"
	"github.com/boddenberg/finance-core/internal/port"

	"go.uber.org/zap"
)

const forwardTimeout = 5 * time.Second

// ForwardEvents subscribes pub to every event of each emitter. Publishing
// happens after the write already succeeded, so failures are logged and
// dropped. The returned func detaches all subscriptions.
func ForwardEvents(pub port.EventPublisher, logger *zap.Logger, emitters ...*event.Emitter) func() {
	unsubs := make([]func(), 0, len(emitters))
	for _, em := range emitters {
		unsubs = append(unsubs, em.SubscribeAll(func(ctx context.Context, ev domain.Event) {
			// the request context may be cancelled right after the response is written
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forwardTimeout)
			defer cancel()

			if err := pub.Publish(pctx, ev); err != nil {
				logger.Warn("event publish failed",
					zap.String("event", string(ev.Name)),
					zap.String("user_id", ev.UserID),
					zap.Error(err),
				)
			}
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
