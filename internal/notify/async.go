package notify

import (
	"context"
	"time"

	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"
)

// Async decouples a slow notifier from the caller. Events are buffered and
// dropped with a warning when the buffer is full.
type Async struct {
	next    Notifier
	events  chan models.ControlEvent
	timeout time.Duration
	log     *logger.Logger
}

func NewAsync(next Notifier, buffer int, timeout time.Duration, log *logger.Logger) *Async {
	if buffer <= 0 {
		buffer = 32
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Async{
		next:    next,
		events:  make(chan models.ControlEvent, buffer),
		timeout: timeout,
		log:     log,
	}
}

func (a *Async) Notify(_ context.Context, e models.ControlEvent) error {
	select {
	case a.events <- e:
	default:
		a.log.Warnw("notification_dropped", "type", e.Type, "event_id", e.EventID)
	}
	return nil
}

// Run delivers buffered events until ctx is canceled.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-a.events:
			sendCtx, cancel := context.WithTimeout(ctx, a.timeout)
			if err := a.next.Notify(sendCtx, e); err != nil {
				a.log.Warnw("notification_failed", "type", e.Type, "err", err)
			}
			cancel()
		}
	}
}
