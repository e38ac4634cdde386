package daemon

import (
	"context"

	"github.com/safegreen/waconsole/internal/bus"
	"go.uber.org/zap"
)

// eventLog mirrors every bus event into the structured log so a profile's
// log file tells the full runtime story.
type eventLog struct {
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func newEventLog(b *bus.Bus, logger *zap.Logger) *eventLog {
	return &eventLog{bus: b, logger: logger}
}

func (s *eventLog) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	ch, unsub := s.bus.Subscribe("", 256)

	go func() {
		defer close(s.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				s.logger.Info("event", zap.String("kind", evt.Kind), zap.Time("at", evt.Timestamp))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *eventLog) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}
