package monitor

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/event"
)

// PublishSink emits interventions onto the event bus.
func PublishSink(p Publisher) Sink {
	return SinkFunc(func(_ context.Context, iv Intervention) error {
		return p.Publish(event.TopicIntervention, iv)
	})
}

// FanOut emits to every sink and joins their errors.
func FanOut(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, iv Intervention) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Emit(ctx, iv); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
