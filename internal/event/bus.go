// Package event carries facilitation events (interventions, state snapshots,
// refresh outcomes) to observers over a watermill gochannel pub/sub.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// #region topics
// Topic names an event stream. The topic doubles as the envelope type seen by
// websocket observers.
type Topic string

const (
	TopicIntervention Topic = "intervention"
	TopicState        Topic = "session_state"
	TopicRefresh      Topic = "refresh_outcome"
)

// AllTopics lists every topic the controller publishes.
var AllTopics = []Topic{TopicIntervention, TopicState, TopicRefresh}

// ErrClosed is returned when publishing or subscribing on a closed bus.
var ErrClosed = errors.New("event bus closed")

// #endregion topics

// #region envelope
// Envelope is what subscribers receive.
type Envelope struct {
	ID   string          `json:"id"`
	Type Topic           `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// #endregion envelope

// #region bus
// Bus is a process-local pub/sub. Publishing to a topic without subscribers
// drops the event. Publish returns once every subscriber of the topic has
// taken the envelope, so each subscriber sees a topic's events in publish
// order.
type Bus struct {
	mu     sync.RWMutex
	pubsub *gochannel.GoChannel
	closed bool
}

// NewBus creates a bus. A nil logger disables watermill's internal logging.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            128,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: true,
			},
			logger,
		),
	}
}

// Publish marshals payload as JSON and publishes it on topic.
func (b *Bus) Publish(topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(string(topic), msg); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// Subscribe streams envelopes for the given topics until ctx is done or the
// bus is closed. The returned channel is closed afterwards.
func (b *Bus) Subscribe(ctx context.Context, topics ...Topic) (<-chan Envelope, error) {
	if len(topics) == 0 {
		topics = AllTopics
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	sources := make([]<-chan *message.Message, 0, len(topics))
	for _, topic := range topics {
		msgs, err := b.pubsub.Subscribe(ctx, string(topic))
		if err != nil {
			b.mu.RUnlock()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}
		sources = append(sources, msgs)
	}
	b.mu.RUnlock()

	out := make(chan Envelope, 64)
	var wg sync.WaitGroup
	for i, msgs := range sources {
		wg.Add(1)
		go func(topic Topic, msgs <-chan *message.Message) {
			defer wg.Done()
			for msg := range msgs {
				env := Envelope{ID: msg.UUID, Type: topic, Data: json.RawMessage(msg.Payload)}
				// ack only once forwarded; the publisher holds the next
				// message until then
				select {
				case out <- env:
					msg.Ack()
				case <-ctx.Done():
					msg.Ack()
					return
				}
			}
		}(topics[i], msgs)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Close closes the bus; active subscriptions end.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// #endregion bus
