package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/totegamma/nostrconnect/internal/domain"
)

// SignalService fans session events out through watermill.
type SignalService struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
}

func NewSignalService(publisher message.Publisher, subscriber message.Subscriber, topic string) *SignalService {
	return &SignalService{
		publisher:  publisher,
		subscriber: subscriber,
		topic:      topic,
	}
}

func (s *SignalService) Notify(ctx context.Context, event domain.SessionEvent) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Notify")
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("type", event.Type)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to publish event")
	}
	return nil
}

// Subscribe streams session events until ctx is done.
func (s *SignalService) Subscribe(ctx context.Context) (<-chan domain.SessionEvent, error) {
	if s.subscriber == nil {
		return nil, errors.New("no subscriber configured")
	}

	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.SessionEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			var event domain.SessionEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				slog.WarnContext(
					ctx, "dropping malformed session event",
					slog.String("id", msg.UUID),
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				msg.Ack()
				continue
			}
			msg.Ack()

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
