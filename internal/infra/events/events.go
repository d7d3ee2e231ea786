package events

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

// PubSub is a watermill publisher and subscriber pair.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (p PubSub) Close() error {
	if err := p.Publisher.Close(); err != nil {
		return err
	}
	if p.Subscriber != nil {
		return p.Subscriber.Close()
	}
	return nil
}

func NewLogger() watermill.LoggerAdapter {
	return watermill.NewStdLogger(false, false)
}

// NewGoChannel keeps events in process.
func NewGoChannel(logger watermill.LoggerAdapter) PubSub {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	return PubSub{Publisher: ch, Subscriber: ch}
}

// NewRedisStream shares events through a redis stream. Without a consumer
// group every subscriber sees every event.
func NewRedisStream(rdb *redis.Client, logger watermill.LoggerAdapter) (PubSub, error) {
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: rdb,
		},
		logger,
	)
	if err != nil {
		return PubSub{}, err
	}

	subscriber, err := redisstream.NewSubscriber(
		redisstream.SubscriberConfig{
			Client: rdb,
		},
		logger,
	)
	if err != nil {
		publisher.Close()
		return PubSub{}, err
	}

	return PubSub{Publisher: publisher, Subscriber: subscriber}, nil
}
