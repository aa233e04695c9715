package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/lariat-run/lariat/pkg/queue"
)

// NewChannel builds the message transport for the queue layer. "kafka" is
// the durable production broker; "gochannel" is an in-process broker for
// local development and single-binary setups.
func NewChannel(provider string, logger *slog.Logger, serviceName string) (message.Publisher, message.Subscriber, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := queue.NewKafkaChannel(watermillLogger, serviceName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return pub, sub, nil
	case "gochannel":
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)

		return pubSub, pubSub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported queue provider: %q", provider)
	}
}
