package job

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewRouter creates a message router with recovery, correlation IDs and three
// retries.
func NewRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)
	return router, nil
}

// AddProcessor subscribes the job service to the jobs topic
func (s *JobService) AddProcessor(router *message.Router, subscriber message.Subscriber) {
	router.AddNoPublisherHandler(
		"job_processor",
		Topic,
		subscriber,
		s.ProcessJobMessage,
	)
}

// NewGoChannel returns an in-process pub/sub. Publisher and subscriber must
// be the same instance.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, logger)
}

// NewAMQPPublisher connects a durable queue publisher
func NewAMQPPublisher(url string, logger watermill.LoggerAdapter) (*amqp.Publisher, error) {
	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(url), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}
	return publisher, nil
}

// NewAMQPSubscriber connects a durable queue subscriber. Nacked messages are
// not requeued; the router retries them first.
func NewAMQPSubscriber(url string, logger watermill.LoggerAdapter) (*amqp.Subscriber, error) {
	config := amqp.NewDurableQueueConfig(url)
	config.Consume.NoRequeueOnNack = true
	subscriber, err := amqp.NewSubscriber(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
	}
	return subscriber, nil
}
