package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/config"
)

// Event types carried on the queue
const (
	MediaUploaded = "MediaUploaded"
)

// QueueMessage is the common envelope for queue traffic
type QueueMessage struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// MediaUploadedMessage asks the worker to post-process a fresh upload
type MediaUploadedMessage struct {
	MediaID     uint   `json:"mediaId"`
	EventID     uint   `json:"eventId"`
	StoragePath string `json:"storagePath"`
	ContentType string `json:"contentType"`
}

// Publisher sends messages to the media processing queue
type Publisher interface {
	PublishMediaUploaded(ctx context.Context, msg MediaUploadedMessage) error
	Close() error
}

// serviceBusPublisher implements Publisher on Azure Service Bus
type serviceBusPublisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewPublisher creates a Service Bus publisher for the configured queue
func NewPublisher(cfg config.AzureConfig) (Publisher, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus sender")
	}

	return &serviceBusPublisher{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
	}, nil
}

// PublishMediaUploaded enqueues one post-processing request
func (p *serviceBusPublisher) PublishMediaUploaded(ctx context.Context, msg MediaUploadedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message body")
	}
	envelope, err := json.Marshal(QueueMessage{EventType: MediaUploaded, Data: data})
	if err != nil {
		return errors.Wrap(err, "failed to marshal message envelope")
	}

	sbMsg := &azservicebus.Message{
		Body: envelope,
		ApplicationProperties: map[string]interface{}{
			"source": "snapevent-api",
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	return p.sender.SendMessage(ctx, sbMsg, nil)
}

// Close closes the sender and the underlying client
func (p *serviceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(context.Background())
	}
	return nil
}

// MediaHandler processes one uploaded-media message
type MediaHandler interface {
	HandleMediaUploaded(ctx context.Context, msg MediaUploadedMessage) error
}

// Consumer pulls messages from the media queue and dispatches them
type Consumer struct {
	client    *azservicebus.Client
	receiver  *azservicebus.Receiver
	handler   MediaHandler
	queueName string
}

// NewConsumer creates a peek-lock consumer on the media queue
func NewConsumer(cfg config.AzureConfig, handler MediaHandler) (*Consumer, error) {
	if cfg.QueueConnStr == "" {
		return nil, errors.New("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus client")
	}

	receiver, err := client.NewReceiverForQueue(cfg.QueueName, &azservicebus.ReceiverOptions{
		ReceiveMode: azservicebus.ReceiveModePeekLock,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Service Bus receiver")
	}

	return &Consumer{
		client:    client,
		receiver:  receiver,
		handler:   handler,
		queueName: cfg.QueueName,
	}, nil
}

// Run receives and processes messages until the context is cancelled.
// Handler failures abandon the message so the bus redelivers it.
func (c *Consumer) Run(ctx context.Context) error {
	log.Info().Str("queue", c.queueName).Msg("Media queue consumer started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := c.receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to receive messages, backing off")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, msg := range messages {
			if err := c.processMessage(ctx, msg); err != nil {
				log.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to process message")
				if err := c.receiver.AbandonMessage(ctx, msg, nil); err != nil {
					log.Error().Err(err).Msg("Failed to abandon message")
				}
				continue
			}
			if err := c.receiver.CompleteMessage(ctx, msg, nil); err != nil {
				log.Error().Err(err).Msg("Failed to complete message")
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *azservicebus.ReceivedMessage) error {
	var envelope QueueMessage
	if err := json.Unmarshal(msg.Body, &envelope); err != nil {
		return errors.Wrap(err, "error unmarshalling message")
	}

	switch envelope.EventType {
	case MediaUploaded:
		var cmd MediaUploadedMessage
		if err := json.Unmarshal(envelope.Data, &cmd); err != nil {
			return errors.Wrap(err, "error unmarshalling media payload")
		}
		return c.handler.HandleMediaUploaded(ctx, cmd)
	default:
		return errors.Errorf("unsupported event type: %s", envelope.EventType)
	}
}

// Close closes the receiver and the underlying client
func (c *Consumer) Close() error {
	if c.receiver != nil {
		if err := c.receiver.Close(context.Background()); err != nil {
			return err
		}
	}
	if c.client != nil {
		return c.client.Close(context.Background())
	}
	return nil
}
