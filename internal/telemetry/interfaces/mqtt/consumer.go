// Package mqtt bridges devices publishing sensor events over MQTT into
// the same ingestion pipeline as the HTTP boundary.
package mqtt

import (
	"context"
	"errors"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"farm-host/internal/telemetry/application"
)

const ingestTimeout = 5 * time.Second

// Ingestor is the gateway surface the consumer needs.
type Ingestor interface {
	Ingest(ctx context.Context, raw []byte) (application.Result, error)
}

// Consumer subscribes to a telemetry topic and feeds each message to the
// gateway. Outcomes are logged; MQTT has no reply channel for them.
type Consumer struct {
	client  paho.Client
	gateway Ingestor
	topic   string
	logger  *log.Logger
}

// NewConsumer constructs a consumer. Connect happens in Start.
func NewConsumer(brokerURL, clientID, topic string, gateway Ingestor, logger *log.Logger) (*Consumer, error) {
	if brokerURL == "" || topic == "" {
		return nil, errors.New("mqtt consumer: broker url and topic required")
	}
	if gateway == nil {
		return nil, errors.New("mqtt consumer: nil gateway")
	}
	if logger == nil {
		logger = log.Default()
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)

	return &Consumer{
		client:  paho.NewClient(opts),
		gateway: gateway,
		topic:   topic,
		logger:  logger,
	}, nil
}

// Start connects and subscribes.
func (c *Consumer) Start() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	token := c.client.Subscribe(c.topic, 0, func(_ paho.Client, msg paho.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
		defer cancel()

		result, err := c.gateway.Ingest(ctx, msg.Payload())
		if err != nil {
			c.logger.Printf("mqtt ingest: %v", err)
			return
		}
		if result.Outcome == application.OutcomeRejected {
			c.logger.Printf("mqtt ingest: rejected: %s", result.Reason)
		}
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.logger.Printf("mqtt ingest: subscribed to %s", c.topic)
	return nil
}

// Close disconnects from the broker.
func (c *Consumer) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Disconnect(250)
}
