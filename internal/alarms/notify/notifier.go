// Package notify delivers fired alerts to external channels (webhooks).
// Delivery is best-effort: the ingestion pipeline never waits on it.
package notify

import (
	"context"
	"errors"
	"log"
	"time"

	alarms "farm-host/internal/alarms/domain"
)

// Channel delivers rendered notification content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// Notifier renders fired alerts and pushes them through a channel.
type Notifier struct {
	channel  Channel
	template *Template
	timeout  time.Duration
	logger   *log.Logger
}

// Option configures the notifier.
type Option func(*Notifier)

// WithTimeout bounds a single delivery attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		timeout:  5 * time.Second,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify renders and sends one alert in the background. Failures are
// logged and never propagate to the caller.
func (n *Notifier) Notify(_ context.Context, alert alarms.Alert) {
	if n == nil || n.channel == nil {
		return
	}
	content, err := n.template.Render(buildTemplateData(alert))
	if err != nil {
		n.logger.Printf("notify: render %s: %v", alert.Code, err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.channel.Send(ctx, content); err != nil {
			n.logger.Printf("notify: send %s for %s: %v", alert.Code, alert.Device, err)
		}
	}()
}
