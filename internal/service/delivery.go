package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-engine/internal/config"
	"github.com/spec-kit/lifecycle-engine/internal/domain"
)

// Deliverer hands a due scheduled message to the outbound channel of its item.
type Deliverer interface {
	Deliver(ctx context.Context, item domain.Item, msg domain.ScheduledMessage) error
}

// DeliveryFunc adapts a function to Deliverer.
type DeliveryFunc func(ctx context.Context, item domain.Item, msg domain.ScheduledMessage) error

// Deliver calls f.
func (f DeliveryFunc) Deliver(ctx context.Context, item domain.Item, msg domain.ScheduledMessage) error {
	return f(ctx, item, msg)
}

// LogDeliverer only records the delivery. Used when no outbound webhook is configured.
type LogDeliverer struct {
	Logger *zap.Logger
}

// Deliver logs the message.
func (d LogDeliverer) Deliver(_ context.Context, item domain.Item, msg domain.ScheduledMessage) error {
	if d.Logger != nil {
		d.Logger.Info("scheduled message delivered",
			zap.String("item_id", item.ID),
			zap.String("channel", string(item.Channel)),
			zap.String("scheduled_message_id", msg.ID))
	}
	return nil
}

// WebhookDeliverer posts due messages to the channel gateway.
type WebhookDeliverer struct {
	url     string
	timeout time.Duration
	logger  *zap.Logger
}

type webhookPayload struct {
	ItemID             string    `json:"item_id"`
	Channel            string    `json:"channel"`
	CustomerID         string    `json:"customer_id"`
	ScheduledMessageID string    `json:"scheduled_message_id"`
	Content            string    `json:"content"`
	SenderID           string    `json:"sender_id"`
	ScheduledFor       time.Time `json:"scheduled_for"`
}

// NewDeliverer returns a webhook deliverer when a URL is configured and a log deliverer otherwise.
func NewDeliverer(cfg config.NotificationConfig, logger *zap.Logger) Deliverer {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return LogDeliverer{Logger: logger}
	}
	timeout := time.Duration(cfg.WebhookTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookDeliverer{url: cfg.WebhookURL, timeout: timeout, logger: logger}
}

// Deliver posts the message and treats any non-2xx answer as a failure.
func (d *WebhookDeliverer) Deliver(_ context.Context, item domain.Item, msg domain.ScheduledMessage) error {
	agent := fiber.Post(d.url).
		Timeout(d.timeout).
		JSON(webhookPayload{
			ItemID:             item.ID,
			Channel:            string(item.Channel),
			CustomerID:         item.CustomerID,
			ScheduledMessageID: msg.ID,
			Content:            msg.Content,
			SenderID:           msg.CreatedBy,
			ScheduledFor:       msg.ScheduledFor,
		})
	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook delivery: %w", errs[0])
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return fmt.Errorf("webhook delivery: status %d: %s", status, stringPreview(string(body), 200))
	}
	if d.logger != nil {
		d.logger.Debug("webhook delivered",
			zap.String("item_id", item.ID),
			zap.String("scheduled_message_id", msg.ID),
			zap.Int("status", status))
	}
	return nil
}
