// Package dispatch routes rendered notifications to their delivery sink.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"feedwatch/internal/model"
	"feedwatch/internal/render"
)

// ChannelSender delivers a payload to a chat channel.
type ChannelSender interface {
	SendChannel(ctx context.Context, channelID int64, p render.Payload) error
}

// WebhookSender delivers a payload to a webhook endpoint under an identity.
type WebhookSender interface {
	Send(ctx context.Context, endpoint string, identity Identity, p render.Payload) error
}

// Identity is the sender override used for webhook delivery.
type Identity struct {
	Name   string
	Avatar string
}

// Dispatcher picks the delivery sink for a subscription and paces outbound
// sends so the chat platform's global limits are respected.
type Dispatcher struct {
	channels ChannelSender
	webhooks WebhookSender
	limiter  *rate.Limiter
	log      *slog.Logger
}

// New creates a Dispatcher pacing sends at ratePerSec.
func New(channels ChannelSender, webhooks WebhookSender, ratePerSec int, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		webhooks: webhooks,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:      log,
	}
}

// Deliver sends the payload through the subscription's webhook identity when
// one is configured, otherwise through the direct channel target. A missing
// target and a failed send are equivalent here: both surface as an error the
// caller logs and moves past.
func (d *Dispatcher) Deliver(ctx context.Context, sub *model.Subscription, p render.Payload) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace send: %w", err)
	}

	if sub.WebhookURL != "" {
		identity := Identity{Name: sub.WebhookName, Avatar: sub.WebhookAvatar}
		if err := d.webhooks.Send(ctx, sub.WebhookURL, identity, p); err != nil {
			return fmt.Errorf("webhook send: %w", err)
		}
		return nil
	}

	if sub.ChannelID == 0 {
		return fmt.Errorf("subscription %d has no delivery target", sub.ID)
	}
	if err := d.channels.SendChannel(ctx, sub.ChannelID, p); err != nil {
		return fmt.Errorf("channel send: %w", err)
	}
	return nil
}
