package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"feedwatch/internal/model"
	"feedwatch/internal/render"
)

type stubChannels struct {
	channelIDs []int64
	err        error
}

func (s *stubChannels) SendChannel(_ context.Context, channelID int64, _ render.Payload) error {
	s.channelIDs = append(s.channelIDs, channelID)
	return s.err
}

type stubWebhooks struct {
	endpoints  []string
	identities []Identity
	err        error
}

func (s *stubWebhooks) Send(_ context.Context, endpoint string, identity Identity, _ render.Payload) error {
	s.endpoints = append(s.endpoints, endpoint)
	s.identities = append(s.identities, identity)
	return s.err
}

func newTestDispatcher(ch *stubChannels, wh *stubWebhooks) *Dispatcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(ch, wh, 100, log)
}

func TestDeliverRouting(t *testing.T) {
	ctx := context.Background()

	t.Run("channel delivery", func(t *testing.T) {
		ch, wh := &stubChannels{}, &stubWebhooks{}
		d := newTestDispatcher(ch, wh)

		sub := model.Subscription{ID: 1, ChannelID: 42}
		if err := d.Deliver(ctx, &sub, render.Payload{Title: "Post"}); err != nil {
			t.Fatalf("deliver: %v", err)
		}
		if len(ch.channelIDs) != 1 || ch.channelIDs[0] != 42 {
			t.Errorf("expected channel 42, got %v", ch.channelIDs)
		}
		if len(wh.endpoints) != 0 {
			t.Error("webhook sink must not be used for channel subscriptions")
		}
	})

	t.Run("webhook wins over channel", func(t *testing.T) {
		ch, wh := &stubChannels{}, &stubWebhooks{}
		d := newTestDispatcher(ch, wh)

		sub := model.Subscription{
			ID: 1, ChannelID: 42,
			WebhookURL:    "https://hooks.example.com/abc",
			WebhookName:   "Feed Bot",
			WebhookAvatar: "https://cdn.example.com/avatar.png",
		}
		if err := d.Deliver(ctx, &sub, render.Payload{Title: "Post"}); err != nil {
			t.Fatalf("deliver: %v", err)
		}
		if len(wh.endpoints) != 1 || wh.endpoints[0] != "https://hooks.example.com/abc" {
			t.Errorf("expected webhook endpoint, got %v", wh.endpoints)
		}
		want := Identity{Name: "Feed Bot", Avatar: "https://cdn.example.com/avatar.png"}
		if wh.identities[0] != want {
			t.Errorf("identity = %+v, want %+v", wh.identities[0], want)
		}
		if len(ch.channelIDs) != 0 {
			t.Error("channel sink must not be used for webhook subscriptions")
		}
	})

	t.Run("no delivery target", func(t *testing.T) {
		d := newTestDispatcher(&stubChannels{}, &stubWebhooks{})
		sub := model.Subscription{ID: 7}
		if err := d.Deliver(ctx, &sub, render.Payload{}); err == nil {
			t.Fatal("expected error for subscription without a target")
		}
	})

	t.Run("sink failure surfaces", func(t *testing.T) {
		ch := &stubChannels{err: errors.New("telegram down")}
		d := newTestDispatcher(ch, &stubWebhooks{})
		sub := model.Subscription{ID: 1, ChannelID: 42}
		if err := d.Deliver(ctx, &sub, render.Payload{}); err == nil {
			t.Fatal("expected send error to surface")
		}
	})
}
