// Package checker sequences the feed-check and dispatch pipeline.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"feedwatch/internal/fetcher"
	"feedwatch/internal/filter"
	"feedwatch/internal/model"
	"feedwatch/internal/ratelimit"
	"feedwatch/internal/render"
	"feedwatch/internal/storage"
)

// Result is the outcome of checking one subscription.
type Result struct {
	Posted bool
	Err    string
}

// FeedFetcher fetches and normalizes a feed document.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Document, error)
}

// Deliverer sends a rendered payload to a subscription's delivery sink.
type Deliverer interface {
	Deliver(ctx context.Context, sub *model.Subscription, p render.Payload) error
}

// AlertSender escalates feed-health messages to a guild's alert channel.
type AlertSender interface {
	SendAlert(ctx context.Context, channelID int64, text string) error
}

// Checker runs the gate sequence for subscriptions and owns the
// single-flight guarantee across scheduled cycles.
type Checker struct {
	store     storage.Storage
	fetcher   FeedFetcher
	limiter   *ratelimit.Limiter
	deliverer Deliverer
	alerts    AlertSender
	log       *slog.Logger

	running atomic.Bool
}

// New creates a Checker. alerts may be nil when no escalation sink exists.
func New(store storage.Storage, f FeedFetcher, limiter *ratelimit.Limiter, d Deliverer, alerts AlertSender, log *slog.Logger) *Checker {
	return &Checker{
		store:     store,
		fetcher:   f,
		limiter:   limiter,
		deliverer: d,
		alerts:    alerts,
		log:       log,
	}
}

// CheckAll runs CheckOne for every non-paused subscription, strictly
// sequentially. Overlapping invocations are skipped outright rather than
// queued; the return value reports whether the cycle ran.
func (c *Checker) CheckAll(ctx context.Context) bool {
	if !c.running.CompareAndSwap(false, true) {
		c.log.Warn("previous feed check still running, skipping cycle")
		return false
	}
	defer c.running.Store(false)

	subs, err := c.store.ListActiveSubscriptions(ctx)
	if err != nil {
		c.log.Error("list active subscriptions", "error", err)
		return true
	}

	for i := range subs {
		if ctx.Err() != nil {
			return true
		}
		sub := &subs[i]
		res := c.CheckOne(ctx, sub, false)
		if res.Posted {
			c.log.Info("posted notification", "subscription_id", sub.ID, "feed", sub.FeedURL)
		}
	}
	return true
}

// CheckOne fetches one subscription's feed and runs the gate sequence for
// its latest item: filter, then (unless forced) duplicate guard, then rate
// limit. State mutations follow the outcome: fetch errors are recorded on
// the subscription, filter and duplicate rejections advance the last-seen
// marker, rate-limit rejections leave it untouched so the item is retried
// next cycle, and a forced check bypasses the duplicate guard only.
func (c *Checker) CheckOne(ctx context.Context, sub *model.Subscription, force bool) Result {
	doc, err := c.fetcher.Fetch(ctx, sub.FeedURL)
	if err != nil {
		msg := err.Error()
		c.log.Error("fetch feed", "subscription_id", sub.ID, "url", sub.FeedURL, "error", err)
		if dbErr := c.store.RecordFetchError(ctx, sub.ID, msg); dbErr != nil {
			c.log.Error("record fetch error", "subscription_id", sub.ID, "error", dbErr)
		}
		sub.ErrorCount++
		sub.LastError = msg
		c.maybeAlert(ctx, sub)
		return Result{Err: msg}
	}

	// A successful fetch always resets error state, whether or not a
	// notification follows.
	if err := c.store.ClearFetchError(ctx, sub.ID); err != nil {
		c.log.Error("clear fetch error", "subscription_id", sub.ID, "error", err)
	}
	sub.ErrorCount = 0
	sub.LastError = ""

	item := doc.Latest()
	if item == nil {
		return Result{}
	}

	if item.Key == sub.LastItemKey && !force {
		return Result{}
	}

	// First observation establishes a baseline without announcing whatever
	// item happened to exist at subscribe time.
	if sub.LastItemKey == "" && !force {
		c.setMarker(ctx, sub, item.Key)
		return Result{}
	}

	if !filter.Passes(sub, item) {
		c.setMarker(ctx, sub, item.Key)
		return Result{}
	}

	if !force && item.Link != "" {
		dup, err := c.store.HasNotification(ctx, sub.GuildID, item.Link)
		if err != nil {
			c.log.Error("duplicate check", "subscription_id", sub.ID, "error", err)
		}
		if dup {
			c.setMarker(ctx, sub, item.Key)
			return Result{}
		}
	}

	ok, err := c.limiter.TryConsume(ctx, sub)
	if err != nil {
		c.log.Error("rate limit", "subscription_id", sub.ID, "error", err)
		return Result{Err: err.Error()}
	}
	if !ok {
		return Result{Err: "rate limit exceeded"}
	}

	settings, err := c.store.GetGuildSettings(ctx, sub.GuildID)
	if err != nil {
		c.log.Error("load guild settings", "guild_id", sub.GuildID, "error", err)
		settings = model.DefaultGuildSettings(sub.GuildID)
	}

	payload := render.Render(sub, settings, item, doc.Title, doc.ImageURL)
	if err := c.deliverer.Deliver(ctx, sub, payload); err != nil {
		// The marker still advances below: a payload that failed to send is
		// not retried.
		c.log.Error("deliver notification", "subscription_id", sub.ID, "error", err)
	}

	rec := &model.NotificationRecord{
		GuildID:        sub.GuildID,
		SubscriptionID: sub.ID,
		ItemKey:        item.Key,
		ItemTitle:      item.Title,
		ItemLink:       item.Link,
	}
	if _, err := c.store.InsertNotification(ctx, rec); err != nil {
		c.log.Error("insert notification record", "subscription_id", sub.ID, "error", err)
	}

	c.setMarker(ctx, sub, item.Key)
	return Result{Posted: true}
}

func (c *Checker) setMarker(ctx context.Context, sub *model.Subscription, key string) {
	if err := c.store.SetMarker(ctx, sub.ID, key); err != nil {
		c.log.Error("set marker", "subscription_id", sub.ID, "error", err)
		return
	}
	sub.LastItemKey = key
}

// maybeAlert escalates to the guild's alert channel when the consecutive
// error count reaches the configured threshold exactly, so each failure
// streak alerts once.
func (c *Checker) maybeAlert(ctx context.Context, sub *model.Subscription) {
	if c.alerts == nil {
		return
	}
	settings, err := c.store.GetGuildSettings(ctx, sub.GuildID)
	if err != nil {
		c.log.Error("load guild settings", "guild_id", sub.GuildID, "error", err)
		return
	}
	if settings.AlertChannelID == 0 || sub.ErrorCount != settings.AlertThreshold {
		return
	}

	name := sub.FeedName
	if name == "" {
		name = sub.FeedURL
	}
	text := fmt.Sprintf("Feed %q (#%d) has failed %d checks in a row.\nLast error: %s",
		name, sub.ID, sub.ErrorCount, sub.LastError)
	if err := c.alerts.SendAlert(ctx, settings.AlertChannelID, text); err != nil {
		c.log.Error("send alert", "guild_id", sub.GuildID, "error", err)
	}
}
