package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"feedwatch/internal/model"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to feedwatch!

Subscribe to RSS/Atom feeds and get new posts announced here.

Quick start:
1. /subscribe <url> — watch a feed
2. /edit <id> include=golang,rust — filter by keywords
3. /edit <id> rate=5 — cap posts per hour

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Subscriptions:
/subscribe <url> [name] — watch a feed in this chat
/list — show subscriptions
/unsubscribe <id> — stop watching
/pause <id> / /resume <id> — suspend or resume checks
/check <id> — check a feed right now
/status [id] — feed health
/stats [days] — posting stats over a day window

Editing (key=value, "-" clears):
/edit <id> name=... color=#FF5733 mention=@team category=dev
/edit <id> include=rust,go exclude=sponsored regex=on
/edit <id> rate=5 buttons=off
/webhook <id> <url> [name] — deliver via webhook identity
/webhook <id> off — back to direct delivery

Server:
/settings alerts=here threshold=3 color=#3498db buttons=on
/export — dump subscriptions as JSON
/import <json> — load subscriptions from JSON`)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /subscribe <url> [name]")
		return
	}

	parts := strings.Fields(args)
	url := parts[0]
	name := strings.Join(parts[1:], " ")

	doc, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}
	if name == "" {
		name = doc.Title
	}

	settings, err := b.store.GetGuildSettings(ctx, chatID)
	if err != nil {
		b.log.Error("load guild settings", "guild_id", chatID, "error", err)
		settings = model.DefaultGuildSettings(chatID)
	}

	sub := &model.Subscription{
		GuildID:     chatID,
		ChannelID:   chatID,
		FeedURL:     url,
		FeedName:    name,
		Color:       settings.DefaultColor,
		ShowButtons: true,
	}
	created, err := b.store.CreateSubscription(ctx, sub)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save subscription: %v", err))
		return
	}
	if !created {
		b.reply(chatID, "This chat already watches that feed.")
		return
	}

	b.reply(chatID, fmt.Sprintf(
		"Subscribed!\n#%d %s\nURL: %s\nThe next new post will be announced here; the current latest item is taken as the baseline.",
		sub.ID, sub.FeedName, sub.FeedURL))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSubscriptionList(subs))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unsubscribe <id>")
		return
	}

	sub, err := b.subscriptionFor(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
		return
	}

	removed, err := b.store.DeleteSubscription(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting subscription: %v", err))
		return
	}
	if !removed {
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("Subscription #%d %q removed.", id, sub.DisplayName()))
}

func (b *Bot) handleEdit(ctx context.Context, chatID int64, args string) {
	id, patch, err := ParseEditArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	sub, err := b.subscriptionFor(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
		return
	}
	if err := ValidatePatchFilters(sub, patch); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
		return
	}

	if err := b.store.UpdateSubscription(ctx, id, patch); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Subscription #%d updated.", id))
}

func (b *Bot) handleSetPaused(ctx context.Context, chatID int64, args string, paused bool) {
	verb := "resumed"
	if paused {
		verb = "paused"
	}

	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /%s <id>", map[bool]string{true: "pause", false: "resume"}[paused]))
		return
	}

	sub, err := b.subscriptionFor(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
		return
	}

	patch := model.SubscriptionPatch{Paused: &paused}
	if err := b.store.UpdateSubscription(ctx, id, patch); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Subscription #%d %q %s.", id, sub.DisplayName(), verb))
}

// handleCheck runs a forced check, bypassing the marker comparison and the
// duplicate guard, and reports the outcome verbatim.
func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}

	sub, err := b.subscriptionFor(ctx, chatID, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
		return
	}
	if b.checker == nil {
		b.reply(chatID, "Checker is not running.")
		return
	}

	res := b.checker.CheckOne(ctx, sub, true)
	switch {
	case res.Err != "":
		b.reply(chatID, fmt.Sprintf("Check failed: %s", res.Err))
	case res.Posted:
		b.reply(chatID, fmt.Sprintf("Posted the latest item from #%d %q.", id, sub.DisplayName()))
	default:
		b.reply(chatID, fmt.Sprintf("No postable item in #%d %q (empty feed or filtered out).", id, sub.DisplayName()))
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, args string) {
	if strings.TrimSpace(args) != "" {
		id, err := ParseIDArg(args)
		if err != nil {
			b.reply(chatID, "Usage: /status [id]")
			return
		}
		sub, err := b.subscriptionFor(ctx, chatID, id)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
			return
		}
		b.reply(chatID, FormatSubscriptionStatus(sub))
		return
	}

	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStatusOverview(subs))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64, args string) {
	days := 7
	if s := strings.TrimSpace(args); s != "" {
		n, err := strconv.Atoi(strings.Fields(s)[0])
		if err != nil || n < 1 || n > 90 {
			b.reply(chatID, "Usage: /stats [days], days between 1 and 90")
			return
		}
		days = n
	}

	stats, err := b.store.NotificationStats(ctx, chatID, days)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(stats, days))
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64, args string) {
	if strings.TrimSpace(args) == "" {
		settings, err := b.store.GetGuildSettings(ctx, chatID)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, FormatSettings(settings))
		return
	}

	patch, err := ParseSettingsArgs(args, chatID)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if patch.IsEmpty() {
		b.reply(chatID, "Nothing to change. Keys: alerts, threshold, color, buttons.")
		return
	}

	if err := b.store.UpsertGuildSettings(ctx, chatID, patch); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Settings updated.")
}

func (b *Bot) handleWebhook(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		b.reply(chatID, "Usage: /webhook <id> <url> [name], or /webhook <id> off")
		return
	}

	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid subscription ID %q.", fields[0]))
		return
	}
	if _, err := b.subscriptionFor(ctx, chatID, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Subscription #%d not found.", id))
		return
	}

	var patch model.SubscriptionPatch
	if fields[1] == "off" {
		empty := ""
		patch.WebhookURL = &empty
		patch.WebhookName = &empty
		patch.WebhookAvatar = &empty
	} else {
		url := fields[1]
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			b.reply(chatID, "Webhook URL must start with http:// or https://.")
			return
		}
		patch.WebhookURL = &url
		if len(fields) > 2 {
			name := strings.Join(fields[2:], " ")
			patch.WebhookName = &name
		}
	}

	if err := b.store.UpdateSubscription(ctx, id, patch); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if fields[1] == "off" {
		b.reply(chatID, fmt.Sprintf("Subscription #%d delivers directly again.", id))
	} else {
		b.reply(chatID, fmt.Sprintf("Subscription #%d now delivers via webhook.", id))
	}
}

// subscriptionFor loads a subscription and verifies it belongs to the chat.
func (b *Bot) subscriptionFor(ctx context.Context, chatID, id int64) (*model.Subscription, error) {
	sub, err := b.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.GuildID != chatID {
		return nil, fmt.Errorf("subscription %d not in guild %d", id, chatID)
	}
	return sub, nil
}
