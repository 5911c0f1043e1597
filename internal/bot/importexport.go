package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"feedwatch/internal/model"
)

// exportRecord is the wire shape of one subscription in /export and /import.
type exportRecord struct {
	ChannelID    int64  `json:"channel_id"`
	FeedURL      string `json:"feed_url"`
	FeedName     string `json:"feed_name,omitempty"`
	Color        string `json:"color,omitempty"`
	Mention      string `json:"mention,omitempty"`
	Category     string `json:"category,omitempty"`
	IncludeWords string `json:"include_keywords,omitempty"`
	ExcludeWords string `json:"exclude_keywords,omitempty"`
	UseRegex     bool   `json:"use_regex,omitempty"`
	MaxPerHour   int    `json:"max_per_hour,omitempty"`
	Paused       bool   `json:"paused,omitempty"`
	ShowButtons  *bool  `json:"show_buttons,omitempty"`
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(subs) == 0 {
		b.reply(chatID, "No subscriptions to export.")
		return
	}

	records := make([]exportRecord, 0, len(subs))
	for i := range subs {
		sub := &subs[i]
		show := sub.ShowButtons
		records = append(records, exportRecord{
			ChannelID:    sub.ChannelID,
			FeedURL:      sub.FeedURL,
			FeedName:     sub.FeedName,
			Color:        sub.Color,
			Mention:      sub.Mention,
			Category:     sub.Category,
			IncludeWords: sub.IncludeWords,
			ExcludeWords: sub.ExcludeWords,
			UseRegex:     sub.UseRegex,
			MaxPerHour:   sub.MaxPerHour,
			Paused:       sub.Paused,
			ShowButtons:  &show,
		})
	}

	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, string(raw))
}

func (b *Bot) handleImport(ctx context.Context, chatID int64, args string) {
	raw := strings.TrimSpace(args)
	if raw == "" {
		b.reply(chatID, "Usage: /import <json array of subscriptions>")
		return
	}

	var records []exportRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if len(records) == 0 {
		b.reply(chatID, "Nothing to import.")
		return
	}

	success, failed := 0, 0
	var errs []string
	for i, rec := range records {
		if msg := validateImport(rec); msg != "" {
			errs = append(errs, fmt.Sprintf("entry %d: %s", i+1, msg))
			failed++
			continue
		}

		channelID := rec.ChannelID
		if channelID == 0 {
			channelID = chatID
		}
		show := true
		if rec.ShowButtons != nil {
			show = *rec.ShowButtons
		}
		sub := &model.Subscription{
			GuildID:      chatID,
			ChannelID:    channelID,
			FeedURL:      rec.FeedURL,
			FeedName:     rec.FeedName,
			Color:        strings.TrimPrefix(rec.Color, "#"),
			Mention:      rec.Mention,
			Category:     rec.Category,
			IncludeWords: rec.IncludeWords,
			ExcludeWords: rec.ExcludeWords,
			UseRegex:     rec.UseRegex,
			MaxPerHour:   rec.MaxPerHour,
			Paused:       rec.Paused,
			ShowButtons:  show,
		}
		created, err := b.store.CreateSubscription(ctx, sub)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("entry %d: %v", i+1, err))
			failed++
		case !created:
			errs = append(errs, fmt.Sprintf("entry %d: duplicate subscription", i+1))
			failed++
		default:
			success++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Imported %d subscription(s), %d failed.", success, failed)
	if len(errs) > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Join(errs, "\n"))
	}
	b.reply(chatID, sb.String())
}

func validateImport(rec exportRecord) string {
	if rec.FeedURL == "" {
		return "missing feed_url"
	}
	u, err := url.Parse(rec.FeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "invalid feed_url format"
	}
	if rec.Color != "" && !hexColorPattern.MatchString(rec.Color) {
		return "invalid color format (expected hex)"
	}
	if rec.MaxPerHour < 0 || rec.MaxPerHour > 60 {
		return "max_per_hour out of range"
	}
	return ""
}
