package bot

import (
	"fmt"
	"strings"

	"feedwatch/internal/model"
)

const (
	statusHealthy = "healthy"
	statusPaused  = "paused"
	statusFailing = "failing"
)

func subscriptionState(sub *model.Subscription) string {
	switch {
	case sub.Paused:
		return statusPaused
	case sub.ErrorCount > 0:
		return statusFailing
	}
	return statusHealthy
}

// FormatSubscriptionList formats the guild's subscriptions for display.
func FormatSubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "No subscriptions yet. Use /subscribe <url> to add one."
	}

	var sb strings.Builder
	sb.WriteString("Subscriptions:\n")
	for i := range subs {
		sub := &subs[i]
		fmt.Fprintf(&sb, "\n#%d %s [%s]\n", sub.ID, sub.DisplayName(), subscriptionState(sub))
		fmt.Fprintf(&sb, "   %s\n", sub.FeedURL)

		var notes []string
		if sub.Category != "" {
			notes = append(notes, "category: "+sub.Category)
		}
		if sub.IncludeWords != "" {
			notes = append(notes, "include: "+sub.IncludeWords)
		}
		if sub.ExcludeWords != "" {
			notes = append(notes, "exclude: "+sub.ExcludeWords)
		}
		if sub.MaxPerHour > 0 {
			notes = append(notes, fmt.Sprintf("max %d/hour", sub.MaxPerHour))
		}
		if sub.WebhookURL != "" {
			notes = append(notes, "webhook delivery")
		}
		if len(notes) > 0 {
			fmt.Fprintf(&sb, "   %s\n", strings.Join(notes, ", "))
		}
	}
	return sb.String()
}

// FormatSubscriptionStatus formats the health details of one subscription.
func FormatSubscriptionStatus(sub *model.Subscription) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s [%s]\n", sub.ID, sub.DisplayName(), subscriptionState(sub))
	fmt.Fprintf(&sb, "URL: %s\n", sub.FeedURL)

	if sub.LastCheckAt != nil {
		fmt.Fprintf(&sb, "Last check: %s\n", sub.LastCheckAt.Format("2006-01-02 15:04 UTC"))
	} else {
		sb.WriteString("Last check: never\n")
	}
	if sub.ErrorCount > 0 {
		fmt.Fprintf(&sb, "Consecutive errors: %d\n", sub.ErrorCount)
	}
	if sub.LastError != "" {
		fmt.Fprintf(&sb, "Last error: %s\n", sub.LastError)
	}
	if sub.MaxPerHour > 0 {
		fmt.Fprintf(&sb, "Rate limit: %d/%d this hour\n", sub.PostsThisHour, sub.MaxPerHour)
	}
	if sub.UseRegex {
		sb.WriteString("Keyword mode: regex\n")
	}
	return sb.String()
}

// FormatStatusOverview formats a one-line health summary per subscription.
func FormatStatusOverview(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "No subscriptions yet. Use /subscribe <url> to add one."
	}

	healthy, failing, paused := 0, 0, 0
	var sb strings.Builder
	for i := range subs {
		sub := &subs[i]
		state := subscriptionState(sub)
		switch state {
		case statusPaused:
			paused++
		case statusFailing:
			failing++
		default:
			healthy++
		}
		fmt.Fprintf(&sb, "#%d %s [%s]\n", sub.ID, sub.DisplayName(), state)
	}
	header := fmt.Sprintf("Feed health: %d healthy, %d failing, %d paused\n\n", healthy, failing, paused)
	return header + sb.String()
}

// FormatStats formats the day-window dispatch statistics.
func FormatStats(stats *model.NotificationStats, days int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Posts in the last %d day(s): %d\n", days, stats.Total)

	if len(stats.ByFeed) > 0 {
		sb.WriteString("\nBy feed:\n")
		for _, fs := range stats.ByFeed {
			fmt.Fprintf(&sb, "  #%d %s — %d\n", fs.SubscriptionID, fs.Name, fs.Count)
		}
	}
	if len(stats.ByDay) > 0 {
		sb.WriteString("\nBy day:\n")
		for _, ds := range stats.ByDay {
			fmt.Fprintf(&sb, "  %s — %d\n", ds.Date, ds.Count)
		}
	}
	return sb.String()
}

// FormatSettings formats the guild's effective settings.
func FormatSettings(s *model.GuildSettings) string {
	var sb strings.Builder
	sb.WriteString("Server settings:\n")
	if s.AlertChannelID != 0 {
		fmt.Fprintf(&sb, "  Alerts: channel %d after %d consecutive errors\n", s.AlertChannelID, s.AlertThreshold)
	} else {
		fmt.Fprintf(&sb, "  Alerts: off (threshold %d)\n", s.AlertThreshold)
	}
	if s.DefaultColor != "" {
		fmt.Fprintf(&sb, "  Default color: #%s\n", s.DefaultColor)
	} else {
		sb.WriteString("  Default color: built-in\n")
	}
	if s.ButtonsEnabled {
		sb.WriteString("  Buttons: on\n")
	} else {
		sb.WriteString("  Buttons: off\n")
	}
	sb.WriteString("\nChange with /settings alerts=here threshold=3 color=#3498db buttons=on")
	return sb.String()
}
