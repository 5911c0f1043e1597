package bot

import (
	"strings"
	"testing"
	"time"

	"feedwatch/internal/model"
)

func TestFormatSubscriptionList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got := FormatSubscriptionList(nil)
		if !strings.Contains(got, "/subscribe") {
			t.Errorf("empty list should point at /subscribe, got %q", got)
		}
	})

	t.Run("entries with notes", func(t *testing.T) {
		subs := []model.Subscription{
			{
				ID: 1, FeedURL: "https://blog.example.com/rss", FeedName: "Example Blog",
				Category: "news", IncludeWords: "go", MaxPerHour: 3,
			},
			{ID: 2, FeedURL: "https://other.example.com/rss", Paused: true},
			{ID: 3, FeedURL: "https://hooked.example.com/rss", WebhookURL: "https://hooks.example.com/x"},
		}
		got := FormatSubscriptionList(subs)

		for _, want := range []string{
			"#1 Example Blog [healthy]",
			"category: news",
			"include: go",
			"max 3/hour",
			"#2 https://other.example.com/rss [paused]",
			"#3 https://hooked.example.com/rss [healthy]",
			"webhook delivery",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("missing %q in:\n%s", want, got)
			}
		}
	})
}

func TestFormatSubscriptionStatus(t *testing.T) {
	checked := time.Date(2025, 8, 11, 9, 30, 0, 0, time.UTC)
	sub := model.Subscription{
		ID: 4, FeedURL: "https://f.example.com/rss", FeedName: "Flaky Feed",
		LastCheckAt: &checked, ErrorCount: 2, LastError: "timeout",
		MaxPerHour: 5, PostsThisHour: 1, UseRegex: true,
	}

	got := FormatSubscriptionStatus(&sub)
	for _, want := range []string{
		"#4 Flaky Feed [failing]",
		"Last check: 2025-08-11 09:30 UTC",
		"Consecutive errors: 2",
		"Last error: timeout",
		"Rate limit: 1/5 this hour",
		"Keyword mode: regex",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}

	never := model.Subscription{ID: 5, FeedURL: "https://n.example.com/rss"}
	if got := FormatSubscriptionStatus(&never); !strings.Contains(got, "Last check: never") {
		t.Errorf("expected never-checked note, got:\n%s", got)
	}
}

func TestFormatStatusOverview(t *testing.T) {
	subs := []model.Subscription{
		{ID: 1, FeedURL: "https://a.com/rss"},
		{ID: 2, FeedURL: "https://b.com/rss", ErrorCount: 3},
		{ID: 3, FeedURL: "https://c.com/rss", Paused: true},
	}
	got := FormatStatusOverview(subs)
	if !strings.Contains(got, "1 healthy, 1 failing, 1 paused") {
		t.Errorf("bad health summary:\n%s", got)
	}
}

func TestFormatStats(t *testing.T) {
	stats := &model.NotificationStats{
		Total: 5,
		ByFeed: []model.FeedStat{
			{SubscriptionID: 1, Name: "Feed A", Count: 3},
			{SubscriptionID: 2, Name: "Feed B", Count: 2},
		},
		ByDay: []model.DayStat{{Date: "2025-08-11", Count: 5}},
	}

	got := FormatStats(stats, 7)
	for _, want := range []string{
		"Posts in the last 7 day(s): 5",
		"#1 Feed A",
		"2025-08-11",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatSettings(t *testing.T) {
	t.Run("alerts configured", func(t *testing.T) {
		s := model.GuildSettings{
			GuildID: 1, AlertChannelID: 777, AlertThreshold: 5,
			DefaultColor: "3498DB", ButtonsEnabled: true,
		}
		got := FormatSettings(&s)
		for _, want := range []string{
			"channel 777 after 5 consecutive errors",
			"Default color: #3498DB",
			"Buttons: on",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("missing %q in:\n%s", want, got)
			}
		}
	})

	t.Run("defaults", func(t *testing.T) {
		got := FormatSettings(model.DefaultGuildSettings(1))
		for _, want := range []string{
			"Alerts: off (threshold 3)",
			"Default color: built-in",
			"Buttons: on",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("missing %q in:\n%s", want, got)
			}
		}
	})
}
