// Package model defines the domain types used across the application.
package model

import "time"

// Subscription binds one feed URL to one delivery channel within a guild.
type Subscription struct {
	ID            int64
	GuildID       int64
	ChannelID     int64
	FeedURL       string
	FeedName      string
	LastItemKey   string
	Color         string
	Mention       string
	Paused        bool
	IncludeWords  string
	ExcludeWords  string
	UseRegex      bool
	MaxPerHour    int
	PostsThisHour int
	HourStartedAt *time.Time
	WebhookURL    string
	WebhookName   string
	WebhookAvatar string
	LastCheckAt   *time.Time
	ErrorCount    int
	LastError     string
	Category      string
	ShowButtons   bool
	CreatedAt     time.Time
}

// DisplayName returns the feed name, falling back to the URL.
func (s *Subscription) DisplayName() string {
	if s.FeedName != "" {
		return s.FeedName
	}
	return s.FeedURL
}

// GuildSettings holds tenant-wide defaults. Absent rows fall back to
// DefaultGuildSettings.
type GuildSettings struct {
	GuildID        int64
	AlertChannelID int64
	AlertThreshold int
	DefaultColor   string
	ButtonsEnabled bool
	CreatedAt      time.Time
}

// DefaultGuildSettings returns the effective settings for a guild that has
// never written any.
func DefaultGuildSettings(guildID int64) *GuildSettings {
	return &GuildSettings{
		GuildID:        guildID,
		AlertThreshold: 3,
		ButtonsEnabled: true,
	}
}

// NotificationRecord is one row of dispatch history, unique per
// (guild, item link).
type NotificationRecord struct {
	ID             int64
	GuildID        int64
	SubscriptionID int64
	ItemKey        string
	ItemTitle      string
	ItemLink       string
	PostedAt       time.Time
}

// SubscriptionPatch is a sparse update for a subscription. A nil field is
// left unchanged; a pointer to the zero value clears the column.
type SubscriptionPatch struct {
	FeedName      *string
	Color         *string
	Mention       *string
	Paused        *bool
	IncludeWords  *string
	ExcludeWords  *string
	UseRegex      *bool
	MaxPerHour    *int
	WebhookURL    *string
	WebhookName   *string
	WebhookAvatar *string
	Category      *string
	ShowButtons   *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p SubscriptionPatch) IsEmpty() bool {
	return p.FeedName == nil && p.Color == nil && p.Mention == nil &&
		p.Paused == nil && p.IncludeWords == nil && p.ExcludeWords == nil &&
		p.UseRegex == nil && p.MaxPerHour == nil && p.WebhookURL == nil &&
		p.WebhookName == nil && p.WebhookAvatar == nil && p.Category == nil &&
		p.ShowButtons == nil
}

// GuildSettingsPatch is a sparse update for guild settings, with the same
// nil/zero semantics as SubscriptionPatch.
type GuildSettingsPatch struct {
	AlertChannelID *int64
	AlertThreshold *int
	DefaultColor   *string
	ButtonsEnabled *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p GuildSettingsPatch) IsEmpty() bool {
	return p.AlertChannelID == nil && p.AlertThreshold == nil &&
		p.DefaultColor == nil && p.ButtonsEnabled == nil
}

// FeedStat is the per-subscription slice of the day-window stats report.
type FeedStat struct {
	SubscriptionID int64
	Name           string
	Count          int
}

// DayStat is the per-day slice of the day-window stats report.
type DayStat struct {
	Date  string
	Count int
}

// NotificationStats aggregates dispatch history over a day window.
type NotificationStats struct {
	Total  int
	ByFeed []FeedStat
	ByDay  []DayStat
}
