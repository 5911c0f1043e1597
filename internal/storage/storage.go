// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"feedwatch/internal/model"
)

// Storage is the interface for all persistence operations.
//
// Create and insert methods that can hit a unique constraint report the
// conflict as a false boolean, not as an error.
type Storage interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) (bool, error)
	GetSubscription(ctx context.Context, id int64) (*model.Subscription, error)
	ListSubscriptions(ctx context.Context, guildID int64) ([]model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error)
	ListErrorSubscriptions(ctx context.Context, threshold int) ([]model.Subscription, error)
	UpdateSubscription(ctx context.Context, id int64, patch model.SubscriptionPatch) error
	DeleteSubscription(ctx context.Context, guildID, id int64) (bool, error)

	SetMarker(ctx context.Context, id int64, key string) error
	RecordFetchError(ctx context.Context, id int64, message string) error
	ClearFetchError(ctx context.Context, id int64) error
	ResetRateWindow(ctx context.Context, id int64, start time.Time) error
	IncrementRateCount(ctx context.Context, id int64) error

	InsertNotification(ctx context.Context, rec *model.NotificationRecord) (bool, error)
	HasNotification(ctx context.Context, guildID int64, link string) (bool, error)
	NotificationStats(ctx context.Context, guildID int64, days int) (*model.NotificationStats, error)
	PurgeNotifications(ctx context.Context, olderThanDays int) (int64, error)

	GetGuildSettings(ctx context.Context, guildID int64) (*model.GuildSettings, error)
	UpsertGuildSettings(ctx context.Context, guildID int64, patch model.GuildSettingsPatch) error

	Close() error
}
