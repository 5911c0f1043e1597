package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedwatch/internal/model"
	"feedwatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const subscriptionColumns = `id, guild_id, channel_id, feed_url, feed_name, last_item_key,
	color, mention, paused, include_keywords, exclude_keywords, use_regex,
	max_per_hour, posts_this_hour, hour_started_at, webhook_url, webhook_name,
	webhook_avatar, last_check_at, error_count, last_error, category,
	show_buttons, created_at`

// CreateSubscription inserts a new subscription and populates its ID and
// CreatedAt. Returns false without error when the (guild, channel, feed URL)
// tuple already exists.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions
		 (guild_id, channel_id, feed_url, feed_name, color, mention, paused,
		  include_keywords, exclude_keywords, use_regex, max_per_hour,
		  webhook_url, webhook_name, webhook_avatar, category, show_buttons, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.GuildID, sub.ChannelID, sub.FeedURL, nullStr(sub.FeedName),
		nullStr(sub.Color), nullStr(sub.Mention), boolToInt(sub.Paused),
		nullStr(sub.IncludeWords), nullStr(sub.ExcludeWords), boolToInt(sub.UseRegex),
		nullInt(sub.MaxPerHour), nullStr(sub.WebhookURL), nullStr(sub.WebhookName),
		nullStr(sub.WebhookAvatar), nullStr(sub.Category), boolToInt(sub.ShowButtons), now,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// GetSubscription returns a single subscription by its ID.
func (s *SQLite) GetSubscription(ctx context.Context, id int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	return scanSubscription(row)
}

// ListSubscriptions returns all subscriptions belonging to the given guild,
// newest first.
func (s *SQLite) ListSubscriptions(ctx context.Context, guildID int64) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE guild_id = ? ORDER BY created_at DESC, id DESC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListActiveSubscriptions returns all non-paused subscriptions.
func (s *SQLite) ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE paused = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListErrorSubscriptions returns non-paused subscriptions whose consecutive
// error count is at least threshold.
func (s *SQLite) ListErrorSubscriptions(ctx context.Context, threshold int) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE error_count >= ? AND paused = 0 ORDER BY id`, threshold)
	if err != nil {
		return nil, fmt.Errorf("query error subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// UpdateSubscription applies a sparse patch to a subscription. Nil patch
// fields are left untouched; zero-valued pointers clear the column.
func (s *SQLite) UpdateSubscription(ctx context.Context, id int64, patch model.SubscriptionPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	var set []string
	var args []any
	setStr := func(col string, v *string) {
		if v != nil {
			set = append(set, col+" = ?")
			args = append(args, nullStr(*v))
		}
	}
	setBool := func(col string, v *bool) {
		if v != nil {
			set = append(set, col+" = ?")
			args = append(args, boolToInt(*v))
		}
	}

	setStr("feed_name", patch.FeedName)
	setStr("color", patch.Color)
	setStr("mention", patch.Mention)
	setBool("paused", patch.Paused)
	setStr("include_keywords", patch.IncludeWords)
	setStr("exclude_keywords", patch.ExcludeWords)
	setBool("use_regex", patch.UseRegex)
	if patch.MaxPerHour != nil {
		set = append(set, "max_per_hour = ?")
		args = append(args, nullInt(*patch.MaxPerHour))
	}
	setStr("webhook_url", patch.WebhookURL)
	setStr("webhook_name", patch.WebhookName)
	setStr("webhook_avatar", patch.WebhookAvatar)
	setStr("category", patch.Category)
	setBool("show_buttons", patch.ShowButtons)

	args = append(args, id)
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a subscription and its history rows. Returns
// false when no subscription matched the (guild, id) pair.
func (s *SQLite) DeleteSubscription(ctx context.Context, guildID, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = ? AND guild_id = ?`, id, guildID)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM post_history WHERE subscription_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete history: %w", err)
	}
	return true, tx.Commit()
}

// SetMarker records the last-seen item key and bumps the last-check time.
func (s *SQLite) SetMarker(ctx context.Context, id int64, key string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_item_key = ?, last_check_at = ? WHERE id = ?`,
		key, now, id)
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

// RecordFetchError increments the consecutive error counter and stores the
// message and check time.
func (s *SQLite) RecordFetchError(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET error_count = error_count + 1, last_error = ?, last_check_at = ?
		 WHERE id = ?`,
		message, now, id)
	if err != nil {
		return fmt.Errorf("record fetch error: %w", err)
	}
	return nil
}

// ClearFetchError resets the error counter and message after a successful fetch.
func (s *SQLite) ClearFetchError(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET error_count = 0, last_error = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear fetch error: %w", err)
	}
	return nil
}

// ResetRateWindow starts a fresh hourly window with one post consumed.
func (s *SQLite) ResetRateWindow(ctx context.Context, id int64, start time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET posts_this_hour = 1, hour_started_at = ? WHERE id = ?`,
		start.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("reset rate window: %w", err)
	}
	return nil
}

// IncrementRateCount consumes one post from the current hourly window.
func (s *SQLite) IncrementRateCount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET posts_this_hour = posts_this_hour + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment rate count: %w", err)
	}
	return nil
}

// InsertNotification records a dispatched item. Returns false when a record
// for the same (guild, link) already exists.
func (s *SQLite) InsertNotification(ctx context.Context, rec *model.NotificationRecord) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO post_history
		 (guild_id, subscription_id, item_key, item_title, item_link, posted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.GuildID, rec.SubscriptionID, rec.ItemKey,
		nullStr(rec.ItemTitle), nullStr(rec.ItemLink), now)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	rec.PostedAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// HasNotification checks whether an item link was already announced in the guild.
func (s *SQLite) HasNotification(ctx context.Context, guildID int64, link string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_history WHERE guild_id = ? AND item_link = ?`,
		guildID, link).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return count > 0, nil
}

// NotificationStats aggregates dispatch history for a guild over the last
// `days` days.
func (s *SQLite) NotificationStats(ctx context.Context, guildID int64, days int) (*model.NotificationStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeLayout)

	stats := &model.NotificationStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_history WHERE guild_id = ? AND posted_at >= ?`,
		guildID, cutoff).Scan(&stats.Total)
	if err != nil {
		return nil, fmt.Errorf("stats total: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, COALESCE(s.feed_name, s.feed_url), COUNT(p.id)
		 FROM subscriptions s
		 LEFT JOIN post_history p ON s.id = p.subscription_id AND p.posted_at >= ?
		 WHERE s.guild_id = ?
		 GROUP BY s.id
		 ORDER BY COUNT(p.id) DESC, s.id`,
		cutoff, guildID)
	if err != nil {
		return nil, fmt.Errorf("stats by feed: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var fs model.FeedStat
		if err := rows.Scan(&fs.SubscriptionID, &fs.Name, &fs.Count); err != nil {
			return nil, fmt.Errorf("scan feed stat: %w", err)
		}
		stats.ByFeed = append(stats.ByFeed, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dayRows, err := s.db.QueryContext(ctx,
		`SELECT date(posted_at), COUNT(*)
		 FROM post_history
		 WHERE guild_id = ? AND posted_at >= ?
		 GROUP BY date(posted_at)
		 ORDER BY date(posted_at) DESC`,
		guildID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stats by day: %w", err)
	}
	defer func() { _ = dayRows.Close() }()
	for dayRows.Next() {
		var ds model.DayStat
		if err := dayRows.Scan(&ds.Date, &ds.Count); err != nil {
			return nil, fmt.Errorf("scan day stat: %w", err)
		}
		stats.ByDay = append(stats.ByDay, ds)
	}
	return stats, dayRows.Err()
}

// PurgeNotifications deletes history rows older than the retention window and
// returns how many were removed.
func (s *SQLite) PurgeNotifications(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM post_history WHERE posted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}

// GetGuildSettings returns the settings row for a guild, or the documented
// defaults when the guild has never written any.
func (s *SQLite) GetGuildSettings(ctx context.Context, guildID int64) (*model.GuildSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT guild_id, alert_channel_id, alert_threshold, default_color,
		        buttons_enabled, created_at
		 FROM guild_settings WHERE guild_id = ?`, guildID)

	var gs model.GuildSettings
	var alertChannel sql.NullInt64
	var defaultColor, created sql.NullString
	var buttons int
	err := row.Scan(&gs.GuildID, &alertChannel, &gs.AlertThreshold, &defaultColor, &buttons, &created)
	if err == sql.ErrNoRows {
		return model.DefaultGuildSettings(guildID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan guild settings: %w", err)
	}
	gs.AlertChannelID = alertChannel.Int64
	gs.DefaultColor = defaultColor.String
	gs.ButtonsEnabled = buttons == 1
	if created.Valid {
		gs.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &gs, nil
}

// UpsertGuildSettings creates the settings row with defaults if needed, then
// applies the patch.
func (s *SQLite) UpsertGuildSettings(ctx context.Context, guildID int64, patch model.GuildSettingsPatch) error {
	now := time.Now().UTC().Format(timeLayout)
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO guild_settings (guild_id, alert_threshold, buttons_enabled, created_at)
		 VALUES (?, 3, 1, ?)`, guildID, now); err != nil {
		return fmt.Errorf("ensure guild settings: %w", err)
	}
	if patch.IsEmpty() {
		return nil
	}

	var set []string
	var args []any
	if patch.AlertChannelID != nil {
		set = append(set, "alert_channel_id = ?")
		if *patch.AlertChannelID == 0 {
			args = append(args, nil)
		} else {
			args = append(args, *patch.AlertChannelID)
		}
	}
	if patch.AlertThreshold != nil {
		set = append(set, "alert_threshold = ?")
		args = append(args, *patch.AlertThreshold)
	}
	if patch.DefaultColor != nil {
		set = append(set, "default_color = ?")
		args = append(args, nullStr(*patch.DefaultColor))
	}
	if patch.ButtonsEnabled != nil {
		set = append(set, "buttons_enabled = ?")
		args = append(args, boolToInt(*patch.ButtonsEnabled))
	}
	args = append(args, guildID)

	_, err := s.db.ExecContext(ctx,
		`UPDATE guild_settings SET `+strings.Join(set, ", ")+` WHERE guild_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update guild settings: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var feedName, lastKey, color, mention, include, exclude sql.NullString
	var hourStart, webhookURL, webhookName, webhookAvatar sql.NullString
	var lastCheck, lastError, category, created sql.NullString
	var maxPerHour sql.NullInt64
	var paused, useRegex, showButtons int

	err := row.Scan(&sub.ID, &sub.GuildID, &sub.ChannelID, &sub.FeedURL,
		&feedName, &lastKey, &color, &mention, &paused, &include, &exclude,
		&useRegex, &maxPerHour, &sub.PostsThisHour, &hourStart, &webhookURL,
		&webhookName, &webhookAvatar, &lastCheck, &sub.ErrorCount, &lastError,
		&category, &showButtons, &created)
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}

	sub.FeedName = feedName.String
	sub.LastItemKey = lastKey.String
	sub.Color = color.String
	sub.Mention = mention.String
	sub.Paused = paused == 1
	sub.IncludeWords = include.String
	sub.ExcludeWords = exclude.String
	sub.UseRegex = useRegex == 1
	sub.MaxPerHour = int(maxPerHour.Int64)
	sub.WebhookURL = webhookURL.String
	sub.WebhookName = webhookName.String
	sub.WebhookAvatar = webhookAvatar.String
	sub.LastError = lastError.String
	sub.Category = category.String
	sub.ShowButtons = showButtons == 1
	if hourStart.Valid {
		t, _ := time.Parse(timeLayout, hourStart.String)
		sub.HourStartedAt = &t
	}
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		sub.LastCheckAt = &t
	}
	if created.Valid {
		sub.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
