// Package ratelimit gates notification dispatch with a persisted
// per-subscription hourly window.
package ratelimit

import (
	"context"
	"time"

	"feedwatch/internal/model"
	"feedwatch/internal/storage"
)

// Limiter consumes posts from a subscription's sliding-hour window. Window
// state lives on the subscription row; the in-memory record is kept in step
// so callers see the consumed state without a re-read.
type Limiter struct {
	store storage.Storage
	now   func() time.Time
}

// New creates a Limiter backed by the given store.
func New(store storage.Storage) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// SetClock overrides the limiter's clock (used in tests).
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// TryConsume attempts to consume one post from the subscription's hourly
// window. Subscriptions without a configured limit always pass and are never
// mutated. A rolled-over or never-started window is reset with one post
// consumed. Returns false with no mutation when the window is exhausted.
func (l *Limiter) TryConsume(ctx context.Context, sub *model.Subscription) (bool, error) {
	if sub.MaxPerHour <= 0 {
		return true, nil
	}

	now := l.now().UTC()
	if sub.HourStartedAt == nil || now.Sub(*sub.HourStartedAt) > time.Hour {
		if err := l.store.ResetRateWindow(ctx, sub.ID, now); err != nil {
			return false, err
		}
		sub.PostsThisHour = 1
		sub.HourStartedAt = &now
		return true, nil
	}

	if sub.PostsThisHour >= sub.MaxPerHour {
		return false, nil
	}

	if err := l.store.IncrementRateCount(ctx, sub.ID); err != nil {
		return false, err
	}
	sub.PostsThisHour++
	return true, nil
}
