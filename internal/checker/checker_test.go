package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"feedwatch/internal/fetcher"
	"feedwatch/internal/model"
	"feedwatch/internal/ratelimit"
	"feedwatch/internal/render"
	"feedwatch/internal/storage"
)

type stubFetcher struct {
	doc *fetcher.Document
	err error
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (*fetcher.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

type captureDeliverer struct {
	payloads []render.Payload
	err      error
}

func (d *captureDeliverer) Deliver(_ context.Context, _ *model.Subscription, p render.Payload) error {
	d.payloads = append(d.payloads, p)
	return d.err
}

type captureAlerts struct {
	texts []string
}

func (a *captureAlerts) SendAlert(_ context.Context, _ int64, text string) error {
	a.texts = append(a.texts, text)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createSub(t *testing.T, store storage.Storage) *model.Subscription {
	t.Helper()
	sub := model.Subscription{
		GuildID: 1, ChannelID: 2,
		FeedURL:     "https://example.com/rss",
		ShowButtons: true,
	}
	if _, err := store.CreateSubscription(context.Background(), &sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return &sub
}

func feedDoc(key, title, link string) *fetcher.Document {
	return &fetcher.Document{
		Title: "Example Feed",
		Items: []fetcher.Item{{Key: key, Title: title, Link: link}},
	}
}

func newChecker(store storage.Storage, f FeedFetcher, d Deliverer, a AlertSender) *Checker {
	return New(store, f, ratelimit.New(store), d, a, discardLogger())
}

func TestCheckOneFirstObservation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	delivered := &captureDeliverer{}

	c := newChecker(store, &stubFetcher{doc: feedDoc("abc", "Existing post", "https://example.com/abc")}, delivered, nil)
	res := c.CheckOne(ctx, sub, false)

	if res.Posted || res.Err != "" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(delivered.payloads) != 0 {
		t.Error("first observation must not announce the existing item")
	}
	if sub.LastItemKey != "abc" {
		t.Errorf("expected baseline marker abc, got %q", sub.LastItemKey)
	}
	stored, _ := store.GetSubscription(ctx, sub.ID)
	if stored.LastItemKey != "abc" {
		t.Errorf("expected persisted marker abc, got %q", stored.LastItemKey)
	}
	if has, _ := store.HasNotification(ctx, sub.GuildID, "https://example.com/abc"); has {
		t.Error("baseline must not create a history record")
	}
}

func TestCheckOneSteadyState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	sub.LastItemKey = "abc"
	delivered := &captureDeliverer{}

	c := newChecker(store, &stubFetcher{doc: feedDoc("abc", "Existing post", "https://example.com/abc")}, delivered, nil)

	for i := 0; i < 3; i++ {
		res := c.CheckOne(ctx, sub, false)
		if res.Posted || res.Err != "" {
			t.Fatalf("cycle %d: unexpected result %+v", i, res)
		}
	}
	if len(delivered.payloads) != 0 {
		t.Error("unchanged feed must never deliver")
	}
}

func TestCheckOnePostsNewItem(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	sub.LastItemKey = "abc"
	delivered := &captureDeliverer{}

	c := newChecker(store, &stubFetcher{doc: feedDoc("def", "Fresh post", "https://example.com/def")}, delivered, nil)
	res := c.CheckOne(ctx, sub, false)

	if !res.Posted {
		t.Fatalf("expected posted, got %+v", res)
	}
	if len(delivered.payloads) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(delivered.payloads))
	}
	if delivered.payloads[0].Title != "Fresh post" {
		t.Errorf("payload title = %q", delivered.payloads[0].Title)
	}
	if sub.LastItemKey != "def" {
		t.Errorf("expected marker def, got %q", sub.LastItemKey)
	}
	if has, _ := store.HasNotification(ctx, sub.GuildID, "https://example.com/def"); !has {
		t.Error("expected a history record for the posted item")
	}

	// The same item is silent on the next cycle.
	res = c.CheckOne(ctx, sub, false)
	if res.Posted {
		t.Error("expected no repost on an unchanged feed")
	}
}

func TestCheckOneFilteredAdvancesMarker(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	sub.LastItemKey = "abc"
	sub.IncludeWords = "rust"
	delivered := &captureDeliverer{}

	c := newChecker(store, &stubFetcher{doc: feedDoc("def", "Go 1.25 released", "https://example.com/def")}, delivered, nil)
	res := c.CheckOne(ctx, sub, false)

	if res.Posted || res.Err != "" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(delivered.payloads) != 0 {
		t.Error("filtered item must not deliver")
	}
	if sub.LastItemKey != "def" {
		t.Errorf("filtered item must advance the marker, got %q", sub.LastItemKey)
	}
	if has, _ := store.HasNotification(ctx, sub.GuildID, "https://example.com/def"); has {
		t.Error("filtered item must not create a history record")
	}
}

func TestCheckOneDuplicateGuard(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	sub.LastItemKey = "abc"
	delivered := &captureDeliverer{}

	// Another subscription in the same guild already announced this link.
	rec := model.NotificationRecord{
		GuildID: sub.GuildID, SubscriptionID: 999,
		ItemKey: "def", ItemLink: "https://example.com/def",
	}
	if _, err := store.InsertNotification(ctx, &rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c := newChecker(store, &stubFetcher{doc: feedDoc("def", "Cross-posted", "https://example.com/def")}, delivered, nil)
	res := c.CheckOne(ctx, sub, false)

	if res.Posted || res.Err != "" {
		t.Errorf("unexpected result %+v", res)
	}
	if len(delivered.payloads) != 0 {
		t.Error("duplicate item must not deliver")
	}
	if sub.LastItemKey != "def" {
		t.Errorf("duplicate must advance the marker, got %q", sub.LastItemKey)
	}
}

func TestCheckOneForceBypassesDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	sub.LastItemKey = "def"
	delivered := &captureDeliverer{}

	rec := model.NotificationRecord{
		GuildID: sub.GuildID, SubscriptionID: sub.ID,
		ItemKey: "def", ItemLink: "https://example.com/def",
	}
	if _, err := store.InsertNotification(ctx, &rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c := newChecker(store, &stubFetcher{doc: feedDoc("def", "Repost me", "https://example.com/def")}, delivered, nil)
	res := c.CheckOne(ctx, sub, true)

	if !res.Posted {
		t.Fatalf("expected forced check to post, got %+v", res)
	}
	if len(delivered.payloads) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(delivered.payloads))
	}
}

func TestCheckOneRateLimited(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	sub.LastItemKey = "abc"
	sub.MaxPerHour = 1
	now := time.Now().UTC()
	sub.PostsThisHour = 1
	sub.HourStartedAt = &now
	delivered := &captureDeliverer{}

	c := newChecker(store, &stubFetcher{doc: feedDoc("def", "Too fast", "https://example.com/def")}, delivered, nil)
	res := c.CheckOne(ctx, sub, false)

	if res.Posted {
		t.Fatal("expected rate-limited check not to post")
	}
	if res.Err != "rate limit exceeded" {
		t.Errorf("err = %q", res.Err)
	}
	if len(delivered.payloads) != 0 {
		t.Error("rate-limited item must not deliver")
	}
	// Unlike filter and duplicate rejections the marker stays put, so the
	// item is retried once the window rolls over.
	if sub.LastItemKey != "abc" {
		t.Errorf("rate limit must not advance the marker, got %q", sub.LastItemKey)
	}
}

func TestCheckOneFetchErrorTracking(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	f := &stubFetcher{err: errors.New("connection refused")}

	c := newChecker(store, f, &captureDeliverer{}, nil)

	res := c.CheckOne(ctx, sub, false)
	if res.Err == "" {
		t.Fatal("expected an error result")
	}
	if sub.ErrorCount != 1 {
		t.Errorf("expected error count 1, got %d", sub.ErrorCount)
	}
	stored, _ := store.GetSubscription(ctx, sub.ID)
	if stored.ErrorCount != 1 || stored.LastError != "connection refused" {
		t.Errorf("stored error state = count %d, err %q", stored.ErrorCount, stored.LastError)
	}

	// Recovery clears the streak even when nothing is posted.
	f.err = nil
	f.doc = feedDoc("abc", "Post", "https://example.com/abc")
	if res := c.CheckOne(ctx, sub, false); res.Err != "" {
		t.Fatalf("unexpected error after recovery: %q", res.Err)
	}
	stored, _ = store.GetSubscription(ctx, sub.ID)
	if stored.ErrorCount != 0 || stored.LastError != "" {
		t.Errorf("expected cleared error state, got count %d, err %q", stored.ErrorCount, stored.LastError)
	}
}

func TestCheckOneAlertsAtThresholdOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	alertChannel := int64(777)
	threshold := 2
	err := store.UpsertGuildSettings(ctx, sub.GuildID, model.GuildSettingsPatch{
		AlertChannelID: &alertChannel,
		AlertThreshold: &threshold,
	})
	if err != nil {
		t.Fatalf("settings: %v", err)
	}

	alerts := &captureAlerts{}
	c := newChecker(store, &stubFetcher{err: errors.New("boom")}, &captureDeliverer{}, alerts)

	for i := 0; i < 4; i++ {
		c.CheckOne(ctx, sub, false)
	}
	// Only the check that reached the threshold exactly alerts; the streak
	// does not spam on every later failure.
	if len(alerts.texts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(alerts.texts))
	}
}

func TestCheckOneDeliveryFailureStillAdvances(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := createSub(t, store)
	sub.LastItemKey = "abc"
	delivered := &captureDeliverer{err: errors.New("sink down")}

	c := newChecker(store, &stubFetcher{doc: feedDoc("def", "Lost post", "https://example.com/def")}, delivered, nil)
	res := c.CheckOne(ctx, sub, false)

	if !res.Posted {
		t.Fatalf("expected posted despite delivery failure, got %+v", res)
	}
	if sub.LastItemKey != "def" {
		t.Errorf("expected marker def, got %q", sub.LastItemKey)
	}
	if has, _ := store.HasNotification(ctx, sub.GuildID, "https://example.com/def"); !has {
		t.Error("expected a history record despite delivery failure")
	}
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingFetcher) Fetch(_ context.Context, _ string) (*fetcher.Document, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return feedDoc("abc", "Post", "https://example.com/abc"), nil
}

func TestCheckAllSingleFlight(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createSub(t, store)

	f := &blockingFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := newChecker(store, f, &captureDeliverer{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if !c.CheckAll(ctx) {
			t.Error("first cycle should run")
		}
	}()

	<-f.started
	if c.CheckAll(ctx) {
		t.Error("overlapping cycle should be skipped")
	}

	close(f.release)
	<-done

	if !c.CheckAll(ctx) {
		t.Error("cycle after completion should run again")
	}
}
