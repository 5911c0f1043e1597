// Package fetcher downloads feeds and normalizes their latest entries.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Document is the normalized view of a fetched feed.
type Document struct {
	Title    string
	ImageURL string
	Items    []Item
}

// Enclosure carries the URL and MIME type of an item attachment.
type Enclosure struct {
	URL  string
	Type string
}

// Item is the normalized view of a single feed entry. Key identifies the
// entry for change detection: guid, falling back to link, falling back to
// title. An Item with an empty Key is unusable.
type Item struct {
	Title     string
	Link      string
	Published *time.Time
	Snippet   string
	Content   string
	Author    string
	Key       string

	// Media hints consumed only by the renderer.
	Links         []string
	MediaURL      string
	ThumbnailURL  string
	MediaGroupURL string
	Enclosure     *Enclosure
}

// Fetcher downloads and parses feeds with a bounded timeout.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client and the default 10s timeout.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 10 * time.Second,
	}
}

// SetTimeout overrides the per-fetch timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// Fetch downloads and parses the feed at url into a normalized Document.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "feedwatch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return normalize(feed), nil
}

func normalize(feed *gofeed.Feed) *Document {
	doc := &Document{Title: feed.Title}
	if feed.Image != nil {
		doc.ImageURL = feed.Image.URL
	}
	for _, item := range feed.Items {
		doc.Items = append(doc.Items, normalizeItem(item))
	}
	return doc
}

func normalizeItem(item *gofeed.Item) Item {
	out := Item{
		Title:     item.Title,
		Link:      item.Link,
		Published: item.PublishedParsed,
		Snippet:   item.Description,
		Content:   item.Content,
		Key:       itemKey(item),
		Links:     item.Links,
	}
	if item.Author != nil {
		out.Author = item.Author.Name
	}
	if len(item.Enclosures) > 0 && item.Enclosures[0].URL != "" {
		out.Enclosure = &Enclosure{
			URL:  item.Enclosures[0].URL,
			Type: item.Enclosures[0].Type,
		}
	}
	if item.Image != nil && out.ThumbnailURL == "" {
		out.ThumbnailURL = item.Image.URL
	}

	media, ok := item.Extensions["media"]
	if !ok {
		return out
	}
	if cs := media["content"]; len(cs) > 0 {
		out.MediaURL = cs[0].Attrs["url"]
	}
	if ts := media["thumbnail"]; len(ts) > 0 && ts[0].Attrs["url"] != "" {
		out.ThumbnailURL = ts[0].Attrs["url"]
	}
	if gs := media["group"]; len(gs) > 0 {
		children := gs[0].Children["content"]
		if len(children) == 0 {
			children = gs[0].Children["media:content"]
		}
		if len(children) > 0 {
			out.MediaGroupURL = children[0].Attrs["url"]
		}
	}
	return out
}

// itemKey derives the identifying key for an entry: guid wins, then link,
// then title. Empty means the entry cannot be tracked.
func itemKey(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	return item.Title
}

// Latest returns the first item of the document, or nil when the document is
// empty or its first item has no identifying key.
func (d *Document) Latest() *Item {
	if len(d.Items) == 0 {
		return nil
	}
	item := &d.Items[0]
	if item.Key == "" {
		return nil
	}
	return item
}

// Body returns the richest text available for an item: full content when
// present, otherwise the snippet.
func (i *Item) Body() string {
	if i.Content != "" {
		return i.Content
	}
	return i.Snippet
}
