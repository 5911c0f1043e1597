// Package render turns feed items into delivery payloads.
package render

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"feedwatch/internal/fetcher"
	"feedwatch/internal/model"
)

const (
	defaultColor = 0x3498DB

	titleLimit = 256
	bodyLimit  = 300

	maxRelatedLinks = 3
	maxButtons      = 5
)

// Button is a link affordance attached to a notification.
type Button struct {
	Label string
	URL   string
	Kind  string
}

// Payload is a rendered notification ready for delivery.
type Payload struct {
	Title      string
	URL        string
	Body       string
	Timestamp  time.Time
	Footer     string
	FooterIcon string
	Color      int
	Author     string
	ImageURL   string
	Mention    string
	Buttons    []Button
}

// domainColors maps feed hostnames to embed colors.
var domainColors = map[string]int{
	"github.com":           0x238636,
	"twitter.com":          0x1DA1F2,
	"x.com":                0x000000,
	"reddit.com":           0xFF4500,
	"youtube.com":          0xFF0000,
	"medium.com":           0x000000,
	"dev.to":               0x0A0A0A,
	"hackernews.com":       0xFF6600,
	"news.ycombinator.com": 0xFF6600,
	"stackoverflow.com":    0xF48024,
	"linkedin.com":         0x0A66C2,
	"facebook.com":         0x1877F2,
	"instagram.com":        0xE4405F,
	"twitch.tv":            0x9146FF,
	"discord.com":          0x5865F2,
}

// Render builds the delivery payload for one item under one subscription.
// Settings supply the tenant-wide button toggle.
func Render(sub *model.Subscription, settings *model.GuildSettings, item *fetcher.Item, feedTitle, feedImage string) Payload {
	p := Payload{
		Title:    Truncate(item.Title, titleLimit),
		URL:      item.Link,
		Body:     Truncate(item.Body(), bodyLimit),
		Color:    resolveColor(sub),
		Author:   item.Author,
		ImageURL: ExtractImage(item),
		Mention:  sub.Mention,
	}
	if p.Title == "" {
		p.Title = "New Post"
	}

	if item.Published != nil {
		p.Timestamp = *item.Published
	} else {
		p.Timestamp = time.Now().UTC()
	}

	switch {
	case sub.FeedName != "":
		p.Footer = sub.FeedName
	case feedTitle != "":
		p.Footer = feedTitle
	default:
		p.Footer = "RSS Feed"
	}
	p.FooterIcon = feedImage

	if sub.ShowButtons && settings.ButtonsEnabled && item.Link != "" {
		p.Buttons = buildButtons(item)
	}
	return p
}

func resolveColor(sub *model.Subscription) int {
	if c, ok := parseHexColor(sub.Color); ok {
		return c
	}
	if c, ok := ColorForDomain(sub.FeedURL); ok {
		return c
	}
	return defaultColor
}

// ColorForDomain returns the embed color associated with a feed URL's
// hostname, if any.
func ColorForDomain(feedURL string) (int, bool) {
	u, err := url.Parse(feedURL)
	if err != nil {
		return 0, false
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	c, ok := domainColors[host]
	return c, ok
}

func parseHexColor(s string) (int, bool) {
	s = strings.TrimPrefix(s, "#")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 16, 32)
	if err != nil || v < 0 || v > 0xFFFFFF {
		return 0, false
	}
	return int(v), true
}

func buildButtons(item *fetcher.Item) []Button {
	buttons := []Button{{Label: "Read", URL: item.Link, Kind: "read"}}

	for _, rel := range RelatedLinks(item) {
		buttons = append(buttons, Button{Label: rel.Title, URL: rel.URL, Kind: rel.Type})
	}

	share := "https://twitter.com/intent/tweet?url=" + url.QueryEscape(item.Link) +
		"&text=" + url.QueryEscape(item.Title)
	buttons = append(buttons, Button{Label: "Share", URL: share, Kind: "share"})

	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	return buttons
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Truncate strips HTML tags and bounds the text to maxLength runes, with an
// ellipsis when cut.
func Truncate(text string, maxLength int) string {
	clean := strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))
	runes := []rune(clean)
	if len(runes) <= maxLength {
		return clean
	}
	return string(runes[:maxLength-3]) + "..."
}
