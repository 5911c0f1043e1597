package render

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"feedwatch/internal/fetcher"
)

var (
	imageExtPattern  = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)
	bareImagePattern = regexp.MustCompile(`(?i)https?://[^\s"'<>]+\.(jpg|jpeg|png|gif|webp)(\?[^\s"'<>]*)?`)
	repoPattern      = regexp.MustCompile(`https?://github\.com/([a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+)`)
)

// ExtractImage resolves the notification image for an item by a fixed
// priority: structured media fields, thumbnail, media group, image-typed
// enclosure, the item body (img tag, og:image meta, bare image URL), and
// finally a generated preview for a referenced GitHub repository.
func ExtractImage(item *fetcher.Item) string {
	if item.MediaURL != "" {
		return item.MediaURL
	}
	if item.ThumbnailURL != "" {
		return item.ThumbnailURL
	}
	if item.MediaGroupURL != "" {
		return item.MediaGroupURL
	}
	if enc := item.Enclosure; enc != nil {
		if strings.HasPrefix(enc.Type, "image/") || imageExtPattern.MatchString(enc.URL) {
			return enc.URL
		}
	}
	return imageFromHTML(item.Body())
}

func imageFromHTML(content string) string {
	if content == "" {
		return ""
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
		if src, ok := doc.Find("img").First().Attr("src"); ok && !isTrackingPixel(src) {
			return src
		}
		if og, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && og != "" {
			return og
		}
	}

	if m := bareImagePattern.FindString(content); m != "" {
		return m
	}

	if m := repoPattern.FindStringSubmatch(content); m != nil {
		return "https://opengraph.githubassets.com/1/" + m[1]
	}
	return ""
}

// isTrackingPixel filters out obvious one-pixel beacons.
func isTrackingPixel(src string) bool {
	return src == "" ||
		strings.Contains(src, "pixel") ||
		strings.Contains(src, "tracking") ||
		strings.Contains(src, "1x1")
}
