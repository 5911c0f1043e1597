package render

import (
	"regexp"
	"strings"

	"feedwatch/internal/fetcher"
)

// RelatedLink is an auxiliary link discovered for an item, typed for display
// labeling only.
type RelatedLink struct {
	URL   string
	Title string
	Type  string
}

var repoLinkPattern = regexp.MustCompile(`https?://github\.com/[a-zA-Z0-9_-]+/[a-zA-Z0-9_.-]+`)

// RelatedLinks collects up to 3 related links for an item: recognizable
// auxiliary links carried by the feed entry itself, then GitHub repository
// URLs mentioned in the body. Duplicates and the item's own link are dropped.
func RelatedLinks(item *fetcher.Item) []RelatedLink {
	var links []RelatedLink
	seen := map[string]bool{item.Link: true}

	for _, href := range item.Links {
		if seen[href] {
			continue
		}
		kind := linkType(href)
		if kind == "link" {
			// Bare alternates carry no display value.
			continue
		}
		seen[href] = true
		links = append(links, RelatedLink{URL: href, Title: linkLabel(kind), Type: kind})
	}

	for _, href := range repoLinkPattern.FindAllString(item.Body(), -1) {
		if seen[href] {
			continue
		}
		seen[href] = true
		links = append(links, RelatedLink{URL: href, Title: "GitHub", Type: "github"})
	}

	if len(links) > maxRelatedLinks {
		links = links[:maxRelatedLinks]
	}
	return links
}

func linkType(href string) string {
	switch {
	case strings.Contains(href, "github.com"):
		return "github"
	case strings.Contains(href, "gitlab.com"):
		return "gitlab"
	case strings.Contains(href, "npmjs.com"):
		return "npm"
	case strings.Contains(href, "pypi.org"):
		return "pypi"
	case strings.Contains(href, "crates.io"):
		return "crates"
	case strings.Contains(href, "docs."):
		return "docs"
	}
	return "link"
}

func linkLabel(kind string) string {
	switch kind {
	case "github":
		return "GitHub"
	case "gitlab":
		return "GitLab"
	case "npm":
		return "npm"
	case "pypi":
		return "PyPI"
	case "crates":
		return "crates.io"
	case "docs":
		return "Docs"
	}
	return "Link"
}
