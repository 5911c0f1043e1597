// Package filter implements the per-subscription keyword matching policy.
package filter

import (
	"regexp"
	"strings"

	"feedwatch/internal/fetcher"
	"feedwatch/internal/model"
)

// Passes reports whether an item clears the subscription's include/exclude
// keyword policy. With no keywords configured every item passes. Include
// entries use OR logic (at least one must match); any matching exclude entry
// vetoes the item.
func Passes(sub *model.Subscription, item *fetcher.Item) bool {
	body := item.Snippet
	if body == "" {
		body = item.Content
	}
	text := strings.ToLower(item.Title + " " + body)

	if sub.IncludeWords != "" {
		if !anyMatch(text, sub.IncludeWords, sub.UseRegex) {
			return false
		}
	}
	if sub.ExcludeWords != "" {
		if anyMatch(text, sub.ExcludeWords, sub.UseRegex) {
			return false
		}
	}
	return true
}

func anyMatch(text, rawList string, useRegex bool) bool {
	for _, entry := range strings.Split(rawList, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if matches(text, entry, useRegex) {
			return true
		}
	}
	return false
}

// matches checks one pattern entry against the search text. In regex mode a
// pattern that fails to compile degrades to literal containment for that
// entry only.
func matches(text, pattern string, useRegex bool) bool {
	if useRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err == nil {
			return re.MatchString(text)
		}
	}
	return strings.Contains(text, strings.ToLower(pattern))
}

// ValidateRegex checks whether every comma-separated entry compiles as a
// case-insensitive regular expression. Used by the command surface to warn
// early; evaluation itself never fails on a bad pattern.
func ValidateRegex(rawList string) error {
	for _, entry := range strings.Split(rawList, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, err := regexp.Compile("(?i)" + entry); err != nil {
			return err
		}
	}
	return nil
}
