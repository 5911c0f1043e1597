package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"feedwatch/internal/filter"
	"feedwatch/internal/model"
)

var hexColorPattern = regexp.MustCompile(`^#?[0-9A-Fa-f]{6}$`)

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("subscription ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subscription ID %q", s)
	}
	return id, nil
}

// ParseEditArgs parses "/edit <id> key=value ..." into a typed patch.
// Recognized keys: name, color, mention, category, include, exclude,
// regex (on/off), rate (0-60, 0 disables), buttons (on/off). A value of "-"
// clears the field. Values may contain spaces; a new field starts at the
// next token of the form key=.
func ParseEditArgs(args string) (int64, model.SubscriptionPatch, error) {
	var patch model.SubscriptionPatch

	fields := strings.Fields(args)
	if len(fields) < 2 {
		return 0, patch, fmt.Errorf("usage: /edit <id> key=value ...")
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, patch, fmt.Errorf("invalid subscription ID %q", fields[0])
	}

	for _, pair := range splitPairs(fields[1:]) {
		key, value := pair[0], pair[1]
		if value == "-" {
			value = ""
		}
		switch key {
		case "name":
			patch.FeedName = &value
		case "color":
			if value != "" && !hexColorPattern.MatchString(value) {
				return 0, patch, fmt.Errorf("invalid color %q, expected hex like #FF5733", value)
			}
			value = strings.TrimPrefix(value, "#")
			patch.Color = &value
		case "mention":
			patch.Mention = &value
		case "category":
			patch.Category = &value
		case "include":
			patch.IncludeWords = &value
		case "exclude":
			patch.ExcludeWords = &value
		case "regex":
			v, err := parseToggle(value)
			if err != nil {
				return 0, patch, fmt.Errorf("regex: %w", err)
			}
			patch.UseRegex = &v
		case "rate":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 60 {
				return 0, patch, fmt.Errorf("rate must be between 0 and 60")
			}
			patch.MaxPerHour = &n
		case "buttons":
			v, err := parseToggle(value)
			if err != nil {
				return 0, patch, fmt.Errorf("buttons: %w", err)
			}
			patch.ShowButtons = &v
		default:
			return 0, patch, fmt.Errorf("unknown field %q", key)
		}
	}

	if patch.IsEmpty() {
		return 0, patch, fmt.Errorf("nothing to change")
	}
	return id, patch, nil
}

// ValidatePatchFilters checks any regex-mode keyword lists in a patch against
// the subscription's effective regex flag.
func ValidatePatchFilters(sub *model.Subscription, patch model.SubscriptionPatch) error {
	useRegex := sub.UseRegex
	if patch.UseRegex != nil {
		useRegex = *patch.UseRegex
	}
	if !useRegex {
		return nil
	}
	if patch.IncludeWords != nil && *patch.IncludeWords != "" {
		if err := filter.ValidateRegex(*patch.IncludeWords); err != nil {
			return fmt.Errorf("include: %w", err)
		}
	}
	if patch.ExcludeWords != nil && *patch.ExcludeWords != "" {
		if err := filter.ValidateRegex(*patch.ExcludeWords); err != nil {
			return fmt.Errorf("exclude: %w", err)
		}
	}
	return nil
}

// ParseSettingsArgs parses "/settings key=value ..." into a settings patch.
// Recognized keys: alerts (channel ID, "here", or "off"), threshold (1-10),
// color (default embed color), buttons (on/off).
func ParseSettingsArgs(args string, chatID int64) (model.GuildSettingsPatch, error) {
	var patch model.GuildSettingsPatch

	for _, pair := range splitPairs(strings.Fields(args)) {
		key, value := pair[0], pair[1]
		switch key {
		case "alerts":
			var ch int64
			switch value {
			case "here":
				ch = chatID
			case "off", "-":
				ch = 0
			default:
				v, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return patch, fmt.Errorf("alerts must be a channel ID, \"here\", or \"off\"")
				}
				ch = v
			}
			patch.AlertChannelID = &ch
		case "threshold":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 10 {
				return patch, fmt.Errorf("threshold must be between 1 and 10")
			}
			patch.AlertThreshold = &n
		case "color":
			if value == "-" {
				value = ""
			} else if !hexColorPattern.MatchString(value) {
				return patch, fmt.Errorf("invalid color %q, expected hex like #3498db", value)
			}
			value = strings.TrimPrefix(value, "#")
			patch.DefaultColor = &value
		case "buttons":
			v, err := parseToggle(value)
			if err != nil {
				return patch, fmt.Errorf("buttons: %w", err)
			}
			patch.ButtonsEnabled = &v
		default:
			return patch, fmt.Errorf("unknown setting %q", key)
		}
	}
	return patch, nil
}

// splitPairs groups tokens into key/value pairs. A token containing "=" opens
// a new pair; bare tokens extend the previous pair's value.
func splitPairs(fields []string) [][2]string {
	var pairs [][2]string
	for _, f := range fields {
		if k, v, ok := strings.Cut(f, "="); ok {
			pairs = append(pairs, [2]string{strings.ToLower(k), v})
			continue
		}
		if len(pairs) > 0 {
			pairs[len(pairs)-1][1] += " " + f
		}
	}
	for i := range pairs {
		pairs[i][1] = strings.TrimSpace(pairs[i][1])
	}
	return pairs
}

func parseToggle(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", value)
}
