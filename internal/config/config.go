// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	BotToken        string
	DatabasePath    string
	LogLevel        string
	CheckInterval   time.Duration
	FeedTimeout     time.Duration
	RetentionDays   int
	ShutdownTimeout time.Duration
	SendRatePerSec  int
	AllowedUsers    []int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/feedwatch.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	checkMinutes, err := intEnv("CHECK_INTERVAL_MINUTES", 5, 1, 1440)
	if err != nil {
		return nil, err
	}
	feedTimeout, err := intEnv("FEED_TIMEOUT_SECONDS", 10, 1, 300)
	if err != nil {
		return nil, err
	}
	retention, err := intEnv("HISTORY_RETENTION_DAYS", 30, 1, 3650)
	if err != nil {
		return nil, err
	}
	shutdown, err := intEnv("SHUTDOWN_TIMEOUT_SECONDS", 30, 1, 600)
	if err != nil {
		return nil, err
	}
	sendRate, err := intEnv("SEND_RATE_PER_SECOND", 20, 1, 100)
	if err != nil {
		return nil, err
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		BotToken:        token,
		DatabasePath:    dbPath,
		LogLevel:        logLevel,
		CheckInterval:   time.Duration(checkMinutes) * time.Minute,
		FeedTimeout:     time.Duration(feedTimeout) * time.Second,
		RetentionDays:   retention,
		ShutdownTimeout: time.Duration(shutdown) * time.Second,
		SendRatePerSec:  sendRate,
		AllowedUsers:    allowedUsers,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func intEnv(name string, def, min, max int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return v, nil
}
