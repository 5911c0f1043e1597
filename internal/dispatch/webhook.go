package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedwatch/internal/render"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookClient posts notifications to Discord-compatible webhook endpoints.
type WebhookClient struct {
	client HTTPClient
}

// NewWebhookClient creates a WebhookClient with the given HTTP client.
func NewWebhookClient(client HTTPClient) *WebhookClient {
	return &WebhookClient{client: client}
}

type webhookBody struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Content   string         `json:"content,omitempty"`
	Embeds    []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string         `json:"title,omitempty"`
	URL         string         `json:"url,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Footer      *webhookFooter `json:"footer,omitempty"`
	Author      *webhookAuthor `json:"author,omitempty"`
	Image       *webhookImage  `json:"image,omitempty"`
}

type webhookFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type webhookAuthor struct {
	Name string `json:"name"`
}

type webhookImage struct {
	URL string `json:"url"`
}

// Send posts the payload to the endpoint. The identity override replaces the
// webhook's default display name and avatar when set. Button affordances are
// carried as a markdown link row appended to the embed body, since plain
// webhooks cannot attach interactive components.
func (c *WebhookClient) Send(ctx context.Context, endpoint string, identity Identity, p render.Payload) error {
	embed := webhookEmbed{
		Title:       p.Title,
		URL:         p.URL,
		Description: p.Body,
		Color:       p.Color,
		Timestamp:   p.Timestamp.UTC().Format(time.RFC3339),
	}
	if p.Footer != "" {
		embed.Footer = &webhookFooter{Text: p.Footer, IconURL: p.FooterIcon}
	}
	if p.Author != "" {
		embed.Author = &webhookAuthor{Name: p.Author}
	}
	if p.ImageURL != "" {
		embed.Image = &webhookImage{URL: p.ImageURL}
	}
	if row := buttonRow(p.Buttons); row != "" {
		if embed.Description != "" {
			embed.Description += "\n\n"
		}
		embed.Description += row
	}

	body := webhookBody{
		Username:  identity.Name,
		AvatarURL: identity.Avatar,
		Content:   p.Mention,
		Embeds:    []webhookEmbed{embed},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func buttonRow(buttons []render.Button) string {
	if len(buttons) == 0 {
		return ""
	}
	parts := make([]string, 0, len(buttons))
	for _, b := range buttons {
		parts = append(parts, fmt.Sprintf("[%s](%s)", b.Label, b.URL))
	}
	return strings.Join(parts, " · ")
}
