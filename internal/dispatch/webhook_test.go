package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"feedwatch/internal/render"
)

type recordingTransport struct {
	req        *http.Request
	body       []byte
	statusCode int
}

func (r *recordingTransport) Do(req *http.Request) (*http.Response, error) {
	r.req = req
	r.body, _ = io.ReadAll(req.Body)
	return &http.Response{
		StatusCode: r.statusCode,
		Body:       io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

func TestWebhookSend(t *testing.T) {
	transport := &recordingTransport{statusCode: 204}
	c := NewWebhookClient(transport)

	p := render.Payload{
		Title:      "go1.25 released",
		URL:        "https://example.com/go1.25",
		Body:       "The latest Go release.",
		Timestamp:  time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC),
		Footer:     "Go Releases",
		FooterIcon: "https://example.com/icon.png",
		Color:      0x238636,
		Author:     "gopherbot",
		ImageURL:   "https://cdn.example.com/banner.png",
		Mention:    "@here",
		Buttons: []render.Button{
			{Label: "Read", URL: "https://example.com/go1.25", Kind: "read"},
			{Label: "GitHub", URL: "https://github.com/golang/go", Kind: "github"},
		},
	}
	identity := Identity{Name: "Release Bot", Avatar: "https://cdn.example.com/avatar.png"}

	if err := c.Send(context.Background(), "https://hooks.example.com/abc", identity, p); err != nil {
		t.Fatalf("send: %v", err)
	}

	if transport.req.Method != http.MethodPost {
		t.Errorf("method = %s", transport.req.Method)
	}
	if ct := transport.req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got webhookBody
	if err := json.Unmarshal(transport.body, &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}

	want := webhookBody{
		Username:  "Release Bot",
		AvatarURL: "https://cdn.example.com/avatar.png",
		Content:   "@here",
		Embeds: []webhookEmbed{{
			Title: "go1.25 released",
			URL:   "https://example.com/go1.25",
			Description: "The latest Go release.\n\n" +
				"[Read](https://example.com/go1.25) · [GitHub](https://github.com/golang/go)",
			Color:     0x238636,
			Timestamp: "2025-08-11T09:00:00Z",
			Footer:    &webhookFooter{Text: "Go Releases", IconURL: "https://example.com/icon.png"},
			Author:    &webhookAuthor{Name: "gopherbot"},
			Image:     &webhookImage{URL: "https://cdn.example.com/banner.png"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("webhook body mismatch (-want +got):\n%s", diff)
	}
}

func TestWebhookSendMinimal(t *testing.T) {
	transport := &recordingTransport{statusCode: 200}
	c := NewWebhookClient(transport)

	p := render.Payload{Title: "Post", Timestamp: time.Date(2025, 8, 11, 9, 0, 0, 0, time.UTC)}
	if err := c.Send(context.Background(), "https://hooks.example.com/abc", Identity{}, p); err != nil {
		t.Fatalf("send: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(transport.body, &got); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	for _, key := range []string{"username", "avatar_url", "content"} {
		if _, present := got[key]; present {
			t.Errorf("expected %q to be omitted when empty", key)
		}
	}
}

func TestWebhookSendErrorStatus(t *testing.T) {
	transport := &recordingTransport{statusCode: 429}
	c := NewWebhookClient(transport)

	err := c.Send(context.Background(), "https://hooks.example.com/abc", Identity{}, render.Payload{})
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
