// Package bot implements the Telegram command surface and the channel
// delivery sink.
package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedwatch/internal/checker"
	"feedwatch/internal/config"
	"feedwatch/internal/fetcher"
	"feedwatch/internal/render"
	"feedwatch/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot handles user commands and delivers notifications to chat channels.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	checker *checker.Checker
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	f := fetcher.New(http.DefaultClient)
	f.SetTimeout(cfg.FeedTimeout)

	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		fetcher: f,
		log:     log,
	}, nil
}

// AttachChecker wires the orchestrator used by forced checks. Set after
// construction because the checker's dispatcher delivers through this bot.
func (b *Bot) AttachChecker(c *checker.Checker) {
	b.checker = c
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendChannel delivers a rendered payload to a chat as an HTML message with
// inline URL buttons for the link affordances.
func (b *Bot) SendChannel(_ context.Context, channelID int64, p render.Payload) error {
	msg := tgbotapi.NewMessage(channelID, formatPayload(p))
	msg.ParseMode = tgbotapi.ModeHTML
	// Keep the preview on: Telegram renders the item image through it.
	msg.DisableWebPagePreview = p.ImageURL == "" && p.URL == ""

	if len(p.Buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(p.Buttons))
		for _, btn := range p.Buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(btn.Label, btn.URL))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send channel message: %w", err)
	}
	return nil
}

// SendAlert posts a feed-health escalation to the guild's alert channel.
func (b *Bot) SendAlert(_ context.Context, channelID int64, text string) error {
	msg := tgbotapi.NewMessage(channelID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	return nil
}

func formatPayload(p render.Payload) string {
	var sb strings.Builder
	if p.Mention != "" {
		sb.WriteString(html.EscapeString(p.Mention))
		sb.WriteString("\n")
	}
	if p.URL != "" {
		fmt.Fprintf(&sb, "<b><a href=%q>%s</a></b>", p.URL, html.EscapeString(p.Title))
	} else {
		fmt.Fprintf(&sb, "<b>%s</b>", html.EscapeString(p.Title))
	}
	if p.Author != "" {
		fmt.Fprintf(&sb, "\nby %s", html.EscapeString(p.Author))
	}
	if p.Body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(html.EscapeString(p.Body))
	}
	fmt.Fprintf(&sb, "\n\n<i>%s · %s</i>",
		html.EscapeString(p.Footer), p.Timestamp.UTC().Format(time.RFC822))
	return sb.String()
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "subscribe":
		b.handleSubscribe(ctx, chatID, args)
	case "list":
		b.handleList(ctx, chatID)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, chatID, args)
	case "edit":
		b.handleEdit(ctx, chatID, args)
	case "pause":
		b.handleSetPaused(ctx, chatID, args, true)
	case "resume":
		b.handleSetPaused(ctx, chatID, args, false)
	case "check":
		b.handleCheck(ctx, chatID, args)
	case "status":
		b.handleStatus(ctx, chatID, args)
	case "stats":
		b.handleStats(ctx, chatID, args)
	case "export":
		b.handleExport(ctx, chatID)
	case "import":
		b.handleImport(ctx, chatID, args)
	case "settings":
		b.handleSettings(ctx, chatID, args)
	case "webhook":
		b.handleWebhook(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
