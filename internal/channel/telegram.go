package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.ChatTransport for the Telegram Bot API.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)
	parseMode string

	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // User IDs as strings
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string    { return "telegram" }
func (t *Telegram) MaxTextLen() int { return telegramMaxMsgLen }

// Connect authenticates against the Bot API.
func (t *Telegram) Connect() error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return nil
}

// SendText sends a message and returns its message ID. Texts over the
// per-message limit are truncated; callers that need chunking use
// splitMessage themselves before the live-status phase.
func (t *Telegram) SendText(ctx context.Context, chatID, text string, opts domain.SendOptions) (string, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chat ID: %w", err)
	}
	text = Truncate(text, telegramMaxMsgLen)

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = t.resolveParseMode(opts)
	msg.DisableWebPagePreview = opts.DisablePreview

	sent, err := t.sendWithRetry(ctx, msg, id, text, opts)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}

// EditText replaces the content of an existing message. A Telegram
// "message is not modified" response is mapped to domain.ErrNotModified.
func (t *Telegram) EditText(ctx context.Context, chatID, messageID, text string, opts domain.SendOptions) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message ID: %w", err)
	}
	text = Truncate(text, telegramMaxMsgLen)

	edit := tgbotapi.NewEditMessageText(id, msgID, text)
	edit.ParseMode = t.resolveParseMode(opts)

	if _, err := t.bot.Send(edit); err != nil {
		if isNotModified(err) {
			return domain.ErrNotModified
		}
		// Parse errors from model-generated markup: retry as plain text.
		if edit.ParseMode != "" && isParseError(err) {
			t.logger.Warn("telegram edit parse error, retrying as plain text", "err", err)
			plain := tgbotapi.NewEditMessageText(id, msgID, text)
			if _, err2 := t.bot.Send(plain); err2 != nil {
				if isNotModified(err2) {
					return domain.ErrNotModified
				}
				return fmt.Errorf("telegram edit: %w", err2)
			}
			return nil
		}
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}

func (t *Telegram) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message ID: %w", err)
	}
	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(id, msgID)); err != nil {
		return fmt.Errorf("telegram delete: %w", err)
	}
	return nil
}

// SendMedia sends one photo or a media group, with the caption on the
// first item.
func (t *Telegram) SendMedia(ctx context.Context, chatID string, urls []string, caption string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	if len(urls) == 0 {
		return nil
	}

	if len(urls) == 1 {
		photo := tgbotapi.NewPhoto(id, tgbotapi.FileURL(urls[0]))
		photo.Caption = caption
		if _, err := t.bot.Send(photo); err != nil {
			return fmt.Errorf("telegram photo: %w", err)
		}
		return nil
	}

	var media []interface{}
	for i, u := range urls {
		item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(u))
		if i == 0 {
			item.Caption = caption
		}
		media = append(media, item)
	}
	group := tgbotapi.NewMediaGroup(id, media)
	if _, err := t.bot.SendMediaGroup(group); err != nil {
		return fmt.Errorf("telegram media group: %w", err)
	}
	return nil
}

// StartPolling polls for updates and forwards allowed user messages to the
// sink for conversation-context capture. Blocks until ctx is cancelled.
func (t *Telegram) StartPolling(ctx context.Context, sink domain.InboundSink) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram polling stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update, sink)
		}
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update, sink domain.InboundSink) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	t.logger.Debug("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	sink.PublishInbound(domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(chatID, 10),
		SenderID:  strconv.FormatInt(userID, 10),
		Content:   text,
		Timestamp: time.Unix(int64(update.Message.Date), 0),
	})
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) resolveParseMode(opts domain.SendOptions) string {
	if opts.ParseMode != "" {
		return opts.ParseMode
	}
	return t.parseMode
}

// sendWithRetry sends one message with rate limit handling and a
// plain-text fallback for markup the Bot API rejects.
func (t *Telegram) sendWithRetry(ctx context.Context, msg tgbotapi.MessageConfig, chatID int64, text string, opts domain.SendOptions) (*tgbotapi.Message, error) {
	var lastErr error

	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		if attempt > 0 {
			// Drop the parse mode after the first failure.
			msg = tgbotapi.NewMessage(chatID, text)
			msg.DisableWebPagePreview = opts.DisablePreview
		}

		sent, err := t.bot.Send(msg)
		if err == nil {
			return &sent, nil
		}
		lastErr = err

		if isRateLimited(err) {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryAfter):
			}
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && isParseError(err) {
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err)
			continue
		}

		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
	}

	return nil, fmt.Errorf("telegram send failed after %d attempts: %w", telegramMaxSendRetries+1, lastErr)
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func isParseError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "429")
}
