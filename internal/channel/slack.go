package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"relaybot/internal/domain"

	"github.com/slack-go/slack"
)

const slackMaxMsgLen = 4000

// Slack implements domain.ChatTransport via the Slack Web API. It is a
// send-only transport: inbound capture needs Socket Mode with an app-level
// token, which the gateway does not require.
type Slack struct {
	botToken string
	client   *slack.Client
	logger   *slog.Logger
	botUID   string
}

// SlackConfig configures the Slack transport.
type SlackConfig struct {
	BotToken string
	Logger   *slog.Logger
}

func NewSlack(cfg SlackConfig) *Slack {
	return &Slack{
		botToken: cfg.BotToken,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string    { return "slack" }
func (s *Slack) MaxTextLen() int { return slackMaxMsgLen }

// Connect verifies the bot token.
func (s *Slack) Connect() error {
	api := slack.New(s.botToken)
	authResp, err := api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.client = api
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)
	return nil
}

// SendText posts a message and returns its timestamp, which Slack uses as
// the message ID for later edits and deletes.
func (s *Slack) SendText(ctx context.Context, chatID, text string, opts domain.SendOptions) (string, error) {
	if len(text) > slackMaxMsgLen {
		text = text[:slackMaxMsgLen]
	}
	_, ts, err := s.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("slack send: %w", err)
	}
	return ts, nil
}

func (s *Slack) EditText(ctx context.Context, chatID, messageID, text string, opts domain.SendOptions) error {
	if len(text) > slackMaxMsgLen {
		text = text[:slackMaxMsgLen]
	}
	if _, _, _, err := s.client.UpdateMessageContext(ctx, chatID, messageID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack edit: %w", err)
	}
	return nil
}

func (s *Slack) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if _, _, err := s.client.DeleteMessageContext(ctx, chatID, messageID); err != nil {
		return fmt.Errorf("slack delete: %w", err)
	}
	return nil
}

func (s *Slack) SendMedia(ctx context.Context, chatID string, urls []string, caption string) error {
	content := strings.Join(urls, "\n")
	if caption != "" {
		content = caption + "\n" + content
	}
	_, _, err := s.client.PostMessageContext(ctx, chatID, slack.MsgOptionText(content, false))
	if err != nil {
		return fmt.Errorf("slack media send: %w", err)
	}
	return nil
}
