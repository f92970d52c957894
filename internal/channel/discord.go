package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMsgLen = 2000

// Discord implements domain.ChatTransport for Discord.
type Discord struct {
	token   string
	guildID string
	session *discordgo.Session
	logger  *slog.Logger
}

// DiscordConfig configures the Discord transport.
type DiscordConfig struct {
	Token   string
	GuildID string
	Logger  *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		logger:  cfg.Logger,
	}
}

func (d *Discord) Name() string    { return "discord" }
func (d *Discord) MaxTextLen() int { return discordMaxMsgLen }

// Connect opens the gateway session and registers the inbound handler.
func (d *Discord) Connect(sink domain.InboundSink) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author.ID == s.State.User.ID {
			return
		}
		if d.guildID != "" && m.GuildID != d.guildID {
			return
		}

		d.logger.Debug("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
		)

		sink.PublishInbound(domain.InboundMessage{
			Channel:   "discord",
			ChatID:    m.ChannelID,
			SenderID:  m.Author.ID,
			Content:   m.Content,
			Timestamp: time.Now(),
		})
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)
	return nil
}

func (d *Discord) Close() error {
	if d.session == nil {
		return nil
	}
	d.logger.Info("discord bot disconnecting")
	return d.session.Close()
}

func (d *Discord) SendText(ctx context.Context, chatID, text string, opts domain.SendOptions) (string, error) {
	if len(text) > discordMaxMsgLen {
		text = text[:discordMaxMsgLen]
	}
	msg, err := d.session.ChannelMessageSend(chatID, text)
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return msg.ID, nil
}

// EditText replaces a message's content. Discord accepts identical content
// edits silently, so duplicate suppression happens upstream only.
func (d *Discord) EditText(ctx context.Context, chatID, messageID, text string, opts domain.SendOptions) error {
	if len(text) > discordMaxMsgLen {
		text = text[:discordMaxMsgLen]
	}
	if _, err := d.session.ChannelMessageEdit(chatID, messageID, text); err != nil {
		return fmt.Errorf("discord edit: %w", err)
	}
	return nil
}

func (d *Discord) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if err := d.session.ChannelMessageDelete(chatID, messageID); err != nil {
		return fmt.Errorf("discord delete: %w", err)
	}
	return nil
}

// SendMedia posts media URLs; Discord unfurls them into embeds.
func (d *Discord) SendMedia(ctx context.Context, chatID string, urls []string, caption string) error {
	content := strings.Join(urls, "\n")
	if caption != "" {
		content = caption + "\n" + content
	}
	if _, err := d.session.ChannelMessageSend(chatID, content); err != nil {
		return fmt.Errorf("discord media send: %w", err)
	}
	return nil
}
