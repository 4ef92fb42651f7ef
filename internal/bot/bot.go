// Package bot binds the conversation engine to Telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/valenrosasc/chatbot/internal/conversation"
)

// Telegram rejects longer messages.
const maxMessageRunes = 4096

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Conversation is the dialogue engine seen from the transport.
type Conversation interface {
	HandleMessage(ctx context.Context, in conversation.Inbound) ([]string, error)
	Restart(ctx context.Context, senderID string) ([]string, error)
}

// Bot relays Telegram chat messages to the conversation engine.
type Bot struct {
	tg      telegramClient
	conv    Conversation
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// New connects to the Bot API. sendRate caps outgoing messages per second.
func New(token string, debug bool, sendRate float64, conv Conversation, logger *zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = debug
	return NewWithTelegramClient(&realTelegramClient{api: api}, conv, sendRate, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, conv Conversation, sendRate float64, logger *zerolog.Logger) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	limit := rate.Inf
	burst := 1
	if sendRate > 0 {
		limit = rate.Limit(sendRate)
		burst = int(sendRate)
		if burst < 1 {
			burst = 1
		}
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &Bot{
		tg:      tg,
		conv:    conv,
		limiter: rate.NewLimiter(limit, burst),
		logger:  &l,
	}, nil
}

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	defer b.tg.StopReceivingUpdates()
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	l := zerolog.Ctx(ctx)
	chatID := msg.Chat.ID
	senderID := strconv.FormatInt(chatID, 10)
	l.Debug().Str("sender", senderID).Str("text", msg.Text).Msg("Handling message")

	var (
		replies []string
		err     error
	)
	if msg.IsCommand() && (msg.Command() == "start" || msg.Command() == "menu") {
		replies, err = b.conv.Restart(ctx, senderID)
	} else {
		replies, err = b.conv.HandleMessage(ctx, conversation.Inbound{SenderID: senderID, Text: msg.Text})
	}
	if err != nil {
		l.Error().Err(err).Str("sender", senderID).Msg("conversation step failed")
	}

	for _, text := range replies {
		b.reply(ctx, chatID, text)
	}
}

// reply sends text as Markdown, falling back to plain text when Telegram
// cannot parse the entities.
func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	l := zerolog.Ctx(ctx)
	for _, part := range splitMessage(text, maxMessageRunes) {
		if err := b.limiter.Wait(ctx); err != nil {
			return
		}

		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.tg.Send(msg); err != nil {
			if !isParseError(err) {
				l.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
				return
			}
			msg.ParseMode = ""
			if _, err := b.tg.Send(msg); err != nil {
				l.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
				return
			}
		}
	}
}

func isParseError(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && tgErr.Code == 400 && strings.Contains(tgErr.Message, "can't parse entities")
}

// splitMessage cuts text into chunks of at most limit runes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	count := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if count > 0 && count+n > limit {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			count = 0
		}
		for n > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		current.WriteString(line)
		count += n
	}
	if count > 0 {
		parts = append(parts, strings.TrimRight(current.String(), "\n"))
	}
	return parts
}
