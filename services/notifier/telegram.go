package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"signal_report_backend/models"
)

// TelegramSink posts reports to a Telegram channel or chat
type TelegramSink struct {
	token    string
	endpoint string
	client   *http.Client
	chatID   int64
	handle   string

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramSink resolves the destination and tries to authenticate the bot.
// channel is either an @username or a numeric chat id. An empty endpoint uses the public Bot API.
// Failing to reach Telegram here is not an error: Send authenticates again until it succeeds.
func NewTelegramSink(token, channel, endpoint string, client *http.Client) (*TelegramSink, error) {
	if token == "" || channel == "" {
		return nil, fmt.Errorf("telegram: %w", ErrNotConfigured)
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	s := &TelegramSink{token: token, endpoint: endpoint, client: client}
	if strings.HasPrefix(channel, "@") {
		s.handle = channel
	} else {
		id, err := strconv.ParseInt(channel, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("telegram: channel must be @username or chat id, got %q", channel)
		}
		s.chatID = id
	}

	if _, err := s.connect(); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("Telegram unreachable, will retry on next report")
	}
	return s, nil
}

// connect returns the authenticated bot, calling getMe until it succeeds once
func (s *TelegramSink) connect() (*tgbotapi.BotAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil {
		return s.bot, nil
	}

	bot, err := tgbotapi.NewBotAPIWithClient(s.token, s.endpoint, s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}
	s.bot = bot
	log.Info().Str("bot", bot.Self.UserName).Msg("Telegram sink ready")
	return bot, nil
}

func (s *TelegramSink) Name() string { return models.ChannelTelegram }

// Send posts text. The Bot API client has no context support, so ctx only bounds the wait.
func (s *TelegramSink) Send(ctx context.Context, text string) (Ack, error) {
	var msg tgbotapi.MessageConfig
	if s.handle != "" {
		msg = tgbotapi.NewMessageToChannel(s.handle, text)
	} else {
		msg = tgbotapi.NewMessage(s.chatID, text)
	}
	msg.DisableWebPagePreview = true

	type result struct {
		sent tgbotapi.Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		bot, err := s.connect()
		if err != nil {
			done <- result{err: err}
			return
		}
		sent, err := bot.Send(msg)
		done <- result{sent, err}
	}()

	select {
	case <-ctx.Done():
		return Ack{}, &SendError{Channel: s.Name(), Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			return Ack{}, &SendError{Channel: s.Name(), Err: r.err}
		}
		return Ack{Reference: "message " + strconv.Itoa(r.sent.MessageID), At: time.Now().UTC()}, nil
	}
}
