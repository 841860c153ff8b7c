package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/skypro1111/voice-archive-bot/internal/dialog"
	"github.com/skypro1111/voice-archive-bot/internal/metrics"
)

// maxDownloadSize caps a single downloaded recording
const maxDownloadSize = 50 << 20

// Config holds Bot API connection settings
type Config struct {
	Token       string
	APIEndpoint string // defaults to the public Bot API
	PollTimeout time.Duration
	Debug       bool
	HTTPClient  *http.Client
}

// Bot adapts the Telegram Bot API to the dialog package: it produces
// dialog events from long-polled updates and implements dialog.Messenger
type Bot struct {
	api         *tgbotapi.BotAPI
	client      *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
	pollTimeout time.Duration

	stopOnce sync.Once
}

// NewBot authenticates against the Bot API
func NewBot(logger *slog.Logger, config Config, m *metrics.Metrics) (*Bot, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if config.APIEndpoint == "" {
		config.APIEndpoint = tgbotapi.APIEndpoint
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 60 * time.Second
	}
	if config.HTTPClient == nil {
		// long polling holds the request open for the whole poll timeout
		config.HTTPClient = &http.Client{Timeout: config.PollTimeout + 10*time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	api, err := tgbotapi.NewBotAPIWithClient(config.Token, config.APIEndpoint, config.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bot api: %w", err)
	}
	api.Debug = config.Debug

	logger.Info("Bot authorized", slog.String("username", api.Self.UserName))

	return &Bot{
		api:         api,
		client:      config.HTTPClient,
		logger:      logger,
		metrics:     m,
		pollTimeout: config.PollTimeout,
	}, nil
}

// Username returns the bot's own username
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Events starts long polling and returns the inbound event stream. The
// channel is closed after ctx is done or Stop is called.
func (b *Bot) Events(ctx context.Context) <-chan dialog.Event {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.pollTimeout / time.Second)
	u.AllowedUpdates = []string{"message"}

	updates := b.api.GetUpdatesChan(u)
	events := make(chan dialog.Event)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				b.Stop()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := toEvent(update)
				if !ok {
					b.metrics.RecordUpdate("ignored")
					continue
				}
				b.metrics.RecordUpdate(ev.Kind.String())

				select {
				case events <- ev:
				case <-ctx.Done():
					b.Stop()
					return
				}
			}
		}
	}()

	return events
}

// Stop ends long polling
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		b.api.StopReceivingUpdates()
		b.logger.Info("Stopped receiving updates")
	})
}

// SendText sends a text message, optionally with a reply keyboard
func (b *Bot) SendText(ctx context.Context, chatID int64, text string, keyboard *dialog.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := keyboardMarkup(keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}
	return b.send(ctx, msg)
}

// SendVoice sends a voice note with a caption
func (b *Bot) SendVoice(ctx context.Context, chatID int64, audio []byte, caption string) (int, error) {
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "voice.ogg", Bytes: audio})
	voice.Caption = caption
	return b.send(ctx, voice)
}

// SendAudio sends an audio file with a caption
func (b *Bot) SendAudio(ctx context.Context, chatID int64, audio []byte, caption string) (int, error) {
	file := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: "recording.wav", Bytes: audio})
	file.Caption = caption
	return b.send(ctx, file)
}

// Reply sends text as a reply to an earlier message
func (b *Bot) Reply(ctx context.Context, chatID int64, replyTo int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	return b.send(ctx, msg)
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sent, err := b.api.Send(c)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

// Download fetches the contents of an uploaded file
func (b *Bot) Download(ctx context.Context, fileID string) ([]byte, error) {
	link, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download file %s: status %d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, maxDownloadSize)
	}

	return data, nil
}
