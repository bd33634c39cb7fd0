// Package telegram provides the Telegram Bot API client for Hikyaku
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/bdobrica/Hikyaku/common/redact"
	"github.com/bdobrica/Hikyaku/common/retry"
	"github.com/bdobrica/Hikyaku/common/version"
)

// Config holds Telegram client configuration
type Config struct {
	Token string

	// PollTimeout is the getUpdates long-poll timeout in seconds.
	PollTimeout int
}

// Client wraps the Bot API client
type Client struct {
	bot        *tgbotapi.BotAPI
	config     *Config
	stopCh     chan struct{}
	msgHandler MessageHandler
}

// MessageHandler processes incoming Telegram messages
type MessageHandler func(ctx context.Context, msg *tgbotapi.Message)

// New creates a Telegram client. The Bot API handshake (getMe) is retried
// with backoff so a bot starting before the network is up comes online once
// connectivity returns. Errors are scrubbed of the bot token, which the Bot
// API embeds in request URLs.
func New(ctx context.Context, config *Config) (*Client, error) {
	var bot *tgbotapi.BotAPI
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		bot, err = tgbotapi.NewBotAPI(config.Token)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", redact.Error(err, config.Token))
	}

	slog.Info("connected to Telegram", "bot", bot.Self.UserName)

	return &Client{
		bot:    bot,
		config: config,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins receiving updates and dispatching messages to handler.
// The Bot API library keeps the long-poll loop alive and reconnecting on its
// own; consumption ends when Stop closes the updates channel.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.msgHandler = handler

	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.config.PollTimeout

	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-c.stopCh:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil {
					continue
				}
				if c.msgHandler == nil {
					continue
				}
				// Each update gets its own goroutine: a long assistant
				// invocation must not stall the poll loop for everyone.
				go c.msgHandler(ctx, msg)
			}
		}
	}()

	return nil
}

// Stop stops receiving updates
func (c *Client) Stop() {
	close(c.stopCh)
	c.bot.StopReceivingUpdates()
}

// BotName returns the bot's Telegram username
func (c *Client) BotName() string {
	return c.bot.Self.UserName
}

// SendMessage sends a plain text message to a chat
func (c *Client) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", redact.Error(err, c.config.Token))
	}
	return nil
}

// SendMarkdown sends a Markdown-formatted message. Telegram rejects the
// whole message when the markup does not balance, so on failure the text is
// resent plain rather than dropped.
func (c *Client) SendMarkdown(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := c.bot.Send(msg); err != nil {
		slog.Warn("markdown message rejected, resending as plain text",
			"err", redact.Error(err, c.config.Token))
		return c.SendMessage(chatID, text)
	}
	return nil
}

// SendChunked splits text into Telegram-sized pieces and sends them in order
func (c *Client) SendChunked(chatID int64, text string) error {
	for _, chunk := range SplitMessage(text, MessageLimit) {
		if err := c.SendMessage(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SendTyping shows the "typing..." indicator in a chat. Failures only cost
// the indicator, so they are logged and swallowed.
func (c *Client) SendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := c.bot.Request(action); err != nil {
		slog.Debug("failed to send typing action", "err", redact.Error(err, c.config.Token))
	}
}

// LargestPhoto returns the file ID of a message's highest-resolution photo
// variant. Telegram orders the variants smallest first.
func LargestPhoto(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) == 0 {
		return "", false
	}
	return msg.Photo[len(msg.Photo)-1].FileID, true
}

// DownloadFile fetches a Telegram-hosted file into dir and returns the local
// path. The caller is responsible for removing the file. The download URL
// carries the bot token, so it never appears in errors or logs.
func (c *Client) DownloadFile(ctx context.Context, fileID, dir string) (string, error) {
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file URL: %w", redact.Error(err, c.config.Token))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", redact.Error(err, c.config.Token))
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", redact.Error(err, c.config.Token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download file: unexpected status %s", resp.Status)
	}

	path := filepath.Join(dir, uuid.NewString()+".jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write download file: %w", err)
	}

	return path, nil
}
