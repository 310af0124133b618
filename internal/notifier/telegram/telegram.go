// Package telegram sends operator messages to one Telegram chat.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// URL overrides the Bot API endpoint, for tests.
	URL string
}

// Client implements notifier.Sender and logx.Sender. It only sends; it never
// polls for updates.
type Client struct {
	bot  *tele.Bot
	chat *tele.Chat
	opt  *tele.SendOptions
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: 15 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Client{
		bot:  b,
		chat: &tele.Chat{ID: cfg.ChatID},
		opt:  &tele.SendOptions{ThreadID: cfg.ThreadID, DisableWebPagePreview: true},
	}, nil
}

// SendText posts text as a plain message. telebot has no per-call context,
// so cancellation is checked before sending and the HTTP client timeout
// bounds the call.
func (c *Client) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.bot.Send(c.chat, text, c.opt)
	return err
}
