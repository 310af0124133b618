package notifier

import (
	"context"
	"time"
)

// Config controls the delivery pipeline. Zero values take defaults.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	DedupWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// Sender is the transport. It matches logx.Sender so one Telegram client
// serves both.
type Sender interface {
	SendText(ctx context.Context, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) SendText(ctx context.Context, text string) error { return f(ctx, text) }

// Priority prefixes the message so alerts stand out in the chat.
type Priority int

const (
	PriorityInfo Priority = iota
	PriorityWarn
	PriorityAlert
)

func (p Priority) prefix() string {
	switch p {
	case PriorityAlert:
		return "🚨 "
	case PriorityWarn:
		return "⚠️ "
	default:
		return ""
	}
}

type Notification struct {
	Priority Priority
	Text     string
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Text  string    `json:"text"`
	Error string    `json:"error,omitempty"`
}
