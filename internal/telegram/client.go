// Package telegram delivers alerts and service notices via the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/gapwatch/internal/logger"
	"github.com/rewired-gh/gapwatch/internal/models"
	"github.com/rewired-gh/gapwatch/internal/session"
)

const recentAlertCount = 5

var errNoRecipients = errors.New("no telegram recipients")

// SubscriberStore persists the chats that asked for alerts.
type SubscriberStore interface {
	AddSubscriber(chatID int64) (bool, error)
	RemoveSubscriber(chatID int64) (bool, error)
	Subscribers() ([]int64, error)
	RecentAlerts(k int) ([]models.AlertRecord, error)
}

// sender is the subset of *tgbotapi.BotAPI used for outgoing messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	sender         sender
	store          SubscriberStore
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client. chatID is optional; when empty,
// only subscribers that sent /start receive messages.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, store SubscriberStore) (*Client, error) {
	var chatIDInt int64
	if chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat ID: %w", err)
		}
		chatIDInt = id
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	c := newClient(bot, chatIDInt, maxRetries, retryDelayBase, store)
	c.bot = bot
	return c, nil
}

func newClient(s sender, chatID int64, maxRetries int, retryDelayBase time.Duration, store SubscriberStore) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		sender:         s,
		store:          store,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	if c.bot == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message.Chat.ID, update.Message.Command())
				}
			}
		}
	}()
}

func (c *Client) handleCommand(chatID int64, command string) {
	var reply string
	switch command {
	case "ping":
		reply = "Pong"
	case "start":
		added, err := c.store.AddSubscriber(chatID)
		switch {
		case err != nil:
			logger.Error("Failed to subscribe chat %d: %v", chatID, err)
			reply = "Subscription failed, try again later."
		case added:
			logger.Info("Chat %d subscribed", chatID)
			reply = "✅ Subscribed to gap alerts. Send /stop to unsubscribe."
		default:
			reply = "You are already subscribed."
		}
	case "stop":
		removed, err := c.store.RemoveSubscriber(chatID)
		switch {
		case err != nil:
			logger.Error("Failed to unsubscribe chat %d: %v", chatID, err)
			reply = "Unsubscribe failed, try again later."
		case removed:
			logger.Info("Chat %d unsubscribed", chatID)
			reply = "🛑 Unsubscribed."
		default:
			reply = "You are not subscribed."
		}
	case "recent":
		reply = c.recentSummary()
	default:
		return
	}

	if _, err := c.sender.Send(tgbotapi.NewMessage(chatID, reply)); err != nil {
		logger.Warn("Failed to reply to /%s in chat %d: %v", command, chatID, err)
	}
}

func (c *Client) recentSummary() string {
	alerts, err := c.store.RecentAlerts(recentAlertCount)
	if err != nil {
		logger.Error("Failed to load recent alerts: %v", err)
		return "Recent alerts unavailable."
	}
	if len(alerts) == 0 {
		return "No alerts yet."
	}

	var b strings.Builder
	b.WriteString("Recent alerts:")
	for _, a := range alerts {
		status := ""
		if !a.Delivered {
			status = " (undelivered)"
		}
		fmt.Fprintf(&b, "\n%s %s %s%s",
			a.CreatedAt.In(session.Location()).Format("Jan 02 15:04"), a.Symbol, a.Kind, status)
	}
	return b.String()
}

// recipients returns the configured chat plus all subscribers, without duplicates.
func (c *Client) recipients() ([]int64, error) {
	ids, err := c.store.Subscribers()
	if err != nil {
		return nil, err
	}
	if c.chatID == 0 {
		return ids, nil
	}
	out := []int64{c.chatID}
	for _, id := range ids {
		if id != c.chatID {
			out = append(out, id)
		}
	}
	return out, nil
}

// Deliver sends an HTML alert to every recipient, one attempt each. It fails
// only when no recipient received the message.
func (c *Client) Deliver(ctx context.Context, text string) error {
	ids, err := c.recipients()
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	if len(ids) == 0 {
		return errNoRecipients
	}

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := c.sender.Send(msg); err != nil {
			logger.Warn("Failed to deliver alert to chat %d: %v", id, err)
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	if len(errs) == len(ids) {
		return errors.Join(errs...)
	}
	return nil
}

// SendText delivers a plain service notice to every recipient.
func (c *Client) SendText(ctx context.Context, text string) error {
	ids, err := c.recipients()
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.sender.Send(tgbotapi.NewMessage(id, text)); err != nil {
			logger.Warn("Failed to send notice to chat %d: %v", id, err)
		}
	}
	return nil
}

// sendMarkdownV2 sends a MarkdownV2 message to every recipient with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	ids, err := c.recipients()
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}
	if len(ids) == 0 {
		return errNoRecipients
	}

	var errs []error
	for _, id := range ids {
		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeMarkdownV2

		var lastErr error
		sent := false
		for i := 0; i < c.maxRetries; i++ {
			if _, err := c.sender.Send(msg); err == nil {
				sent = true
				break
			} else {
				lastErr = err
			}
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
		if !sent {
			errs = append(errs, fmt.Errorf("chat %d failed after %d retries: %w", id, c.maxRetries, lastErr))
		}
	}
	return errors.Join(errs...)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Poller error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Poller recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
