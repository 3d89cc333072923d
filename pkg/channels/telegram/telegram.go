// Package telegram is the Telegram transport, built on telego long polling.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/channels"
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/config"
	"github.com/sipeed/picobot/pkg/logger"
)

const ChannelName = "telegram"

// botAPI is the subset of *telego.Bot used to deliver replies.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	SendDocument(ctx context.Context, params *telego.SendDocumentParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error
}

type TelegramChannel struct {
	*channels.BaseChannel
	bot    *telego.Bot
	api    botAPI
	config config.TelegramConfig
	defs   []commands.Definition

	registerFunc     func(context.Context, []commands.Definition) error
	commandRegCancel context.CancelFunc

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	username string
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}

	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: channels.NewBaseChannel(ChannelName, messageBus, cfg.AllowFrom),
		bot:         bot,
		api:         bot,
		config:      cfg,
	}, nil
}

// SetCommands sets the definitions published as the bot's command menu.
func (c *TelegramChannel) SetCommands(defs []commands.Definition) {
	c.defs = defs
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	fields := map[string]any{}
	if me, err := c.bot.GetMe(ctx); err == nil {
		fields["username"] = me.Username
		c.mu.Lock()
		c.username = me.Username
		c.mu.Unlock()
	}
	logger.InfoCF("telegram", "Telegram bot connected", fields)

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	c.SetRunning(true)

	if c.config.RegisterCommands {
		c.startCommandRegistration(pollCtx, c.defs)
	}

	go func() {
		defer close(done)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					return
				}
				c.handleUpdate(pollCtx, update)
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.SetRunning(false)

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if c.commandRegCancel != nil {
		c.commandRegCancel()
	}
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		ev, ok := eventFromMessage(update.Message)
		if !ok {
			return
		}
		c.mu.Lock()
		ev.BotUsername = c.username
		c.mu.Unlock()
		c.HandleEvent(ctx, senderID(*update.Message.From), ev)
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		ev, ok := eventFromCallback(query)
		if ok && c.HandleEvent(ctx, senderID(query.From), ev) {
			return
		}
		// nobody else will answer this press
		c.answerCallback(ctx, query.ID)
	}
}

// Send delivers one reply and, for button presses, acknowledges the query.
func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	var err error
	if msg.Reply != nil {
		err = c.deliver(ctx, msg.Reply)
	}
	if msg.CallbackQueryID != "" {
		c.answerCallback(ctx, msg.CallbackQueryID)
	}
	return err
}

func (c *TelegramChannel) deliver(ctx context.Context, reply bus.Reply) error {
	switch r := reply.(type) {
	case *bus.NewMessage:
		params := tu.Message(tu.ID(r.ChatID), r.Text)
		params.ParseMode = parseMode(r.Format)
		if kb := inlineKeyboard(r.Markup); kb != nil {
			params.ReplyMarkup = kb
		}
		if r.ReplyTo != 0 {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: r.ReplyTo, AllowSendingWithoutReply: true}
		}
		if _, err := c.api.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	case *bus.EditMessage:
		params := tu.EditMessageText(tu.ID(r.ChatID), r.MessageID, r.Text)
		params.ParseMode = parseMode(r.Format)
		params.ReplyMarkup = inlineKeyboard(r.Markup)
		if _, err := c.api.EditMessageText(ctx, params); err != nil {
			if isNotModified(err) {
				return nil
			}
			return fmt.Errorf("edit message: %w", err)
		}
	case *bus.SendBinary:
		params := tu.Document(tu.ID(r.ChatID), tu.FileFromID(r.ExternalRef))
		if r.ReplyTo != 0 {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: r.ReplyTo, AllowSendingWithoutReply: true}
		}
		if _, err := c.api.SendDocument(ctx, params); err != nil {
			return fmt.Errorf("send document %q: %w", r.DisplayName, err)
		}
	default:
		return fmt.Errorf("unsupported reply %T", reply)
	}
	return nil
}

func (c *TelegramChannel) answerCallback(ctx context.Context, queryID string) {
	err := c.api.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: queryID})
	if err != nil {
		logger.DebugCF("telegram", "Failed to answer callback query", map[string]any{
			"query_id": queryID,
			"error":    err.Error(),
		})
	}
}

// Refresh on an unchanged listing produces an identical edit, which the
// Bot API rejects.
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
