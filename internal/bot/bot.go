package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
)

const (
	startCommand    = "start"
	idCommand       = "id"
	orphanedCommand = "orphaned"
)

const orphanedListLimit = 10

// Bot owns the Telegram Bot API connection. It implements service.Messenger
// for the outbound side and dispatches inbound updates to the conversation
// state machine.
type Bot struct {
	api           *tgbotapi.BotAPI
	cfg           config.TelegramConfig
	conversations *service.ConversationService
	routing       *service.RoutingService
	logger        *zap.Logger
}

// New authenticates against the Bot API. The conversation service is bound
// later because it depends on the bot as its Messenger.
func New(cfg config.TelegramConfig, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger.Info("authorized on telegram", zap.String("username", api.Self.UserName))

	return &Bot{api: api, cfg: cfg, logger: logger}, nil
}

// Bind attaches the services that consume inbound updates.
func (b *Bot) Bind(conversations *service.ConversationService, routing *service.RoutingService) {
	b.conversations = conversations
	b.routing = routing
}

// Run processes updates via long polling until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeoutSec

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping telegram updates")
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Acknowledge immediately so the client stops its spinner.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack failed", zap.Error(err))
	}
	if cb.Message == nil {
		return
	}

	if err := b.conversations.HandleCallback(ctx, cb.From.ID, cb.Message.Chat.ID, cb.Data); err != nil {
		b.logger.Error("callback handling failed",
			zap.Int64("user_id", cb.From.ID), zap.String("payload", cb.Data), zap.Error(err))
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if msg.Chat.ID == b.cfg.GroupChatID {
		replyTo := 0
		if msg.ReplyToMessage != nil {
			replyTo = msg.ReplyToMessage.MessageID
		}
		if err := b.conversations.HandleGroupMessage(ctx, msg.From.ID, msg.Chat.ID, msg.MessageID, replyTo, msg.Text); err != nil {
			b.logger.Error("group message handling failed",
				zap.Int64("user_id", msg.From.ID), zap.Int("message_id", msg.MessageID), zap.Error(err))
		}
		return
	}

	if err := b.conversations.HandlePrivateText(ctx, msg.From.ID, msg.Chat.ID, msg.Text); err != nil {
		b.logger.Error("private message handling failed",
			zap.Int64("user_id", msg.From.ID), zap.Error(err))
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case startCommand:
		if msg.Chat.ID == b.cfg.GroupChatID {
			return
		}
		if err := b.conversations.StartIntake(ctx, msg.From.ID, msg.Chat.ID); err != nil {
			b.logger.Error("intake start failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		}
	case idCommand:
		text := fmt.Sprintf("Ваш id: %d", msg.From.ID)
		if msg.Chat.ID != msg.From.ID {
			text = fmt.Sprintf("Ваш id: %d\nId чата: %d", msg.From.ID, msg.Chat.ID)
		}
		if _, err := b.SendText(ctx, msg.Chat.ID, text); err != nil {
			b.logger.Warn("id reply failed", zap.Error(err))
		}
	case orphanedCommand:
		if !b.cfg.IsAdmin(msg.From.ID) {
			return
		}
		tickets, err := b.routing.ListOrphaned(ctx, orphanedListLimit)
		if err != nil {
			b.logger.Error("orphaned listing failed", zap.Error(err))
			return
		}
		if _, err := b.SendText(ctx, msg.Chat.ID, orphanedListText(tickets)); err != nil {
			b.logger.Warn("orphaned reply failed", zap.Error(err))
		}
	}
}

func orphanedListText(tickets []domain.Ticket) string {
	if len(tickets) == 0 {
		return "Потерянных вопросов нет."
	}
	var sb strings.Builder
	sb.WriteString("Вопросы без объявления в группе:\n")
	for _, t := range tickets {
		question := t.Question
		if utf8.RuneCountInString(question) > 80 {
			question = string([]rune(question)[:80]) + "…"
		}
		fmt.Fprintf(&sb, "#%d [%s] %s — %s\n", t.ID, t.Category, t.DisplayName(), question)
	}
	return sb.String()
}
