package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/events"
)

// NotificationService writes an audit trail for ticket lifecycle events. It
// is the single subscriber of the in-process dispatcher; operators watch the
// group, admins watch the logs.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketAnnounced, n.handleTicketAnnounced)
	n.dispatcher.Subscribe(events.EventTicketAnswered, n.handleTicketAnswered)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketAnnounced(_ context.Context, event events.Event) error {
	n.logger.Info("TicketAnnounced", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketAnswered(_ context.Context, event events.Event) error {
	n.logger.Info("TicketAnswered", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}
