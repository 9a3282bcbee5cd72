package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/repository"
)

// AnswerMode selects how an action-based answer is mirrored into the group.
type AnswerMode string

const (
	// AnswerModePrivate delivers the answer to the user only; the group
	// receives a terse notice instead of the answer body.
	AnswerModePrivate AnswerMode = "private"
	// AnswerModeGroup additionally republishes the answer into the group as
	// a reply to the announcement, so the thread shows the resolution.
	AnswerModeGroup AnswerMode = "group"
)

// ErrAnnounceFailed marks a ticket whose group announcement could not be
// posted. The ticket row exists but carries no group message id; the intake
// session must stay open so the user can retry.
var ErrAnnounceFailed = errors.New("announcement send failed")

// ErrTicketNotFound marks a stale ticket id carried by an answer session.
var ErrTicketNotFound = errors.New("ticket not found")

// RoutingService maps inbound operator activity back to tickets and fans
// answers out to the user and the group.
type RoutingService struct {
	tickets    repository.TicketRepository
	messenger  Messenger
	dispatcher events.Dispatcher
	logger     *zap.Logger

	groupChatID int64
}

// RoutingDependencies bundles collaborators for the routing service.
type RoutingDependencies struct {
	TicketRepo repository.TicketRepository
	Messenger  Messenger
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewRoutingService constructs the service.
func NewRoutingService(groupChatID int64, deps RoutingDependencies) *RoutingService {
	return &RoutingService{
		tickets:     deps.TicketRepo,
		messenger:   deps.Messenger,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		groupChatID: groupChatID,
	}
}

// CreateAndAnnounce creates a ticket from completed intake data and posts the
// announcement to the operator group. The announcement is attempted before
// the message id is recorded: a send failure leaves the ticket row orphaned
// (no group_message_id) and is reported as ErrAnnounceFailed.
func (s *RoutingService) CreateAndAnnounce(ctx context.Context, userID int64, name *string, category domain.Category, question string) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		UserID:          userID,
		UserDisplayName: name,
		Category:        category,
		Question:        question,
		Status:          domain.TicketStatusNew,
		GroupChatID:     s.groupChatID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			UserID:      userID,
			Category:    category,
			DisplayName: ticket.DisplayName(),
		},
	})

	messageID, err := s.messenger.SendKeyboard(ctx, s.groupChatID, announcementText(ticket), announcementKeyboard(ticket.ID))
	if err != nil {
		s.logger.Error("announcement send failed; ticket left orphaned",
			zap.Int64("ticket_id", ticket.ID), zap.Error(err))
		return ticket, fmt.Errorf("%w: %v", ErrAnnounceFailed, err)
	}

	if err := s.tickets.SetGroupMessage(ctx, ticket.ID, messageID); err != nil {
		s.logger.Error("recording group message failed; replies will not correlate",
			zap.Int64("ticket_id", ticket.ID), zap.Int("message_id", messageID), zap.Error(err))
		return ticket, fmt.Errorf("set group message: %w", err)
	}
	ticket.GroupMessageID = &messageID

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAnnounced,
		TicketID: ticket.ID,
		Payload: events.TicketAnnouncedPayload{
			GroupChatID:    s.groupChatID,
			GroupMessageID: messageID,
		},
	})
	return ticket, nil
}

// AnswerByReply correlates a group reply with its ticket via the
// (group chat id, replied-to message id) index and delivers the reply text to
// the asking user. A correlation miss is reported to the replier and changes
// no ticket state.
func (s *RoutingService) AnswerByReply(ctx context.Context, groupChatID int64, operatorMessageID, replyToMessageID int, operatorID int64, text string) error {
	ticket, err := s.tickets.GetByGroupMessage(ctx, groupChatID, replyToMessageID)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.messenger.SendReply(ctx, groupChatID, operatorMessageID, msgReplyNoTicket); err != nil {
			s.logger.Warn("correlation-miss notice failed", zap.Error(err))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup ticket by group message: %w", err)
	}

	if _, err := s.messenger.SendText(ctx, ticket.UserID, answerText(ticket.ID, text)); err != nil {
		return fmt.Errorf("deliver answer for ticket %d: %w", ticket.ID, err)
	}
	if err := s.markAnswered(ctx, ticket.ID, operatorID, AnswerModeGroup); err != nil {
		return err
	}

	if _, err := s.messenger.SendReply(ctx, groupChatID, operatorMessageID, msgReplySent); err != nil {
		s.logger.Warn("reply confirmation failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	return nil
}

// AnswerTicket resolves a ticket by id (action-based path), delivers the
// answer to the user and mirrors the resolution into the group. The group
// republish is best-effort: a failure after markAnswered is logged, never
// rolled back.
func (s *RoutingService) AnswerTicket(ctx context.Context, ticketID, operatorID int64, text string, mode AnswerMode) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTicketNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup ticket %d: %w", ticketID, err)
	}

	if _, err := s.messenger.SendText(ctx, ticket.UserID, answerText(ticket.ID, text)); err != nil {
		return fmt.Errorf("deliver answer for ticket %d: %w", ticket.ID, err)
	}
	if err := s.markAnswered(ctx, ticket.ID, operatorID, mode); err != nil {
		return err
	}

	notice := answeredPrivatelyText(ticket.ID)
	if mode == AnswerModeGroup {
		notice = answerText(ticket.ID, text)
	}
	if err := s.publishGroupNotice(ctx, ticket, notice); err != nil {
		s.logger.Warn("group republish failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	return nil
}

// ListOrphaned returns tickets whose announcement never reached the group,
// newest first.
func (s *RoutingService) ListOrphaned(ctx context.Context, limit int) ([]domain.Ticket, error) {
	return s.tickets.ListOrphaned(ctx, limit)
}

// FindTicket resolves a ticket by id for flow-entry checks.
func (s *RoutingService) FindTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *RoutingService) markAnswered(ctx context.Context, ticketID, operatorID int64, mode AnswerMode) error {
	if err := s.tickets.MarkAnswered(ctx, ticketID, operatorID); err != nil {
		return fmt.Errorf("mark ticket %d answered: %w", ticketID, err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAnswered,
		TicketID: ticketID,
		Payload: events.TicketAnsweredPayload{
			OperatorID: operatorID,
			Mode:       string(mode),
		},
	})
	return nil
}

func (s *RoutingService) publishGroupNotice(ctx context.Context, ticket *domain.Ticket, text string) error {
	// Orphaned tickets have no announcement to thread under.
	if ticket.GroupMessageID == nil {
		_, err := s.messenger.SendText(ctx, s.groupChatID, text)
		return err
	}
	_, err := s.messenger.SendReply(ctx, s.groupChatID, *ticket.GroupMessageID, text)
	return err
}

func (s *RoutingService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
