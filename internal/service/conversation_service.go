package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/session"
)

// Callback payloads carried by inline buttons. The answer payloads embed the
// target ticket id.
const (
	CallbackSkipName            = "name:skip"
	CallbackCategoryPrefix      = "cat:"
	CallbackAnswerPrivatePrefix = "answer:private:"
	CallbackAnswerGroupPrefix   = "answer:group:"
)

// ConversationService drives the per-user dialogue state machine: the
// three-step question intake flow and the single-shot operator answer flows.
// Dispatch is keyed by (current session state, event kind); events that do
// not match any entry fall through to a silent no-op.
type ConversationService struct {
	sessions  session.Store
	users     repository.UserRepository
	routing   *RoutingService
	messenger Messenger
	logger    *zap.Logger

	groupChatID int64
	isOperator  func(int64) bool
}

// ConversationDependencies bundles collaborators for the conversation service.
type ConversationDependencies struct {
	Sessions  session.Store
	UserRepo  repository.UserRepository
	Routing   *RoutingService
	Messenger Messenger
	Logger    *zap.Logger
	// IsOperator guards the answer actions; nil allows everyone.
	IsOperator func(int64) bool
}

// NewConversationService constructs the service.
func NewConversationService(groupChatID int64, deps ConversationDependencies) *ConversationService {
	isOperator := deps.IsOperator
	if isOperator == nil {
		isOperator = func(int64) bool { return true }
	}
	return &ConversationService{
		sessions:    deps.Sessions,
		users:       deps.UserRepo,
		routing:     deps.Routing,
		messenger:   deps.Messenger,
		logger:      deps.Logger,
		groupChatID: groupChatID,
		isOperator:  isOperator,
	}
}

// StartIntake resets the user's dialogue and enters the intake flow.
func (s *ConversationService) StartIntake(ctx context.Context, userID, chatID int64) error {
	if err := s.users.Upsert(ctx, userID, nil); err != nil {
		return fmt.Errorf("upsert user %d: %w", userID, err)
	}
	if err := s.sessions.Put(ctx, userID, session.Session{State: session.StateAwaitingName}); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	_, err := s.messenger.SendKeyboard(ctx, chatID, msgGreeting, skipNameKeyboard())
	return err
}

// HandleCallback processes an inline-button selection.
func (s *ConversationService) HandleCallback(ctx context.Context, userID, chatID int64, payload string) error {
	switch {
	case payload == CallbackSkipName:
		return s.handleNameSkip(ctx, userID, chatID)
	case strings.HasPrefix(payload, CallbackCategoryPrefix):
		return s.handleCategoryChoice(ctx, userID, chatID, strings.TrimPrefix(payload, CallbackCategoryPrefix))
	case strings.HasPrefix(payload, CallbackAnswerPrivatePrefix):
		return s.enterAnswerFlow(ctx, userID, payload, CallbackAnswerPrivatePrefix, session.StateAnswerPrivate)
	case strings.HasPrefix(payload, CallbackAnswerGroupPrefix):
		return s.enterAnswerFlow(ctx, userID, payload, CallbackAnswerGroupPrefix, session.StateAnswerGroup)
	default:
		s.logger.Debug("unknown callback payload", zap.String("payload", payload))
		return nil
	}
}

// HandlePrivateText processes a plain text message in the user's private chat.
func (s *ConversationService) HandlePrivateText(ctx context.Context, userID, chatID int64, text string) error {
	sess, ok, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok {
		// Idle chatter: no session, nothing to correlate.
		return nil
	}

	switch sess.State {
	case session.StateAwaitingName:
		return s.handleNameText(ctx, userID, chatID, text)
	case session.StateAwaitingCategory:
		// Free text is not a category choice; re-prompt, state unchanged.
		_, err := s.messenger.SendKeyboard(ctx, chatID, msgCategoryInvalid, categoriesKeyboard())
		return err
	case session.StateAwaitingQuestion:
		return s.handleQuestionText(ctx, userID, chatID, sess, text)
	case session.StateAnswerPrivate:
		// The private chat is the expected context for this flow.
		return s.handleAnswerText(ctx, userID, chatID, sess, text, AnswerModePrivate)
	default:
		// answer_group expects the group chat; a private message is not its
		// event and falls through.
		return nil
	}
}

// HandleGroupMessage processes a message posted in the operator group: either
// the body of a pending group-answer flow, a reply-based answer, or idle
// chatter.
func (s *ConversationService) HandleGroupMessage(ctx context.Context, operatorID, groupChatID int64, messageID, replyToMessageID int, text string) error {
	sess, ok, err := s.sessions.Get(ctx, operatorID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if ok && sess.State == session.StateAnswerGroup {
		return s.handleAnswerText(ctx, operatorID, groupChatID, sess, text, AnswerModeGroup)
	}

	if replyToMessageID != 0 {
		return s.routing.AnswerByReply(ctx, groupChatID, messageID, replyToMessageID, operatorID, text)
	}
	return nil
}

func (s *ConversationService) handleNameSkip(ctx context.Context, userID, chatID int64) error {
	sess, ok, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok || sess.State != session.StateAwaitingName {
		return nil
	}
	if err := s.sessions.Put(ctx, userID, session.Session{State: session.StateAwaitingCategory}); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	_, err = s.messenger.SendKeyboard(ctx, chatID, msgChooseCategory, categoriesKeyboard())
	return err
}

func (s *ConversationService) handleNameText(ctx context.Context, userID, chatID int64, text string) error {
	var name *string
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		name = &trimmed
		if err := s.users.Upsert(ctx, userID, name); err != nil {
			return fmt.Errorf("upsert user %d: %w", userID, err)
		}
	}
	if err := s.sessions.Put(ctx, userID, session.Session{State: session.StateAwaitingCategory, Name: name}); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	_, err := s.messenger.SendKeyboard(ctx, chatID, msgChooseCategory, categoriesKeyboard())
	return err
}

func (s *ConversationService) handleCategoryChoice(ctx context.Context, userID, chatID int64, raw string) error {
	sess, ok, err := s.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok || sess.State != session.StateAwaitingCategory {
		return nil
	}

	category, valid := domain.ParseCategory(raw)
	if !valid {
		_, err := s.messenger.SendKeyboard(ctx, chatID, msgCategoryInvalid, categoriesKeyboard())
		return err
	}

	sess.State = session.StateAwaitingQuestion
	sess.Category = category
	if err := s.sessions.Put(ctx, userID, sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	_, err = s.messenger.SendText(ctx, chatID, msgWriteQuestion)
	return err
}

func (s *ConversationService) handleQuestionText(ctx context.Context, userID, chatID int64, sess session.Session, text string) error {
	question := strings.TrimSpace(text)
	if question == "" {
		_, err := s.messenger.SendText(ctx, chatID, msgQuestionEmpty)
		return err
	}

	ticket, err := s.routing.CreateAndAnnounce(ctx, userID, sess.Name, sess.Category, question)
	if errors.Is(err, ErrAnnounceFailed) {
		// No ticket was durably published; keep the session so the collected
		// name and category survive a retry.
		_, sendErr := s.messenger.SendText(ctx, chatID, msgAnnounceFailed)
		if sendErr != nil {
			s.logger.Warn("retry prompt failed", zap.Int64("user_id", userID), zap.Error(sendErr))
		}
		return err
	}
	if err != nil {
		_, sendErr := s.messenger.SendText(ctx, chatID, msgGenericFailure)
		if sendErr != nil {
			s.logger.Warn("failure notice failed", zap.Int64("user_id", userID), zap.Error(sendErr))
		}
		return err
	}

	if err := s.sessions.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	_, err = s.messenger.SendText(ctx, chatID, confirmationText(ticket.ID))
	return err
}

func (s *ConversationService) enterAnswerFlow(ctx context.Context, operatorID int64, payload, prefix string, state session.State) error {
	if !s.isOperator(operatorID) {
		s.logger.Warn("answer action from non-operator", zap.Int64("user_id", operatorID))
		return nil
	}
	ticketID, err := strconv.ParseInt(strings.TrimPrefix(payload, prefix), 10, 64)
	if err != nil {
		s.logger.Debug("malformed answer payload", zap.String("payload", payload))
		return nil
	}

	// Entering a flow replaces whatever session the operator had.
	if err := s.sessions.Put(ctx, operatorID, session.Session{State: state, TicketID: ticketID}); err != nil {
		return fmt.Errorf("store session: %w", err)
	}

	if state == session.StateAnswerPrivate {
		// The prompt goes to the operator's private chat; it fails when the
		// operator never opened one with the bot.
		if _, err := s.messenger.SendText(ctx, operatorID, answerPrivatePrompt(ticketID)); err != nil {
			s.logger.Warn("private answer prompt failed", zap.Int64("operator_id", operatorID), zap.Error(err))
		}
		return nil
	}
	if _, err := s.messenger.SendText(ctx, s.groupChatID, answerGroupPrompt(ticketID)); err != nil {
		s.logger.Warn("group answer prompt failed", zap.Int64("operator_id", operatorID), zap.Error(err))
	}
	return nil
}

// handleAnswerText finishes an answer flow. These flows are single-shot:
// invalid input or a stale ticket id aborts with a cleared session instead of
// re-prompting.
func (s *ConversationService) handleAnswerText(ctx context.Context, operatorID, chatID int64, sess session.Session, text string, mode AnswerMode) error {
	body := strings.TrimSpace(text)
	if body == "" {
		if err := s.sessions.Clear(ctx, operatorID); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		_, err := s.messenger.SendText(ctx, chatID, msgQuestionEmpty)
		return err
	}

	err := s.routing.AnswerTicket(ctx, sess.TicketID, operatorID, body, mode)
	if errors.Is(err, ErrTicketNotFound) {
		if clearErr := s.sessions.Clear(ctx, operatorID); clearErr != nil {
			return fmt.Errorf("clear session: %w", clearErr)
		}
		_, sendErr := s.messenger.SendText(ctx, chatID, msgTicketGone)
		if sendErr != nil {
			s.logger.Warn("stale ticket notice failed", zap.Int64("operator_id", operatorID), zap.Error(sendErr))
		}
		return nil
	}
	if err != nil {
		if clearErr := s.sessions.Clear(ctx, operatorID); clearErr != nil {
			s.logger.Warn("session clear failed", zap.Int64("operator_id", operatorID), zap.Error(clearErr))
		}
		_, sendErr := s.messenger.SendText(ctx, chatID, msgDeliverFailed)
		if sendErr != nil {
			s.logger.Warn("delivery failure notice failed", zap.Int64("operator_id", operatorID), zap.Error(sendErr))
		}
		return err
	}

	if err := s.sessions.Clear(ctx, operatorID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if mode == AnswerModePrivate {
		_, err := s.messenger.SendText(ctx, chatID, msgReplySent)
		return err
	}
	return nil
}
