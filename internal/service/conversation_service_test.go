package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/session"
)

const (
	testGroupChatID = int64(-100200300)
	testUserID      = int64(42)
	testOperatorID  = int64(77)
)

type fixture struct {
	users     *fakeUserRepo
	tickets   *fakeTicketRepo
	messenger *fakeMessenger
	sessions  *session.MemoryStore
	routing   *RoutingService
	conv      *ConversationService
}

func newFixture(isOperator func(int64) bool) *fixture {
	f := &fixture{
		users:     newFakeUserRepo(),
		tickets:   newFakeTicketRepo(),
		messenger: newFakeMessenger(),
		sessions:  session.NewMemoryStore(0),
	}
	logger := zap.NewNop()
	f.routing = NewRoutingService(testGroupChatID, RoutingDependencies{
		TicketRepo: f.tickets,
		Messenger:  f.messenger,
		Logger:     logger,
	})
	f.conv = NewConversationService(testGroupChatID, ConversationDependencies{
		Sessions:   f.sessions,
		UserRepo:   f.users,
		Routing:    f.routing,
		Messenger:  f.messenger,
		Logger:     logger,
		IsOperator: isOperator,
	})
	return f
}

// submitQuestion walks the full intake flow for testUserID.
func (f *fixture) submitQuestion(t *testing.T, skipName bool, name, category, question string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.conv.StartIntake(ctx, testUserID, testUserID))
	if skipName {
		require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackSkipName))
	} else {
		require.NoError(t, f.conv.HandlePrivateText(ctx, testUserID, testUserID, name))
	}
	require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackCategoryPrefix+category))
	require.NoError(t, f.conv.HandlePrivateText(ctx, testUserID, testUserID, question))
}

func sessionState(t *testing.T, f *fixture, userID int64) (session.Session, bool) {
	t.Helper()
	sess, ok, err := f.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	return sess, ok
}

func TestIntakeHappyPathWithSkippedName(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, true, "", "Кашрут", "Is milk ok?")

	ticket, err := f.tickets.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, domain.CategoryKashrut, ticket.Category)
	assert.Equal(t, "Is milk ok?", ticket.Question)
	assert.Equal(t, testUserID, ticket.UserID)
	assert.Nil(t, ticket.UserDisplayName)
	require.NotNil(t, ticket.GroupMessageID)

	announcement, ok := f.messenger.lastTo(testGroupChatID)
	require.True(t, ok)
	assert.Contains(t, announcement.text, "#1")
	assert.Contains(t, announcement.text, "Кашрут")
	assert.Contains(t, announcement.text, domain.AnonymousName)
	assert.Contains(t, announcement.text, "Is milk ok?")
	require.Len(t, announcement.kb, 1)
	assert.Equal(t, "answer:private:1", announcement.kb[0][0].Data)
	assert.Equal(t, "answer:group:1", announcement.kb[0][1].Data)

	confirmation, ok := f.messenger.lastTo(testUserID)
	require.True(t, ok)
	assert.Contains(t, confirmation.text, "1")

	_, active := sessionState(t, f, testUserID)
	assert.False(t, active, "session must be cleared after ticket creation")
}

func TestIntakeStoresNameSnapshot(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, false, "Лея", "Семья", "Вопрос про детей")

	ticket, err := f.tickets.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, ticket.UserDisplayName)
	assert.Equal(t, "Лея", *ticket.UserDisplayName)

	stored, ok := f.users.names[testUserID]
	require.True(t, ok)
	require.NotNil(t, stored)
	assert.Equal(t, "Лея", *stored)
}

func TestWhitespaceNameTreatedAsSkip(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, false, "   ", "Другое", "вопрос")

	ticket, err := f.tickets.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, ticket.UserDisplayName)
	assert.Equal(t, domain.AnonymousName, ticket.DisplayName())
}

func TestFreeTextInCategoryStateDoesNotAdvance(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	require.NoError(t, f.conv.StartIntake(ctx, testUserID, testUserID))
	require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackSkipName))

	for _, text := range []string{"Кашрут", "anything", "5"} {
		require.NoError(t, f.conv.HandlePrivateText(ctx, testUserID, testUserID, text))
		sess, ok := sessionState(t, f, testUserID)
		require.True(t, ok)
		assert.Equal(t, session.StateAwaitingCategory, sess.State)
	}
	assert.Empty(t, f.tickets.tickets, "no ticket may be created from category-state text")

	reprompt, ok := f.messenger.lastTo(testUserID)
	require.True(t, ok)
	assert.Equal(t, msgCategoryInvalid, reprompt.text)
	assert.NotEmpty(t, reprompt.kb)
}

func TestInvalidCategoryCallbackReprompts(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	require.NoError(t, f.conv.StartIntake(ctx, testUserID, testUserID))
	require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackSkipName))

	require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackCategoryPrefix+"Несуществующая"))

	sess, ok := sessionState(t, f, testUserID)
	require.True(t, ok)
	assert.Equal(t, session.StateAwaitingCategory, sess.State)
}

func TestEmptyQuestionReprompts(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	require.NoError(t, f.conv.StartIntake(ctx, testUserID, testUserID))
	require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackSkipName))
	require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackCategoryPrefix+"Учёба"))

	require.NoError(t, f.conv.HandlePrivateText(ctx, testUserID, testUserID, "   "))

	sess, ok := sessionState(t, f, testUserID)
	require.True(t, ok)
	assert.Equal(t, session.StateAwaitingQuestion, sess.State)
	assert.Empty(t, f.tickets.tickets)
}

func TestAnnounceFailureKeepsSessionForRetry(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	require.NoError(t, f.conv.StartIntake(ctx, testUserID, testUserID))
	require.NoError(t, f.conv.HandlePrivateText(ctx, testUserID, testUserID, "Лея"))
	require.NoError(t, f.conv.HandleCallback(ctx, testUserID, testUserID, CallbackCategoryPrefix+"Шаббат"))

	f.messenger.failChat(testGroupChatID, errors.New("telegram unavailable"))
	err := f.conv.HandlePrivateText(ctx, testUserID, testUserID, "Можно ли ехать?")
	require.ErrorIs(t, err, ErrAnnounceFailed)

	// The ticket row exists but carries no group message id.
	ticket, lookupErr := f.tickets.GetByID(ctx, 1)
	require.NoError(t, lookupErr)
	assert.Nil(t, ticket.GroupMessageID)

	// Collected name and category survive for the retry.
	sess, ok := sessionState(t, f, testUserID)
	require.True(t, ok)
	assert.Equal(t, session.StateAwaitingQuestion, sess.State)
	require.NotNil(t, sess.Name)
	assert.Equal(t, "Лея", *sess.Name)
	assert.Equal(t, domain.CategoryShabbat, sess.Category)

	retryPrompt, ok := f.messenger.lastTo(testUserID)
	require.True(t, ok)
	assert.Equal(t, msgAnnounceFailed, retryPrompt.text)

	// Retry succeeds once the transport recovers.
	delete(f.messenger.failChats, testGroupChatID)
	require.NoError(t, f.conv.HandlePrivateText(ctx, testUserID, testUserID, "Можно ли ехать?"))

	retried, err := f.tickets.GetByID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, retried.GroupMessageID)
	assert.Equal(t, domain.CategoryShabbat, retried.Category)

	_, active := sessionState(t, f, testUserID)
	assert.False(t, active)
}

func TestIdleChatterIsIgnored(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	require.NoError(t, f.conv.HandlePrivateText(ctx, testUserID, testUserID, "привет"))
	assert.Empty(t, f.messenger.sent)

	require.NoError(t, f.conv.HandleGroupMessage(ctx, testOperatorID, testGroupChatID, 500, 0, "просто болтовня"))
	assert.Empty(t, f.messenger.sent)
}

func TestStartClearsPreviousSession(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	require.NoError(t, f.sessions.Put(ctx, testUserID, session.Session{State: session.StateAwaitingQuestion, Category: domain.CategoryOther}))

	require.NoError(t, f.conv.StartIntake(ctx, testUserID, testUserID))

	sess, ok := sessionState(t, f, testUserID)
	require.True(t, ok)
	assert.Equal(t, session.StateAwaitingName, sess.State)
	assert.Empty(t, sess.Category)
}

func TestAnswerPrivateFlow(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, true, "", "Кашрут", "Первый вопрос")
	f.submitQuestion(t, true, "", "Семья", "Второй вопрос")
	f.messenger.sent = nil

	ctx := context.Background()
	require.NoError(t, f.conv.HandleCallback(ctx, testOperatorID, testGroupChatID, "answer:private:2"))

	prompt, ok := f.messenger.lastTo(testOperatorID)
	require.True(t, ok)
	assert.Contains(t, prompt.text, "#2")

	require.NoError(t, f.conv.HandlePrivateText(ctx, testOperatorID, testOperatorID, "See you at 5pm"))

	// The user receives the answer body.
	userMsgs := f.messenger.sentTo(testUserID)
	require.NotEmpty(t, userMsgs)
	assert.Contains(t, userMsgs[0].text, "See you at 5pm")
	assert.Contains(t, userMsgs[0].text, "#2")

	// The group receives only the confidentiality notice.
	groupMsgs := f.messenger.sentTo(testGroupChatID)
	require.NotEmpty(t, groupMsgs)
	for _, msg := range groupMsgs {
		assert.NotContains(t, msg.text, "See you at 5pm")
	}
	assert.Contains(t, groupMsgs[len(groupMsgs)-1].text, "#2")

	ticket, err := f.tickets.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAnswered, ticket.Status)
	require.NotNil(t, ticket.OperatorID)
	assert.Equal(t, testOperatorID, *ticket.OperatorID)

	_, active := sessionState(t, f, testOperatorID)
	assert.False(t, active)
}

func TestAnswerGroupFlow(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, true, "", "Учёба", "Где записаться?")
	ticketBefore, err := f.tickets.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, ticketBefore.GroupMessageID)
	announcementID := *ticketBefore.GroupMessageID
	f.messenger.sent = nil

	ctx := context.Background()
	require.NoError(t, f.conv.HandleCallback(ctx, testOperatorID, testGroupChatID, "answer:group:1"))
	require.NoError(t, f.conv.HandleGroupMessage(ctx, testOperatorID, testGroupChatID, 900, 0, "Запись по ссылке"))

	userMsg, ok := f.messenger.lastTo(testUserID)
	require.True(t, ok)
	assert.Contains(t, userMsg.text, "Запись по ссылке")

	// The answer is republished into the announcement thread.
	groupMsgs := f.messenger.sentTo(testGroupChatID)
	require.NotEmpty(t, groupMsgs)
	republish := groupMsgs[len(groupMsgs)-1]
	assert.Contains(t, republish.text, "Запись по ссылке")
	assert.Equal(t, announcementID, republish.replyTo)

	ticket, err := f.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAnswered, ticket.Status)

	_, active := sessionState(t, f, testOperatorID)
	assert.False(t, active)
}

func TestGroupAnswerSessionTakesPrecedenceOverReplyCorrelation(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, true, "", "Другое", "Вопрос")
	f.messenger.sent = nil

	ctx := context.Background()
	require.NoError(t, f.conv.HandleCallback(ctx, testOperatorID, testGroupChatID, "answer:group:1"))

	// A reply-shaped message while the group-answer session is active is
	// consumed by the flow, not the correlation path.
	require.NoError(t, f.conv.HandleGroupMessage(ctx, testOperatorID, testGroupChatID, 901, 1, "Ответ"))

	ticket, err := f.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAnswered, ticket.Status)

	_, active := sessionState(t, f, testOperatorID)
	assert.False(t, active)
}

func TestStaleTicketAbortsAnswerFlow(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	require.NoError(t, f.sessions.Put(ctx, testOperatorID, session.Session{State: session.StateAnswerPrivate, TicketID: 999}))

	require.NoError(t, f.conv.HandlePrivateText(ctx, testOperatorID, testOperatorID, "ответ в пустоту"))

	notice, ok := f.messenger.lastTo(testOperatorID)
	require.True(t, ok)
	assert.Equal(t, msgTicketGone, notice.text)

	_, active := sessionState(t, f, testOperatorID)
	assert.False(t, active, "stale-ticket abort must clear the session")
}

func TestEmptyAnswerAborts(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, true, "", "Кашрут", "Вопрос")
	ctx := context.Background()
	require.NoError(t, f.conv.HandleCallback(ctx, testOperatorID, testGroupChatID, "answer:private:1"))

	require.NoError(t, f.conv.HandlePrivateText(ctx, testOperatorID, testOperatorID, "   "))

	_, active := sessionState(t, f, testOperatorID)
	assert.False(t, active, "answer flows are single-shot")

	ticket, err := f.tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
}

func TestAnswerActionRequiresOperator(t *testing.T) {
	f := newFixture(func(id int64) bool { return id == testOperatorID })
	f.submitQuestion(t, true, "", "Кашрут", "Вопрос")
	f.messenger.sent = nil

	ctx := context.Background()
	intruderID := int64(99)
	require.NoError(t, f.conv.HandleCallback(ctx, intruderID, testGroupChatID, "answer:private:1"))

	_, active := sessionState(t, f, intruderID)
	assert.False(t, active)
	assert.Empty(t, f.messenger.sent)
}

func TestAnswerEntryReplacesPriorSession(t *testing.T) {
	f := newFixture(nil)
	f.submitQuestion(t, true, "", "Кашрут", "Вопрос раз")
	f.submitQuestion(t, true, "", "Семья", "Вопрос два")

	ctx := context.Background()
	require.NoError(t, f.conv.HandleCallback(ctx, testOperatorID, testGroupChatID, "answer:private:1"))
	require.NoError(t, f.conv.HandleCallback(ctx, testOperatorID, testGroupChatID, "answer:group:2"))

	sess, ok := sessionState(t, f, testOperatorID)
	require.True(t, ok)
	assert.Equal(t, session.StateAnswerGroup, sess.State)
	assert.Equal(t, int64(2), sess.TicketID)
}

func TestMalformedAnswerPayloadIgnored(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	for _, payload := range []string{"answer:private:", "answer:group:abc", fmt.Sprintf("answer:private:%s", "1x")} {
		require.NoError(t, f.conv.HandleCallback(ctx, testOperatorID, testGroupChatID, payload))
		_, active := sessionState(t, f, testOperatorID)
		assert.False(t, active, "payload %q must not open a session", payload)
	}
}
