package service

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-bot/internal/domain"
)

type sentMessage struct {
	chatID  int64
	text    string
	kb      Keyboard
	replyTo int
}

// fakeMessenger records outbound messages and can simulate transport
// failures per chat id.
type fakeMessenger struct {
	sent      []sentMessage
	nextID    int
	failChats map[int64]error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failChats: make(map[int64]error)}
}

func (m *fakeMessenger) failChat(chatID int64, err error) {
	m.failChats[chatID] = err
}

func (m *fakeMessenger) send(msg sentMessage) (int, error) {
	if err := m.failChats[msg.chatID]; err != nil {
		return 0, err
	}
	m.nextID++
	m.sent = append(m.sent, msg)
	return m.nextID, nil
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string) (int, error) {
	return m.send(sentMessage{chatID: chatID, text: text})
}

func (m *fakeMessenger) SendKeyboard(_ context.Context, chatID int64, text string, kb Keyboard) (int, error) {
	return m.send(sentMessage{chatID: chatID, text: text, kb: kb})
}

func (m *fakeMessenger) SendReply(_ context.Context, chatID int64, replyTo int, text string) (int, error) {
	return m.send(sentMessage{chatID: chatID, text: text, replyTo: replyTo})
}

// sentTo returns all messages delivered to the given chat.
func (m *fakeMessenger) sentTo(chatID int64) []sentMessage {
	var out []sentMessage
	for _, msg := range m.sent {
		if msg.chatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *fakeMessenger) lastTo(chatID int64) (sentMessage, bool) {
	msgs := m.sentTo(chatID)
	if len(msgs) == 0 {
		return sentMessage{}, false
	}
	return msgs[len(msgs)-1], true
}

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	names map[int64]*string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{names: make(map[int64]*string)}
}

func (r *fakeUserRepo) Upsert(_ context.Context, id int64, name *string) error {
	if name == nil {
		if _, ok := r.names[id]; !ok {
			r.names[id] = nil
		}
		return nil
	}
	value := *name
	r.names[id] = &value
	return nil
}

type groupMessageKey struct {
	chatID    int64
	messageID int
}

// fakeTicketRepo is an in-memory TicketRepository with the same uniqueness
// and not-found semantics as the Postgres implementation.
type fakeTicketRepo struct {
	nextID    int64
	tickets   map[int64]*domain.Ticket
	byMessage map[groupMessageKey]int64
	createErr error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets:   make(map[int64]*domain.Ticket),
		byMessage: make(map[groupMessageKey]int64),
	}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	ticket.ID = r.nextID
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusNew
	}
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *fakeTicketRepo) SetGroupMessage(_ context.Context, ticketID int64, messageID int) error {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.GroupMessageID = &messageID
	r.byMessage[groupMessageKey{chatID: ticket.GroupChatID, messageID: messageID}] = ticketID
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket, nil
}

func (r *fakeTicketRepo) GetByGroupMessage(_ context.Context, groupChatID int64, messageID int) (*domain.Ticket, error) {
	id, ok := r.byMessage[groupMessageKey{chatID: groupChatID, messageID: messageID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.tickets[id], nil
}

func (r *fakeTicketRepo) MarkAnswered(_ context.Context, ticketID, operatorID int64) error {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.Status = domain.TicketStatusAnswered
	ticket.OperatorID = &operatorID
	return nil
}

func (r *fakeTicketRepo) ListOrphaned(_ context.Context, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.GroupMessageID == nil {
			out = append(out, *ticket)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTicketRepo) ListRecent(_ context.Context, limit, offset int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		out = append(out, *ticket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
