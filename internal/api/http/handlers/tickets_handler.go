package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
)

// TicketsHandler exposes the operational ticket views: recent tickets and
// orphaned tickets whose group announcement never made it out.
type TicketsHandler struct {
	tickets repository.TicketRepository
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(tickets repository.TicketRepository) *TicketsHandler {
	return &TicketsHandler{tickets: tickets}
}

type ticketResponse struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	UserDisplayName *string    `json:"user_display_name,omitempty"`
	Category        string     `json:"category"`
	Question        string     `json:"question"`
	Status          string     `json:"status"`
	OperatorID      *int64     `json:"operator_id,omitempty"`
	GroupChatID     int64      `json:"group_chat_id"`
	GroupMessageID  *int       `json:"group_message_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// List handles GET /api/v1/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	tickets, err := h.tickets.ListRecent(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

// ListOrphaned handles GET /api/v1/tickets/orphaned.
func (h *TicketsHandler) ListOrphaned(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", 20)

	tickets, err := h.tickets.ListOrphaned(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponses(tickets)})
}

func ticketResponses(tickets []domain.Ticket) []ticketResponse {
	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ticketResponse{
			ID:              t.ID,
			UserID:          t.UserID,
			UserDisplayName: t.UserDisplayName,
			Category:        string(t.Category),
			Question:        t.Question,
			Status:          string(t.Status),
			OperatorID:      t.OperatorID,
			GroupChatID:     t.GroupChatID,
			GroupMessageID:  t.GroupMessageID,
			CreatedAt:       t.CreatedAt,
			UpdatedAt:       t.UpdatedAt,
		})
	}
	return out
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	val := c.Query(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
