package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/config"
	apperrors "github.com/spec-kit/support-bot/pkg/util"
)

// AuthHandler issues admin tokens for the operational API.
type AuthHandler struct {
	cfg    config.AdminConfig
	tokens *auth.TokenManager
}

// NewAuthHandler returns a new handler instance.
func NewAuthHandler(cfg config.AdminConfig, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, tokens: tokens}
}

type loginRequest struct {
	Password string `json:"password"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Password == "" {
		return apperrors.NewValidationError("password required", nil)
	}

	if err := auth.ComparePassword(h.cfg.PasswordHash, req.Password); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	token, exp, err := h.tokens.GenerateToken()
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": authResponse{Token: token, ExpiresAt: exp},
	})
}
