package llm

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
)

// Handler exposes the assistant directly at POST /chat.
type Handler struct {
	responder    *Responder
	showThinking func(role string) bool
}

// NewHandler builds the /chat handler. showThinking decides per caller role
// whether the model's reasoning is returned; nil hides it from everyone.
func NewHandler(responder *Responder, showThinking func(role string) bool) *Handler {
	return &Handler{responder: responder, showThinking: showThinking}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/chat", h.Chat)
}

type chatRequest struct {
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
}

func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	prompt := strings.TrimSpace(req.Message)
	if prompt == "" {
		prompt = strings.TrimSpace(req.Prompt)
	}
	if prompt == "" {
		return apperr.Validation("message is required")
	}

	ctx := c.Request().Context()
	reply := h.responder.Prompt(ctx, prompt)
	if h.showThinking == nil || !h.showThinking(auth.PrimaryRole(ctx)) {
		reply.Thinking = ""
	}
	return c.JSON(http.StatusOK, reply)
}
