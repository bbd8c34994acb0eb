package messaging

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	msgs := g.Group("/api/messages", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	msgs.POST("/send", h.Send)
	msgs.POST("/send-by-email", h.SendByEmail)
	msgs.GET("/patient/:patientId", h.ListForPatient)
	msgs.GET("/patient/byEmail/:patientEmail", h.ListForPatientByEmail)
	msgs.GET("/doctor/:doctorId", h.ListForDoctor)
	msgs.GET("/between/:senderId/:receiverId", h.ListBetween)
	msgs.PUT("/:messageId/read", h.MarkRead)
	msgs.DELETE("/:messageId", h.Delete)
}

func (h *Handler) Send(c echo.Context) error {
	var in SendInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	m, err := h.svc.Send(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) SendByEmail(c echo.Context) error {
	var in SendInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	m, err := h.svc.SendByEmail(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func respondList(c echo.Context, msgs []*DirectMessage, err error) error {
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*DirectMessage{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *Handler) ListForPatient(c echo.Context) error {
	msgs, err := h.svc.ListForPatient(c.Request().Context(), c.Param("patientId"))
	return respondList(c, msgs, err)
}

func (h *Handler) ListForPatientByEmail(c echo.Context) error {
	msgs, err := h.svc.ListForPatientByEmail(c.Request().Context(), c.Param("patientEmail"))
	return respondList(c, msgs, err)
}

func (h *Handler) ListForDoctor(c echo.Context) error {
	msgs, err := h.svc.ListForDoctor(c.Request().Context(), c.Param("doctorId"))
	return respondList(c, msgs, err)
}

func (h *Handler) ListBetween(c echo.Context) error {
	msgs, err := h.svc.ListBetween(c.Request().Context(), c.Param("senderId"), c.Param("receiverId"))
	return respondList(c, msgs, err)
}

func (h *Handler) MarkRead(c echo.Context) error {
	m, err := h.svc.MarkRead(c.Request().Context(), c.Param("messageId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("messageId")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Message deleted"})
}
