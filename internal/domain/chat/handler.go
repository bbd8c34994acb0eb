package chat

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
	convs := g.Group("/api/chat/conversations", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	convs.POST("", h.Create)
	convs.GET("/user/:userId", h.ListByUser)
	convs.GET("/doctor/:doctorId", h.ListByDoctor, auth.RequireRole(auth.RoleDoctor))
	convs.GET("/:id", h.Get)
	convs.PUT("/:id", h.Update)
	convs.DELETE("/:id", h.Delete)
	convs.POST("/:id/messages", h.AppendMessage)
	convs.POST("/:id/doctor-response", h.AppendDoctorResponse, auth.RequireRole(auth.RoleDoctor))
	convs.PUT("/:id/status", h.SetStatus, auth.RequireRole(auth.RoleDoctor))
}

func (h *Handler) Create(c echo.Context) error {
	var in CreateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	conv, err := h.svc.CreateConversation(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conv)
}

func respondList(c echo.Context, convs []*Conversation, err error) error {
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []*Conversation{}
	}
	return c.JSON(http.StatusOK, convs)
}

func (h *Handler) ListByUser(c echo.Context) error {
	convs, err := h.svc.ListByUser(c.Request().Context(), c.Param("userId"))
	return respondList(c, convs, err)
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	convs, err := h.svc.ListByDoctor(c.Request().Context(), c.Param("doctorId"))
	return respondList(c, convs, err)
}

func (h *Handler) Get(c echo.Context) error {
	conv, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) Update(c echo.Context) error {
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	conv, err := h.svc.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Conversation deleted"})
}

func (h *Handler) AppendMessage(c echo.Context) error {
	var in AppendInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("invalid request body")
	}
	conv, err := h.svc.AppendMessage(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

type doctorResponseRequest struct {
	DoctorID string `json:"doctorId"`
	Content  string `json:"content"`
}

func (h *Handler) AppendDoctorResponse(c echo.Context) error {
	var req doctorResponseRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	conv, err := h.svc.AppendDoctorResponse(c.Request().Context(), c.Param("id"), req.DoctorID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

type statusRequest struct {
	Status   string `json:"status"`
	DoctorID string `json:"doctorId"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	conv, err := h.svc.SetStatus(c.Request().Context(), c.Param("id"), req.DoctorID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}
