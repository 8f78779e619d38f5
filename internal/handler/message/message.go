package message

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/middleware"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	messageService "github.com/shaysadin/wedding-rsvp-sub004/internal/service/message"
	apperrors "github.com/shaysadin/wedding-rsvp-sub004/pkg/errors"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/httputil"
)

type Handler struct {
	svc messageService.Service
}

func NewHandler(svc messageService.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/events/:id/messages", h.sendMessage)
	rg.POST("/events/:id/calls", h.placeCall)
	rg.PATCH("/attempts/:id", h.updateAttempt)
}

type sendRequest struct {
	GuestID  uuid.UUID         `json:"guest_id" binding:"required"`
	Type     model.MessageType `json:"type" binding:"required,msgtype"`
	Channel  model.Channel     `json:"channel" binding:"channel"`
	Template string            `json:"template"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid event id", err))
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}
	if req.Type.IsCall() {
		httputil.RespondWithError(c, apperrors.BadRequest("use the calls endpoint for voice", nil))
		return
	}

	attempt, err := h.svc.Send(c.Request.Context(), &messageService.SendInput{
		TenantID:         tenantID,
		EventID:          eventID,
		GuestID:          req.GuestID,
		Type:             req.Type,
		ChannelOverride:  req.Channel,
		TemplateOverride: req.Template,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, attempt)
}

type callRequest struct {
	GuestID uuid.UUID `json:"guest_id" binding:"required"`
	Script  string    `json:"script"`
}

func (h *Handler) placeCall(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid event id", err))
		return
	}

	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	attempt, err := h.svc.Send(c.Request.Context(), &messageService.SendInput{
		TenantID:         tenantID,
		EventID:          eventID,
		GuestID:          req.GuestID,
		Type:             model.MessageTypeCall,
		TemplateOverride: req.Script,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, attempt)
}

type updateAttemptRequest struct {
	Status model.AttemptStatus `json:"status" binding:"required"`
}

func (h *Handler) updateAttempt(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}
	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid attempt id", err))
		return
	}

	var req updateAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	attempt, err := h.svc.UpdateAttemptStatus(c.Request.Context(), tenantID, attemptID, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, attempt)
}
