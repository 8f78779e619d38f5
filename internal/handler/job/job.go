package job

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/middleware"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	jobService "github.com/shaysadin/wedding-rsvp-sub004/internal/service/job"
	apperrors "github.com/shaysadin/wedding-rsvp-sub004/pkg/errors"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/httputil"
)

type Handler struct {
	svc jobService.Service
}

func NewHandler(svc jobService.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/events/:id/jobs", h.createJob)
	rg.GET("/jobs/:id", h.getJob)
	rg.POST("/jobs/:id/cancel", h.cancelJob)
}

type createJobRequest struct {
	Type        model.MessageType `json:"type" binding:"required,msgtype"`
	GuestIDs    []uuid.UUID       `json:"guest_ids"` // empty targets all guests of the event
	Channel     model.Channel     `json:"channel" binding:"channel"`
	Template    string            `json:"template"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
}

func (h *Handler) createJob(c *gin.Context) {
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

	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	job, err := h.svc.Create(c.Request.Context(), &jobService.CreateInput{
		TenantID:         tenantID,
		EventID:          eventID,
		Type:             req.Type,
		GuestIDs:         req.GuestIDs,
		ChannelOverride:  req.Channel,
		TemplateOverride: req.Template,
		ScheduledAt:      req.ScheduledAt,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, job)
}

func (h *Handler) getJob(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid job id", err))
		return
	}

	view, err := h.svc.Get(c.Request.Context(), tenantID, jobID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, view)
}

func (h *Handler) cancelJob(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid job id", err))
		return
	}

	job, err := h.svc.Cancel(c.Request.Context(), tenantID, jobID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, job)
}
