package quota

import (
	"github.com/gin-gonic/gin"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/middleware"
	quotaService "github.com/shaysadin/wedding-rsvp-sub004/internal/quota"
	apperrors "github.com/shaysadin/wedding-rsvp-sub004/pkg/errors"
	"github.com/shaysadin/wedding-rsvp-sub004/pkg/httputil"
)

type Handler struct {
	ledger quotaService.Service
}

func NewHandler(ledger quotaService.Service) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tenants/quota", h.remaining)
}

func (h *Handler) remaining(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(nil))
		return
	}

	remaining, err := h.ledger.Remaining(c.Request.Context(), tenantID)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal(err))
		return
	}
	httputil.RespondWithSuccess(c, remaining)
}
