package handler

import (
	"net/http"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	events *service.EventService
	audit  *service.AuditService
}

func NewAdminHandler(events *service.EventService, audit *service.AuditService) *AdminHandler {
	return &AdminHandler{events: events, audit: audit}
}

// Events lists the domain event log. Filters: entity, type, from, to, limit.
func (h *AdminHandler) Events(c *gin.Context) {
	from, to, err := timeRange(c)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	events, err := h.events.List(c.Request.Context(), model.EventFilter{
		Entity: c.Query("entity"),
		Type:   model.EventType(c.Query("type")),
		Limit:  queryInt(c, "limit", 100),
		From:   from,
		To:     to,
	})
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *AdminHandler) Audit(c *gin.Context) {
	from, to, err := timeRange(c)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	records, err := h.audit.List(c.Request.Context(), model.AuditFilter{
		Caller: c.Query("caller"),
		Limit:  queryInt(c, "limit", 100),
		From:   from,
		To:     to,
	})
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, err.Error(), err))
		return
	}
	c.JSON(http.StatusOK, records)
}
