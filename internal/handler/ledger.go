package handler

import (
	"net/http"

	"github.com/GoPolymarket/polyfactory/internal/middleware"
	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	platform *service.Platform
}

func NewLedgerHandler(platform *service.Platform) *LedgerHandler {
	return &LedgerHandler{platform: platform}
}

func (h *LedgerHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.platform.LedgerInfo())
}

func (h *LedgerHandler) Reputation(c *gin.Context) {
	addr, ok := pathAddress(c, "address")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.platform.Reputation(addr))
}

type writerRequest struct {
	Address string `json:"address" binding:"required"`
}

func (h *LedgerHandler) AddWriter(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req writerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	writer, err := parseAddress(req.Address)
	if err != nil {
		c.Error(err)
		return
	}
	changed, err := h.platform.WhitelistFactory(c.Request.Context(), from, writer)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "writer", writer.Hex())
	c.JSON(http.StatusOK, gin.H{"writer": writer, "changed": changed})
}

func (h *LedgerHandler) RemoveWriter(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	writer, ok := pathAddress(c, "address")
	if !ok {
		return
	}
	changed, err := h.platform.RevokeFactory(c.Request.Context(), from, writer)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "writer", writer.Hex())
	c.JSON(http.StatusOK, gin.H{"writer": writer, "changed": changed})
}
