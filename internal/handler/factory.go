package handler

import (
	"net/http"

	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/gin-gonic/gin"
)

type FactoryHandler struct {
	platform *service.Platform
}

func NewFactoryHandler(platform *service.Platform) *FactoryHandler {
	return &FactoryHandler{platform: platform}
}

func (h *FactoryHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.platform.FactoryInfo())
}

type policyRequest struct {
	Threshold *int64 `json:"creation_threshold" binding:"required"`
}

func (h *FactoryHandler) SetPolicy(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	prev, err := h.platform.SetCreationPolicy(c.Request.Context(), from, *req.Threshold)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"previous": prev, "creation_threshold": *req.Threshold})
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *FactoryHandler) AcceptToken(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	token, err := parseAddress(req.Token)
	if err != nil {
		c.Error(err)
		return
	}
	changed, err := h.platform.AcceptToken(c.Request.Context(), from, token)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "changed": changed})
}

func (h *FactoryHandler) RejectToken(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	token, ok := pathAddress(c, "address")
	if !ok {
		return
	}
	changed, err := h.platform.RejectToken(c.Request.Context(), from, token)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "changed": changed})
}
