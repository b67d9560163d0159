package handler

import (
	"net/http"

	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Nonce issues a login challenge for ?address=.
func (h *AuthHandler) Nonce(c *gin.Context) {
	addr, err := parseAddress(c.Query("address"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Challenge(addr))
}

type loginRequest struct {
	Address   string `json:"address" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		c.Error(err)
		return
	}
	session, err := h.svc.Login(addr, req.Nonce, req.Signature)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, session)
}
