package handler

import (
	"net/http"

	"github.com/GoPolymarket/polyfactory/internal/factory"
	"github.com/GoPolymarket/polyfactory/internal/middleware"
	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

type MarketHandler struct {
	platform *service.Platform
}

func NewMarketHandler(platform *service.Platform) *MarketHandler {
	return &MarketHandler{platform: platform}
}

type createMarketRequest struct {
	Question           string `json:"question" binding:"required"`
	CollateralToken    string `json:"collateral_token" binding:"required"`
	ResolutionDeadline string `json:"resolution_deadline" binding:"required"`
	Resolver           string `json:"resolver"`
}

func (h *MarketHandler) Create(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	var req createMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	token, err := parseAddress(req.CollateralToken)
	if err != nil {
		c.Error(err)
		return
	}
	deadline, err := parseTime(req.ResolutionDeadline)
	if err != nil {
		c.Error(apperrors.NewInvalidRequest("resolution_deadline: " + err.Error()))
		return
	}
	var resolver common.Address
	if req.Resolver != "" {
		if resolver, err = parseAddress(req.Resolver); err != nil {
			c.Error(err)
			return
		}
	}

	view, err := h.platform.CreateMarket(c.Request.Context(), from, factory.CreateParams{
		Question:           req.Question,
		CollateralToken:    token,
		ResolutionDeadline: deadline,
		Resolver:           resolver,
	})
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "market", view.ID.Hex())
	c.JSON(http.StatusCreated, view)
}

func (h *MarketHandler) List(c *gin.Context) {
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	markets, total := h.platform.ListMarkets(offset, limit)
	c.JSON(http.StatusOK, gin.H{
		"markets": markets,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

func (h *MarketHandler) Get(c *gin.Context) {
	id, ok := pathAddress(c, "id")
	if !ok {
		return
	}
	view, err := h.platform.GetMarket(id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *MarketHandler) Position(c *gin.Context) {
	id, ok := pathAddress(c, "id")
	if !ok {
		return
	}
	holder, ok := pathAddress(c, "holder")
	if !ok {
		return
	}
	pos, err := h.platform.Position(id, holder)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

type depositRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	// Amount is a decimal integer in collateral base units.
	Amount string `json:"amount" binding:"required"`
}

func (h *MarketHandler) Deposit(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathAddress(c, "id")
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	outcome, err := model.ParseOutcome(req.Outcome)
	if err != nil {
		c.Error(err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		c.Error(err)
		return
	}

	res, err := h.platform.Deposit(c.Request.Context(), from, id, outcome, amount)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "market", id.Hex())
	middleware.AddAuditContext(c, "outcome", string(outcome))
	c.JSON(http.StatusOK, res)
}

type proposeRequest struct {
	Outcome     string `json:"outcome" binding:"required"`
	EvidenceRef string `json:"evidence_ref"`
}

func (h *MarketHandler) Propose(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathAddress(c, "id")
	if !ok {
		return
	}
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	outcome, err := model.ParseOutcome(req.Outcome)
	if err != nil {
		c.Error(err)
		return
	}
	prop, err := h.platform.ProposeResolution(c.Request.Context(), from, id, outcome, req.EvidenceRef)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "market", id.Hex())
	c.JSON(http.StatusOK, prop)
}

func (h *MarketHandler) Finalize(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathAddress(c, "id")
	if !ok {
		return
	}
	view, err := h.platform.FinalizeResolution(c.Request.Context(), from, id)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "market", id.Hex())
	middleware.AddAuditContext(c, "state", string(view.State))
	c.JSON(http.StatusOK, view)
}

func (h *MarketHandler) Claim(c *gin.Context) {
	from, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathAddress(c, "id")
	if !ok {
		return
	}
	res, err := h.platform.Claim(c.Request.Context(), from, id)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "market", id.Hex())
	c.JSON(http.StatusOK, res)
}
