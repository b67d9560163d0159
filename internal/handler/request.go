package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/middleware"
	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%q: %w", raw, model.ErrInvalidAddress)
	}
	return common.HexToAddress(raw), nil
}

// pathAddress reads an address path parameter, recording an error on c when
// it is malformed.
func pathAddress(c *gin.Context, name string) (common.Address, bool) {
	addr, err := parseAddress(c.Param(name))
	if err != nil {
		c.Error(err)
		return common.Address{}, false
	}
	return addr, true
}

// caller is set by AuthMiddleware on every write route.
func caller(c *gin.Context) (common.Address, bool) {
	addr, ok := middleware.Caller(c)
	if !ok {
		c.Error(apperrors.NewAuthFailed("missing caller"))
	}
	return addr, ok
}

func parseAmount(raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", raw, model.ErrInvalidAmount)
	}
	return v, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}

// timeRange reads optional from/to query parameters.
func timeRange(c *gin.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

func queryInt(c *gin.Context, name string, def int) int {
	if raw := c.Query(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}
