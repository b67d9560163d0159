package model

import (
	"strings"
	"time"
)

// AuditLog is one HTTP request as seen by the audit middleware.
type AuditLog struct {
	ID        string `json:"id"`
	Caller    string `json:"caller,omitempty"` // authenticated address, if any
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	RequestBody  string `json:"request_body"` // redacted
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// Context carries what handlers attach, e.g. the market touched.
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}

// AuditFilter narrows audit and event listings. Zero fields match everything.
type AuditFilter struct {
	Caller string
	Limit  int
	From   *time.Time
	To     *time.Time
}

func (f AuditFilter) Matches(a *AuditLog) bool {
	if a == nil {
		return false
	}
	if f.Caller != "" && !strings.EqualFold(f.Caller, a.Caller) {
		return false
	}
	if f.From != nil && a.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && a.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
