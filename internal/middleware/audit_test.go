package middleware

import (
	"encoding/json"
	"testing"
)

func TestRedactAuditBodyLogin(t *testing.T) {
	body := []byte(`{"address":"0xabc","nonce":"n1","signature":"0xdead","session":{"token":"jwt"}}`)
	out := redactAuditBody("/v1/auth/login", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["signature"] == "0xdead" {
		t.Fatalf("signature not redacted")
	}
	if data["nonce"] == "n1" {
		t.Fatalf("nonce not redacted")
	}
	if data["address"] != "0xabc" {
		t.Fatalf("address should be kept")
	}
	if session, ok := data["session"].(map[string]interface{}); ok {
		if session["token"] == "jwt" {
			t.Fatalf("nested token not redacted")
		}
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	out := redactAuditBody("/v1/markets", body)
	if out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	body := []byte("not-json")
	out := redactAuditBody("/v1/auth/login", body)
	if out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json")
	}
}
