package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandler_AddsGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "req-1", Method: "GET", Path: "/api/session"})
	ctx = WithPrincipalData(ctx, &PrincipalData{Kind: "service", ID: "svc-A", Strategy: "service-token"})
	log.InfoContext(ctx, "authn.check.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	req, _ := rec["req"].(map[string]any)
	if req["id"] != "req-1" || req["path"] != "/api/session" {
		t.Fatalf("missing req group: %v", rec)
	}
	p, _ := rec["principal"].(map[string]any)
	if p["id"] != "svc-A" || p["strategy"] != "service-token" {
		t.Fatalf("missing principal group: %v", rec)
	}
	if rec["component"] != "test" {
		t.Fatalf("WithAttrs must keep the context handler: %v", rec)
	}
}

func TestHandler_NoContextData(t *testing.T) {
	var buf bytes.Buffer
	slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).Info("plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if _, ok := rec["req"]; ok {
		t.Fatalf("unexpected req group: %v", rec)
	}
}
