// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/dopaminewatch/realtime/internal/config"
	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/messaging"
	"github.com/dopaminewatch/realtime/internal/watchparty"
	ws "github.com/dopaminewatch/realtime/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

type apiFixture struct {
	server   *httptest.Server
	handler  *Handler
	manager  *ws.Manager
	engine   *watchparty.Engine
	messages *messaging.Service
}

func newAPIFixture(t *testing.T, security config.SecurityConfig, mw *ChiMiddlewareConfig) *apiFixture {
	t.Helper()
	manager := ws.NewManager(ws.DefaultManagerConfig())
	engine := watchparty.NewEngine(manager, nil, watchparty.DefaultConfig())
	messages := messaging.NewService(manager, messaging.DefaultConfig())
	handler := NewHandler(manager, engine, messages, security)

	if mw == nil {
		mw = DefaultChiMiddlewareConfig()
		mw.RateLimitDisabled = true
	}
	server := httptest.NewServer(NewRouter(handler, mw).Setup())
	t.Cleanup(func() {
		manager.Close()
		server.Close()
	})
	return &apiFixture{server: server, handler: handler, manager: manager, engine: engine, messages: messages}
}

// do sends a request as userID (header identity) and decodes the envelope.
func (f *apiFixture) do(t *testing.T, method, path, userID string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.send(t, req)
}

func (f *apiFixture) send(t *testing.T, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	var envelope map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode %s %s response: %v", req.Method, req.URL.Path, err)
	}
	return resp.StatusCode, envelope
}

func data(t *testing.T, envelope map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := envelope["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("envelope data is %T, want object: %v", envelope["data"], envelope)
	}
	return d
}

func errorCode(envelope map[string]interface{}) string {
	e, _ := envelope["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}
