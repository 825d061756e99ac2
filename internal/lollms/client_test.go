// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lollms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	return NewClient(cfg), srv
}

func TestGenerate_Success(t *testing.T) {
	var gotKey string
	var gotReq GenerationRequest

	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("X-API-Key")
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(GenerateResponse{
			Output: []OutputItem{{Type: "text", Data: "Here you go:\n```python\nprint(1)\n```\n"}},
		})
	}))
	defer srv.Close()

	req := &GenerationRequest{
		InputData: []InputDataItem{
			{Type: InputTypeText, Role: RoleUserPrompt, Data: "hello"},
		},
	}
	resp, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("X-API-Key = %q, want %q", gotKey, "test-key")
	}
	if gotReq.GenerationType != GenerationTypeTTT {
		t.Errorf("generation_type = %q, want ttt", gotReq.GenerationType)
	}
	if gotReq.Stream {
		t.Error("stream should be false")
	}

	text, ok := resp.FirstText()
	if !ok || text == "" {
		t.Fatal("expected a text output item")
	}
	payload, ok := resp.TextPayload()
	if !ok {
		t.Fatal("expected a text payload")
	}
	if payload != "print(1)" {
		t.Errorf("TextPayload = %q, want extracted code block", payload)
	}
}

func TestGenerate_EmptyOutputIsProtocolError(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": []any{}})
	}))
	defer srv.Close()

	_, err := client.Generate(context.Background(), &GenerationRequest{})
	if err == nil {
		t.Fatal("expected protocol error for empty output")
	}
}

func TestGenerate_ServerErrorDetail(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "binding not loaded"})
	}))
	defer srv.Close()

	_, err := client.Generate(context.Background(), &GenerationRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "binding not loaded" {
		t.Errorf("error = %q, want server detail", err.Error())
	}
}

func TestGenerate_PlainTextError(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	_, err := client.Generate(context.Background(), &GenerationRequest{})
	if err == nil || err.Error() != "upstream exploded" {
		t.Errorf("error = %v, want plain text body", err)
	}
}

func TestGenerate_Unauthorized(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := client.Generate(context.Background(), &GenerationRequest{})
	if err != ErrUnauthorized {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}

func TestContextLength(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get_default_ttt_context_length" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ContextLengthResponse{ContextLength: 4096})
	}))
	defer srv.Close()

	n, err := client.ContextLength(context.Background())
	if err != nil {
		t.Fatalf("ContextLength failed: %v", err)
	}
	if n != 4096 {
		t.Errorf("context length = %d, want 4096", n)
	}
}

func TestContextLength_NonPositive(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ContextLengthResponse{ContextLength: 0})
	}))
	defer srv.Close()

	if _, err := client.ContextLength(context.Background()); err == nil {
		t.Error("expected error for non-positive context length")
	}
}

func TestListBindingsAndModels(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list_active_bindings":
			json.NewEncoder(w).Encode([]string{"ollama", "openai"})
		case "/list_available_models/ollama":
			json.NewEncoder(w).Encode([]ModelInfo{{Name: "llama3"}, {Name: "qwen2.5"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	bindings, err := client.ListBindings(context.Background())
	if err != nil {
		t.Fatalf("ListBindings failed: %v", err)
	}
	if len(bindings) != 2 || bindings[0] != "ollama" {
		t.Errorf("bindings = %v", bindings)
	}

	models, err := client.ListModels(context.Background(), "ollama")
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 || models[1].Name != "qwen2.5" {
		t.Errorf("models = %v", models)
	}
}

func TestHealth(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Version: "1.2.3"})
	}))
	defer srv.Close()

	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !h.IsOK() || h.Version != "1.2.3" {
		t.Errorf("health = %+v", h)
	}
}

func TestUnreachableServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1" // nothing listens here
	client := NewClient(cfg)

	_, err := client.Health(context.Background())
	if !IsUnreachable(err) {
		t.Errorf("error = %v, want unreachable", err)
	}
}

func TestNotConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	client := NewClient(cfg)

	if _, err := client.Health(context.Background()); err != ErrNotConfigured {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestReconfigureBumpsGeneration(t *testing.T) {
	client := NewClient(DefaultConfig())
	gen := client.Generation()
	client.Reconfigure("http://other:9601", "new-key")
	if client.Generation() == gen {
		t.Error("Generation() should change after Reconfigure")
	}
}

func TestReconfigureConcurrentWithRequests(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
	}))
	defer srv.Close()
	url := srv.URL

	// Hammer reads and requests while a watcher-style goroutine
	// reconfigures; run with -race to catch unguarded access.
	const reconfigures = 50
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < reconfigures; i++ {
			client.Reconfigure(url, "key-rotated")
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				client.Generation()
				client.BaseURL()
				client.IsConfigured()
				if _, err := client.Health(context.Background()); err != nil {
					t.Errorf("Health during reconfigure: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()
	if got := client.Generation(); got != reconfigures {
		t.Errorf("Generation() = %d, want %d", got, reconfigures)
	}
}

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		found bool
	}{
		{"tagged fence", "text\n```go\nfunc main() {}\n```\nmore", "func main() {}", true},
		{"untagged fence", "```\nhello\n```", "hello", true},
		{"no fence", "just text", "", false},
		{"unterminated", "```python\nprint(1)\n", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractCodeBlock(tt.in)
			if found != tt.found || got != tt.want {
				t.Errorf("ExtractCodeBlock(%q) = (%q, %v), want (%q, %v)", tt.in, got, found, tt.want, tt.found)
			}
		})
	}
}
