package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func ndjsonHandler(t *testing.T, responses [][]string) (*httptest.Server, *[]chatMessage) {
	t.Helper()
	call := 0
	var lastMessages []chatMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Messages []chatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		lastMessages = body.Messages

		idx := call
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		call++
		for _, line := range responses[idx] {
			fmt.Fprintln(w, line)
		}
	}))
	t.Cleanup(server.Close)
	return server, &lastMessages
}

func tokenLine(content string) string {
	return fmt.Sprintf(`{"message":{"content":%q},"done":false}`, content)
}

func TestOllamaStreamsTokensInOrder(t *testing.T) {
	server, _ := ndjsonHandler(t, [][]string{{
		tokenLine("Hi"),
		tokenLine(" there"),
		tokenLine("!"),
		`{"message":{"content":""},"done":true}`,
	}})

	bus := NewBus()
	var tokens []string
	ended := false
	bus.Subscribe(TopicToken, func(p any) { tokens = append(tokens, p.(string)) })
	bus.Subscribe(TopicTurnEnd, func(any) { ended = true })

	client := NewOllamaClient(server.URL, bus, DefaultCatalog())
	err := client.Generate(context.Background(), GenerateRequest{Model: "llama3.2", Prompt: "hello"})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if got := strings.Join(tokens, ""); got != "Hi there!" {
		t.Fatalf("tokens=%q want %q", got, "Hi there!")
	}
	if !ended {
		t.Fatalf("end event missing")
	}
}

func TestOllamaPermissionPreCheck(t *testing.T) {
	// The server must never be reached when the pre-check fails.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Errorf("backend contacted despite missing permission")
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, NewBus(), DefaultCatalog())
	err := client.Generate(context.Background(), GenerateRequest{
		Model:        "llama3.2",
		Prompt:       "write a file",
		EnabledTools: []string{"file_write"},
		AllowedTools: []string{"web_search"},
	})

	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("err=%v want PermissionError", err)
	}
	if permErr.Tool != "file_write" {
		t.Fatalf("tool=%q want file_write", permErr.Tool)
	}
}

func TestOllamaToolCallLoop(t *testing.T) {
	server, lastMessages := ndjsonHandler(t, [][]string{
		{
			`{"message":{"content":"","tool_calls":[{"function":{"name":"web_search","arguments":{"query":"go"}}}]},"done":true}`,
		},
		{
			tokenLine("Found it."),
			`{"message":{"content":""},"done":true}`,
		},
	})

	bus := NewBus()
	var toolEvents []ToolPayload
	bus.Subscribe(TopicToolMessage, func(p any) { toolEvents = append(toolEvents, p.(ToolPayload)) })

	client := NewOllamaClient(server.URL, bus, DefaultCatalog())
	client.Runner = runnerFunc(func(_ context.Context, name string, args json.RawMessage) (string, error) {
		if name != "web_search" {
			t.Errorf("runner got tool %q", name)
		}
		return "top results", nil
	})

	err := client.Generate(context.Background(), GenerateRequest{
		Model:        "llama3.2",
		Prompt:       "search go",
		EnabledTools: []string{"web_search"},
		AllowedTools: []string{"web_search"},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(toolEvents) != 1 || toolEvents[0].Content != "top results" {
		t.Fatalf("tool events=%+v", toolEvents)
	}

	// The follow-up request must carry the tool exchange.
	var sawToolResult bool
	for _, msg := range *lastMessages {
		if msg.Role == "tool" && msg.Name == "web_search" && msg.Content == "top results" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Fatalf("tool result not threaded into follow-up request: %+v", *lastMessages)
	}
}

func TestOllamaRunnerErrorBecomesToolMessage(t *testing.T) {
	server, _ := ndjsonHandler(t, [][]string{
		{
			`{"message":{"content":"","tool_calls":[{"function":{"name":"shell_exec","arguments":{"command":"ls"}}}]},"done":true}`,
		},
		{
			tokenLine("Could not run that."),
			`{"message":{"content":""},"done":true}`,
		},
	})

	bus := NewBus()
	var toolEvents []ToolPayload
	bus.Subscribe(TopicToolMessage, func(p any) { toolEvents = append(toolEvents, p.(ToolPayload)) })

	client := NewOllamaClient(server.URL, bus, DefaultCatalog())
	client.Runner = runnerFunc(func(context.Context, string, json.RawMessage) (string, error) {
		return "", errors.New("command not permitted")
	})

	err := client.Generate(context.Background(), GenerateRequest{
		Model:        "llama3.2",
		Prompt:       "list files",
		EnabledTools: []string{"shell_exec"},
		AllowedTools: []string{"shell_exec"},
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(toolEvents) != 1 || !strings.Contains(toolEvents[0].Content, "command not permitted") {
		t.Fatalf("tool events=%+v", toolEvents)
	}
}

func TestOllamaChunkErrorAborts(t *testing.T) {
	server, _ := ndjsonHandler(t, [][]string{{
		tokenLine("partial"),
		`{"error":"model not found"}`,
	}})

	client := NewOllamaClient(server.URL, NewBus(), DefaultCatalog())
	err := client.Generate(context.Background(), GenerateRequest{Model: "missing", Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err=%v want backend error", err)
	}
}

func TestOllamaMalformedLinesSkipped(t *testing.T) {
	server, _ := ndjsonHandler(t, [][]string{{
		"{this is not json",
		tokenLine("ok"),
		`{"message":{"content":""},"done":true}`,
	}})

	bus := NewBus()
	var tokens []string
	bus.Subscribe(TopicToken, func(p any) { tokens = append(tokens, p.(string)) })

	client := NewOllamaClient(server.URL, bus, DefaultCatalog())
	if err := client.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"}); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "ok" {
		t.Fatalf("tokens=%v", tokens)
	}
}

func TestOllamaHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "out of memory", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, NewBus(), DefaultCatalog())
	err := client.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("err=%v want status error", err)
	}
}

func TestOllamaListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"models":[{"name":"llama3.2"},{"name":"qwen2.5"}]}`)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, NewBus(), DefaultCatalog())
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.2" || models[1] != "qwen2.5" {
		t.Fatalf("models=%v", models)
	}
}

type runnerFunc func(ctx context.Context, name string, args json.RawMessage) (string, error)

func (f runnerFunc) Run(ctx context.Context, name string, args json.RawMessage) (string, error) {
	return f(ctx, name, args)
}
