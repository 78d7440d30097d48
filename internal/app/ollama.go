package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://127.0.0.1:11434"

// ToolRunner executes one tool invocation on behalf of the backend loop.
// Tool execution is a collaborator concern; the default runner refuses
// everything so no tool runs unless one is wired in explicitly.
type ToolRunner interface {
	Run(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Retriever assembles retrieval-augmented context for a prompt. Optional;
// the RAG flag is an opaque passthrough when no retriever is wired.
type Retriever interface {
	Query(ctx context.Context, prompt string, topK int) ([]string, error)
}

// OllamaClient streams chat completions from an Ollama-compatible NDJSON
// endpoint and relays them as bus events: chat-token per content fragment,
// tool-message per completed tool invocation, chat-end when the turn is
// done. When the model requests a tool call, the runner executes it and
// the conversation continues with the result, mirroring a standard
// tool-call loop.
type OllamaClient struct {
	BaseURL   string
	HTTP      *http.Client
	Bus       *Bus
	Catalog   ToolCatalog
	Runner    ToolRunner
	Retriever Retriever
}

func NewOllamaClient(baseURL string, bus *Bus, catalog ToolCatalog) *OllamaClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 300 * time.Second},
		Bus:     bus,
		Catalog: catalog,
		Runner:  refuseAllRunner{},
	}
}

type chatMessage struct {
	Role      string          `json:"role"`
	Content   string          `json:"content,omitempty"`
	Name      string          `json:"name,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

type chatChunk struct {
	Message struct {
		Content   string `json:"content"`
		ToolCalls []struct {
			Function struct {
				Name      string          `json:"name"`
				Arguments json.RawMessage `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) error {
	for _, tool := range req.EnabledTools {
		if !contains(req.AllowedTools, tool) {
			return &PermissionError{Tool: tool}
		}
	}

	system := c.systemPrompt(ctx, req)
	specs := c.toolSpecs(req.EnabledTools)

	messages := make([]chatMessage, 0, 4)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	for {
		call, err := c.streamOnce(ctx, req.Model, messages, specs)
		if err != nil {
			return err
		}
		if call == nil {
			break
		}

		result, err := c.Runner.Run(ctx, call.Name, call.Arguments)
		if err != nil {
			result = fmt.Sprintf("⚠️ %v", err)
		}
		c.Bus.Emit(TopicToolMessage, ToolPayload{Name: call.Name, Content: result})

		callJSON := mustMarshal([]map[string]any{{
			"function": map[string]any{"name": call.Name, "arguments": call.Arguments},
		}})
		messages = append(messages,
			chatMessage{Role: "assistant", ToolCalls: callJSON},
			chatMessage{Role: "tool", Name: call.Name, Content: result},
		)
	}

	c.Bus.Emit(TopicTurnEnd, nil)
	return nil
}

type toolCall struct {
	Name      string
	Arguments json.RawMessage
}

// streamOnce runs a single streaming completion. It returns the first tool
// call the model requested, or nil when the model finished with text only.
func (c *OllamaClient) streamOnce(ctx context.Context, model string, messages []chatMessage, specs []map[string]any) (*toolCall, error) {
	payload, err := json.Marshal(map[string]any{
		"model":    model,
		"stream":   true,
		"messages": messages,
		"tools":    specs,
	})
	if err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("backend error: status %d, response: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var call *toolCall
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue // malformed line, keep streaming
		}
		if chunk.Error != "" {
			return nil, fmt.Errorf("backend error: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			c.Bus.Emit(TopicToken, chunk.Message.Content)
		}
		if call == nil && len(chunk.Message.ToolCalls) > 0 {
			fn := chunk.Message.ToolCalls[0].Function
			call = &toolCall{Name: fn.Name, Arguments: fn.Arguments}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	return call, nil
}

func (c *OllamaClient) systemPrompt(ctx context.Context, req GenerateRequest) string {
	var b strings.Builder
	if c.Catalog != nil && len(req.EnabledTools) > 0 {
		b.WriteString("| tool | description |\n| --- | --- |\n")
		for _, tool := range c.Catalog.ListTools() {
			if contains(req.EnabledTools, tool.Name) {
				fmt.Fprintf(&b, "| %s | %s |\n", tool.Name, tool.Description)
			}
		}
	}
	b.WriteString("The workspace directory is a sandbox. Use file_write only for plain-text.\nNEVER overwrite binary files.\n")
	if req.RAGEnabled && c.Retriever != nil {
		topK := req.TopK
		if topK <= 0 {
			topK = 4
		}
		if chunks, err := c.Retriever.Query(ctx, req.Prompt, topK); err == nil && len(chunks) > 0 {
			fmt.Fprintf(&b, "Use the following context to answer the user:\n%s", strings.Join(chunks, "\n---\n"))
		}
	}
	return b.String()
}

func (c *OllamaClient) toolSpecs(enabled []string) []map[string]any {
	specs := make([]map[string]any, 0, len(enabled))
	if c.Catalog == nil {
		return specs
	}
	for _, tool := range c.Catalog.ListTools() {
		if !contains(enabled, tool.Name) {
			continue
		}
		specs = append(specs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Schema,
			},
		})
	}
	return specs
}

func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to list models: status %d", resp.StatusCode)
	}
	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

type refuseAllRunner struct{}

func (refuseAllRunner) Run(_ context.Context, name string, _ json.RawMessage) (string, error) {
	return "", fmt.Errorf("no runner configured for tool %q", name)
}
