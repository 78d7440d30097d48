package app

import "encoding/json"

// Tool describes one catalog entry: name, human description and the JSON
// schema of its arguments. The engine never executes tools itself; the
// catalog exists so the UI can list them and requests can name them.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"json_schema"`
}

// ToolCatalog is the read-only tool listing collaborator.
type ToolCatalog interface {
	ListTools() []Tool
}

type StaticCatalog struct {
	Tools []Tool
}

func (c *StaticCatalog) ListTools() []Tool {
	return append([]Tool(nil), c.Tools...)
}

func DefaultCatalog() *StaticCatalog {
	return &StaticCatalog{Tools: []Tool{
		{
			Name:        "web_search",
			Description: "Search the web and return the top result snippets",
			Schema: mustMarshal(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []string{"query"},
			}),
		},
		{
			Name:        "file_read",
			Description: "Read a plain-text file from the workspace directory",
			Schema: mustMarshal(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file, relative to the workspace",
					},
				},
				"required": []string{"path"},
			}),
		},
		{
			Name:        "file_write",
			Description: "Create or overwrite a plain-text file inside the workspace directory",
			Schema: mustMarshal(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file, relative to the workspace",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Full file content to write",
					},
				},
				"required": []string{"path", "content"},
			}),
		},
		{
			Name:        "shell_exec",
			Description: "Execute a shell command and return its output",
			Schema: mustMarshal(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The shell command to execute",
					},
				},
				"required": []string{"command"},
			}),
		},
	}}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
