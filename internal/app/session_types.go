package app

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	AttachmentProcessing = "processing"
	AttachmentReady      = "ready"
	AttachmentError      = "error"
)

// Attachment is the latest status snapshot of a file handed to the
// ingestion pipeline. The pipeline owns the lifecycle; the engine only
// stores what it was last told.
type Attachment struct {
	Name   string `json:"name"`
	Mime   string `json:"mime"`
	Status string `json:"status"`
}

type Message struct {
	ID          string       `json:"id"`
	Role        string       `json:"role"` // user|assistant|tool
	Text        string       `json:"text"`
	ToolName    string       `json:"tool_name,omitempty"` // role=tool only
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ChatSession is one conversation. ThreadID is the stable key used for
// permission scoping and backend correlation; it is distinct from the
// session's display identity and survives renames.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	ThreadID  string    `json:"thread_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProjectAttachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Mime       string    `json:"mime"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Project groups chats and reference files.
type Project struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Attachments []ProjectAttachment `json:"attachments"`
	ChatIDs     []string            `json:"chat_ids"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
