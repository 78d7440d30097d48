package app

import (
	"context"
	"fmt"
)

// GenerateRequest carries everything one turn sends to the backend.
// EnabledTools express the caller's intent; AllowedTools express granted
// permission. The backend invokes only tools present in both.
type GenerateRequest struct {
	Model        string
	Prompt       string
	RAGEnabled   bool
	TopK         int
	CtxTokens    int
	EnabledTools []string
	AllowedTools []string
	ThreadID     string
}

// Generator is the generation backend collaborator. Generate emits
// token/tool events on the shared bus while it runs and emits the turn-end
// event before returning on the normal path.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) error
	ListModels(ctx context.Context) ([]string, error)
}

// PermissionError is the structured "needs permission" failure naming the
// tool that lacks a grant. Recoverable: the user may grant and resend.
type PermissionError struct {
	Tool string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf(`{"code":"NeedPermission","tool":%q}`, e.Tool)
}
