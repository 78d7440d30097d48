package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultStatusClearDelay = 4 * time.Second

// Engine is the conversational core: it owns the message log, gates tool
// use behind per-thread permissions, ingests the generation event stream
// and drives one turn from submit to completion. One instance per app;
// collaborators (backend, storage, tool catalog, attachment pipeline) are
// injected so tests can construct isolated engines.
//
// Collaborator failures never escape Submit; they become status updates
// and notifications.
type Engine struct {
	Config      Config
	Logger      *zap.Logger
	Bus         *Bus
	Gate        *PermissionGate
	Sessions    *SessionManager
	Generator   Generator
	Catalog     ToolCatalog
	Projects    *ProjectManager
	Attachments *AttachmentPipeline
	Notifier    Notifier

	statusClearDelay time.Duration

	mu           sync.Mutex
	status       GenerationStatus
	statusEpoch  int
	model        string
	enabledTools []string
	ragEnabled   bool
	inFlight     map[string]bool
}

// NewEngine wires an engine from config. With mockMode the backend is the
// scripted mock generator; otherwise the Ollama client. Storage prefers
// SQLite and falls back to the JSON file store when SQLite is unavailable.
func NewEngine(cfg Config, mockMode bool) (*Engine, error) {
	logger, err := NewLogger(cfg.LogFile, cfg.Debug)
	if err != nil {
		return nil, err
	}

	var store Store
	if cfg.Storage == StorageFile {
		store = NewFileStore(cfg.StorageRoot)
	} else {
		if st, err := NewSQLiteStore(cfg.StorageRoot); err == nil {
			store = st
		} else {
			logger.Warn("sqlite store unavailable, falling back to file store", zap.Error(err))
			store = NewFileStore(cfg.StorageRoot)
		}
	}

	bus := NewBus()
	gate := NewPermissionGate()
	catalog := DefaultCatalog()

	var generator Generator
	if mockMode {
		generator = NewMockGenerator(bus)
	} else {
		generator = NewOllamaClient(cfg.OllamaURL, bus, catalog)
	}

	engine := &Engine{
		Config:           cfg,
		Logger:           logger,
		Bus:              bus,
		Gate:             gate,
		Sessions:         NewSessionManager(store, gate),
		Generator:        generator,
		Catalog:          catalog,
		Projects:         NewProjectManager(store, NopNotifier{}, logger),
		Attachments:      NewAttachmentPipeline(bus),
		Notifier:         NopNotifier{},
		statusClearDelay: cfg.statusClearDelay(),
		status:           statusNone(),
		model:            cfg.Model,
		ragEnabled:       cfg.RAGEnabled,
		inFlight:         make(map[string]bool),
	}
	engine.watchAttachmentProgress()
	return engine, nil
}

// watchAttachmentProgress keeps attachment snapshots on messages in step
// with the pipeline's out-of-band file-progress events. The subscription
// lives for the engine's lifetime.
func (e *Engine) watchAttachmentProgress() {
	e.Bus.Subscribe(TopicFileProgress, func(payload any) {
		progress, ok := payload.(FileProgress)
		if !ok {
			return
		}
		e.Sessions.UpdateAttachmentStatus(progress.Name, progress.Status)
	})
}

// Submit runs one turn: user message in, streamed assistant (and optional
// tool) messages out, persistence on completion. It blocks until the turn
// reaches idle and never returns an error; failures surface as status and
// notifications. ctx cancels the backend request but does not signal the
// backend to stop generating beyond that.
func (e *Engine) Submit(ctx context.Context, text string, attachments []Attachment) {
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return
	}

	active := e.Sessions.Active()
	if active == nil {
		active = e.Sessions.NewSession("")
	}

	e.mu.Lock()
	if e.inFlight[active.ID] {
		e.mu.Unlock()
		e.Notifier.Notify("A response is already in progress")
		return
	}
	e.inFlight[active.ID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inFlight, active.ID)
		e.mu.Unlock()
	}()

	// Untitled sessions take their title from the first message; it is
	// committed durably by the end-of-turn save.
	e.Sessions.EnsureTitle(active.ID, deriveTitle(text))

	assistantID := newMessageID()
	now := time.Now()
	e.Sessions.AppendMessages(active.ID,
		Message{ID: newMessageID(), Role: RoleUser, Text: text, Attachments: attachments, CreatedAt: now},
		Message{ID: assistantID, Role: RoleAssistant, CreatedAt: now},
	)

	e.setStatus(GenerationStatus{Kind: StatusLoading, Message: "Generating response…"})

	turn := StartTurn(e.Bus, e.Sessions, active.ID, assistantID, func() {
		e.setStatus(GenerationStatus{Kind: StatusToolExecuting, Message: "Running tool…"})
	})
	defer turn.Close()

	req := GenerateRequest{
		Model:        e.Model(),
		Prompt:       text,
		RAGEnabled:   e.RAGEnabled(),
		TopK:         e.Config.RAGTopK,
		CtxTokens:    e.Config.RAGCtxTokens,
		EnabledTools: e.EnabledTools(),
		AllowedTools: e.Gate.AllowedTools(active.ThreadID),
		ThreadID:     active.ThreadID,
	}

	if err := e.Generator.Generate(ctx, req); err != nil {
		var permErr *PermissionError
		if errors.As(err, &permErr) {
			// Recoverable: route to the gate so the UI can prompt.
			e.Gate.RequestPermission(permErr.Tool)
			e.setStatus(statusNone())
			return
		}
		e.Logger.Warn("generation failed",
			zap.String("session", active.ID),
			zap.Error(err))
		e.Notifier.Notify("Generation failed: " + err.Error())
		e.setTransientStatus(GenerationStatus{Kind: StatusError, Message: err.Error()})
		return
	}

	select {
	case <-turn.Done():
	case <-ctx.Done():
		e.setStatus(statusNone())
		return
	}

	// Autosave failure is surfaced but never rolls back the in-memory
	// log; losing the conversation would be worse than diverging.
	if err := e.Sessions.SaveSession(active.ID); err != nil {
		e.Logger.Error("failed to save session",
			zap.String("session", active.ID),
			zap.Error(err))
		e.Notifier.Notify("Failed to save chat")
	}

	e.setStatus(statusNone())
}

func (e *Engine) Status() GenerationStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(status GenerationStatus) {
	e.mu.Lock()
	e.status = status
	e.statusEpoch++
	e.mu.Unlock()
}

// setTransientStatus sets an error-class status that clears itself after a
// short delay unless something else replaced it first.
func (e *Engine) setTransientStatus(status GenerationStatus) {
	e.mu.Lock()
	e.status = status
	e.statusEpoch++
	epoch := e.statusEpoch
	e.mu.Unlock()

	time.AfterFunc(e.statusClearDelay, func() {
		e.mu.Lock()
		if e.statusEpoch == epoch {
			e.status = statusNone()
			e.statusEpoch++
		}
		e.mu.Unlock()
	})
}

func (e *Engine) Model() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

func (e *Engine) SetModel(model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = model
}

func (e *Engine) RAGEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ragEnabled
}

func (e *Engine) SetRAGEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ragEnabled = enabled
}

// EnabledTools is the caller's intent list; distinct from the allow-list,
// which expresses granted permission.
func (e *Engine) EnabledTools() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.enabledTools...)
}

func (e *Engine) SetEnabledTools(tools []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabledTools = append([]string(nil), tools...)
}

func (e *Engine) ToggleTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, tool := range e.enabledTools {
		if tool == name {
			e.enabledTools = append(e.enabledTools[:i], e.enabledTools[i+1:]...)
			return
		}
	}
	e.enabledTools = append(e.enabledTools, name)
}

func deriveTitle(text string) string {
	title := strings.TrimSpace(text)
	if title == "" {
		return "New chat"
	}
	if line := strings.SplitN(title, "\n", 2)[0]; line != "" {
		title = line
	}
	runes := []rune(title)
	if len(runes) > 48 {
		title = string(runes[:48]) + "…"
	}
	return title
}
