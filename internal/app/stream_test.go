package app

import (
	"fmt"
	"testing"
	"time"
)

func newTestTurn(t *testing.T) (*Bus, *SessionManager, *TurnIngestor, string) {
	t.Helper()
	bus := NewBus()
	mgr := NewSessionManager(newMemStore(), NewPermissionGate())
	sess := mgr.NewSession("")
	assistantID := newMessageID()
	mgr.AppendMessages(sess.ID,
		Message{ID: newMessageID(), Role: RoleUser, Text: "question"},
		Message{ID: assistantID, Role: RoleAssistant},
	)
	turn := StartTurn(bus, mgr, sess.ID, assistantID, nil)
	t.Cleanup(turn.Close)
	return bus, mgr, turn, assistantID
}

func assistantText(t *testing.T, mgr *SessionManager, assistantID string) string {
	t.Helper()
	for _, msg := range mgr.VisibleMessages() {
		if msg.ID == assistantID {
			return msg.Text
		}
	}
	t.Fatalf("assistant message %s not found", assistantID)
	return ""
}

func TestTokenOrderPreservedThroughThrottle(t *testing.T) {
	bus, mgr, turn, assistantID := newTestTurn(t)

	want := ""
	for i := 0; i < 200; i++ {
		payload := fmt.Sprintf("p%d,", i)
		want += payload
		bus.Emit(TopicToken, payload)
	}
	bus.Emit(TopicTurnEnd, nil)

	<-turn.Done()
	if got := assistantText(t, mgr, assistantID); got != want {
		t.Fatalf("assistant text is not the exact concatenation of token payloads")
	}
}

func TestEndFlushesBufferedTokens(t *testing.T) {
	bus, mgr, turn, assistantID := newTestTurn(t)
	turn.flushInterval = time.Hour // throttle never fires on its own

	bus.Emit(TopicToken, "Hi")
	bus.Emit(TopicToken, " there")
	bus.Emit(TopicToken, "!")
	bus.Emit(TopicTurnEnd, nil)

	<-turn.Done()
	if got := assistantText(t, mgr, assistantID); got != "Hi there!" {
		t.Fatalf("text=%q want %q", got, "Hi there!")
	}
}

func TestToolStreamCreatesSingleToolMessage(t *testing.T) {
	bus, mgr, turn, assistantID := newTestTurn(t)

	bus.Emit(TopicToolStream, "chunk1 ")
	bus.Emit(TopicToolStream, "chunk2 ")
	bus.Emit(TopicToolStream, "chunk3")
	bus.Emit(TopicTurnEnd, nil)
	<-turn.Done()

	var tools []Message
	msgs := mgr.VisibleMessages()
	for _, msg := range msgs {
		if msg.Role == RoleTool {
			tools = append(tools, msg)
		}
	}
	if len(tools) != 1 {
		t.Fatalf("want exactly one tool message, got %d", len(tools))
	}
	if tools[0].Text != "chunk1 chunk2 chunk3" {
		t.Fatalf("tool text=%q want concatenation of chunks", tools[0].Text)
	}
	if tools[0].ToolName != defaultToolName {
		t.Fatalf("tool name=%q want default", tools[0].ToolName)
	}
	// The tool message precedes the assistant placeholder.
	if msgs[len(msgs)-1].ID != assistantID {
		t.Fatalf("assistant message must stay last")
	}
}

func TestToolMessageIsIdempotentRefresh(t *testing.T) {
	bus, mgr, turn, _ := newTestTurn(t)

	bus.Emit(TopicToolMessage, ToolPayload{Name: "web_search", Content: "partial"})
	bus.Emit(TopicToolMessage, ToolPayload{Name: "file_read", Content: "final contents"})
	bus.Emit(TopicTurnEnd, nil)
	<-turn.Done()

	var tools []Message
	for _, msg := range mgr.VisibleMessages() {
		if msg.Role == RoleTool {
			tools = append(tools, msg)
		}
	}
	if len(tools) != 1 {
		t.Fatalf("want one tool message, got %d", len(tools))
	}
	if tools[0].ToolName != "file_read" || tools[0].Text != "final contents" {
		t.Fatalf("refresh did not replace name/text: %+v", tools[0])
	}
}

func TestToolStreamAppendsToExistingToolMessage(t *testing.T) {
	bus, mgr, turn, _ := newTestTurn(t)

	bus.Emit(TopicToolMessage, ToolPayload{Name: "shell_exec", Content: "line1\n"})
	bus.Emit(TopicToolStream, "line2\n")
	bus.Emit(TopicTurnEnd, nil)
	<-turn.Done()

	for _, msg := range mgr.VisibleMessages() {
		if msg.Role == RoleTool {
			if msg.ToolName != "shell_exec" || msg.Text != "line1\nline2\n" {
				t.Fatalf("tool message=%+v", msg)
			}
			return
		}
	}
	t.Fatalf("tool message missing")
}

func TestMalformedEventsDropped(t *testing.T) {
	bus, mgr, turn, assistantID := newTestTurn(t)

	bus.Emit(TopicToken, 42)                       // not a string
	bus.Emit(TopicToolMessage, "not a ToolPayload") // wrong shape
	bus.Emit(TopicToken, "ok")
	bus.Emit(TopicTurnEnd, nil)
	<-turn.Done()

	if got := assistantText(t, mgr, assistantID); got != "ok" {
		t.Fatalf("text=%q want %q", got, "ok")
	}
}

func TestStateTransitions(t *testing.T) {
	bus, _, turn, _ := newTestTurn(t)

	if got := turn.State(); got != TurnAwaitingResponse {
		t.Fatalf("initial state=%v want AwaitingResponse", got)
	}
	bus.Emit(TopicToken, "x")
	if got := turn.State(); got != TurnStreaming {
		t.Fatalf("state=%v want Streaming after first event", got)
	}
	bus.Emit(TopicTurnEnd, nil)
	<-turn.Done()
	if got := turn.State(); got != TurnIdle {
		t.Fatalf("state=%v want Idle after end", got)
	}
}

func TestCloseWithoutEndDiscardsBufferedTokens(t *testing.T) {
	bus, mgr, turn, assistantID := newTestTurn(t)
	turn.flushInterval = time.Hour

	bus.Emit(TopicToken, "doomed")
	turn.Close()

	if got := assistantText(t, mgr, assistantID); got != "" {
		t.Fatalf("text=%q want empty after abnormal close", got)
	}
	// Events after teardown must not mutate the log.
	bus.Emit(TopicToken, "late")
	bus.Emit(TopicTurnEnd, nil)
	if got := assistantText(t, mgr, assistantID); got != "" {
		t.Fatalf("closed turn still mutating the log: %q", got)
	}
}

func TestEventsBeforeStartDoNotLeakAcrossTurns(t *testing.T) {
	bus, mgr, turn, assistantID := newTestTurn(t)

	bus.Emit(TopicToken, "first ")
	bus.Emit(TopicTurnEnd, nil)
	<-turn.Done()
	turn.Close()

	// A second turn gets its own subscriptions; the old ingestor is gone.
	secondAssistant := newMessageID()
	sessID := mgr.ActiveID()
	mgr.AppendMessages(sessID,
		Message{ID: newMessageID(), Role: RoleUser, Text: "again"},
		Message{ID: secondAssistant, Role: RoleAssistant},
	)
	second := StartTurn(bus, mgr, sessID, secondAssistant, nil)
	defer second.Close()

	bus.Emit(TopicToken, "second")
	bus.Emit(TopicTurnEnd, nil)
	<-second.Done()

	if got := assistantText(t, mgr, assistantID); got != "first " {
		t.Fatalf("first assistant text=%q want %q", got, "first ")
	}
	if got := assistantText(t, mgr, secondAssistant); got != "second" {
		t.Fatalf("second assistant text=%q want %q", got, "second")
	}
}
