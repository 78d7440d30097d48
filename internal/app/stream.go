package app

import (
	"strings"
	"sync"
	"time"
)

type TurnState int

const (
	TurnIdle TurnState = iota
	TurnAwaitingResponse
	TurnStreaming
	TurnFlushing
)

const defaultFlushInterval = 50 * time.Millisecond

// defaultToolName labels a tool message created by a tool-stream chunk
// that arrived before any tool-message refresh named the tool.
const defaultToolName = "tool"

// TurnIngestor translates one turn's event stream into message log
// mutations. Token payloads are buffered and flushed on a fixed cadence so
// bursts do not force a re-render per event; the final text always equals
// the exact concatenation of the payloads in arrival order.
//
// Close must be called exactly once per turn, on every exit path. After an
// abnormal exit any unflushed tokens are discarded, since the assistant
// output is already marked errored.
type TurnIngestor struct {
	sessions *SessionManager
	bus      *Bus

	sessionID   string
	assistantID string

	flushInterval time.Duration
	onToolEvent   func()

	mu        sync.Mutex
	state     TurnState
	buf       strings.Builder
	timer     *time.Timer
	toolMsgID string
	closed    bool
	done      chan struct{}
	unsubs    []func()
}

// StartTurn subscribes a new ingestor to the bus, scoped to the assistant
// placeholder created for this turn. onToolEvent, when non-nil, fires on
// every tool-message or tool-stream event (used for status display).
func StartTurn(bus *Bus, sessions *SessionManager, sessionID, assistantID string, onToolEvent func()) *TurnIngestor {
	t := &TurnIngestor{
		sessions:      sessions,
		bus:           bus,
		sessionID:     sessionID,
		assistantID:   assistantID,
		flushInterval: defaultFlushInterval,
		onToolEvent:   onToolEvent,
		state:         TurnAwaitingResponse,
		done:          make(chan struct{}),
	}
	t.unsubs = append(t.unsubs,
		bus.Subscribe(TopicToken, t.handleToken),
		bus.Subscribe(TopicToolMessage, t.handleToolMessage),
		bus.Subscribe(TopicToolStream, t.handleToolStream),
		bus.Subscribe(TopicTurnEnd, t.handleEnd),
	)
	return t
}

// Done is closed once the end event has been fully applied.
func (t *TurnIngestor) Done() <-chan struct{} { return t.done }

func (t *TurnIngestor) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Close tears down the subscriptions. Safe to call more than once. When
// the turn never reached its end event, buffered tokens are dropped.
func (t *TurnIngestor) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	unsubs := t.unsubs
	t.unsubs = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.state != TurnIdle {
		t.buf.Reset()
		t.state = TurnIdle
	}
	t.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (t *TurnIngestor) handleToken(payload any) {
	text, ok := payload.(string)
	if !ok {
		return // malformed event, turn continues
	}
	t.mu.Lock()
	if t.closed || t.state == TurnIdle || t.state == TurnFlushing {
		t.mu.Unlock()
		return
	}
	t.state = TurnStreaming
	t.buf.WriteString(text)
	if t.timer == nil {
		t.timer = time.AfterFunc(t.flushInterval, t.flush)
	}
	t.mu.Unlock()
}

// flush moves the buffered tokens into the assistant message. The lock is
// held across the log mutation so a timer flush and the final end flush
// cannot interleave out of order.
func (t *TurnIngestor) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = nil
	if t.closed || t.buf.Len() == 0 {
		return
	}
	chunk := t.buf.String()
	t.buf.Reset()

	t.sessions.MutateMessage(t.sessionID, t.assistantID, func(msg *Message) {
		msg.Text += chunk
	})
}

func (t *TurnIngestor) handleToolMessage(payload any) {
	body, ok := payload.(ToolPayload)
	if !ok {
		return
	}
	t.mu.Lock()
	if t.closed || t.state == TurnIdle {
		t.mu.Unlock()
		return
	}
	t.state = TurnStreaming
	existing := t.toolMsgID
	if existing == "" {
		t.toolMsgID = newMessageID()
	}
	id := t.toolMsgID
	t.mu.Unlock()

	if existing == "" {
		t.sessions.InsertMessageBefore(t.sessionID, t.assistantID, Message{
			ID:        id,
			Role:      RoleTool,
			ToolName:  body.Name,
			Text:      body.Content,
			CreatedAt: time.Now(),
		})
	} else {
		// Whole-content refresh: latest name and text win.
		t.sessions.MutateMessage(t.sessionID, id, func(msg *Message) {
			msg.ToolName = body.Name
			msg.Text = body.Content
		})
	}
	if t.onToolEvent != nil {
		t.onToolEvent()
	}
}

func (t *TurnIngestor) handleToolStream(payload any) {
	chunk, ok := payload.(string)
	if !ok {
		return
	}
	t.mu.Lock()
	if t.closed || t.state == TurnIdle {
		t.mu.Unlock()
		return
	}
	t.state = TurnStreaming
	existing := t.toolMsgID
	if existing == "" {
		t.toolMsgID = newMessageID()
	}
	id := t.toolMsgID
	t.mu.Unlock()

	if existing == "" {
		t.sessions.InsertMessageBefore(t.sessionID, t.assistantID, Message{
			ID:        id,
			Role:      RoleTool,
			ToolName:  defaultToolName,
			Text:      chunk,
			CreatedAt: time.Now(),
		})
	} else {
		t.sessions.MutateMessage(t.sessionID, id, func(msg *Message) {
			msg.Text += chunk
		})
	}
	if t.onToolEvent != nil {
		t.onToolEvent()
	}
}

func (t *TurnIngestor) handleEnd(any) {
	t.mu.Lock()
	if t.closed || t.state == TurnIdle {
		t.mu.Unlock()
		return
	}
	t.state = TurnFlushing
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	// Final flush: no token may be lost to throttling.
	t.flush()

	t.mu.Lock()
	t.state = TurnIdle
	t.mu.Unlock()
	close(t.done)
}
