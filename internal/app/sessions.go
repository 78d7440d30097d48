package app

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionManager owns the chat session collection, the active session
// pointer and the visible message log. The visible log mirrors the active
// session's log and the two views never diverge.
//
// Persistence is write-through for destructive operations: delete and
// rename hit the store before local state changes, so a store failure
// leaves memory and disk in agreement.
type SessionManager struct {
	mu       sync.Mutex
	store    Store
	gate     *PermissionGate
	sessions []*ChatSession
	activeID string
	visible  []Message
}

func NewSessionManager(store Store, gate *PermissionGate) *SessionManager {
	return &SessionManager{store: store, gate: gate}
}

// Load replaces the in-memory collection with the store's contents. The
// active pointer is left untouched.
func (m *SessionManager) Load() error {
	loaded, err := m.store.LoadSessions()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = m.sessions[:0]
	for i := range loaded {
		sess := loaded[i]
		m.sessions = append(m.sessions, &sess)
	}
	return nil
}

// NewSession creates a session with a fresh identity and thread id, makes
// it active and resets the visible log. The thread id is propagated to the
// permission gate so future grants scope correctly.
func (m *SessionManager) NewSession(projectID string) *ChatSession {
	now := time.Now()
	sess := &ChatSession{
		ID:        uuid.NewString(),
		ThreadID:  uuid.NewString(),
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.sessions = append(m.sessions, sess)
	m.activeID = sess.ID
	m.visible = nil
	m.mu.Unlock()

	m.gate.SetThreadID(sess.ThreadID)
	out := *sess
	return &out
}

// SelectSession makes id active and loads its log as the visible log.
// Unknown ids are a silent no-op.
func (m *SessionManager) SelectSession(id string) {
	m.mu.Lock()
	sess := m.findLocked(id)
	if sess == nil {
		m.mu.Unlock()
		return
	}
	m.activeID = sess.ID
	m.visible = append([]Message(nil), sess.Messages...)
	threadID := sess.ThreadID
	m.mu.Unlock()

	m.gate.SetThreadID(threadID)
}

// DeleteSession removes the session from durable storage first, then
// locally. Deleting an absent id is a no-op. If the deleted session was
// active, the active pointer and visible log are cleared.
func (m *SessionManager) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, sess := range m.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if err := m.store.DeleteSession(id); err != nil {
		return err
	}
	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)
	if m.activeID == id {
		m.activeID = ""
		m.visible = nil
	}
	return nil
}

// RenameSession persists the new title before committing it locally. An
// empty or unchanged title after trimming is a no-op with no store call.
func (m *SessionManager) RenameSession(id, newTitle string) error {
	newTitle = strings.TrimSpace(newTitle)

	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.findLocked(id)
	if sess == nil || newTitle == "" || newTitle == sess.Title {
		return nil
	}
	updated := *sess
	updated.Title = newTitle
	updated.UpdatedAt = time.Now()
	updated.Messages = append([]Message(nil), sess.Messages...)
	if err := m.store.SaveSession(&updated); err != nil {
		return err
	}
	sess.Title = newTitle
	sess.UpdatedAt = updated.UpdatedAt
	return nil
}

// EnsureTitle sets the title in memory only, and only when the session is
// still untitled. The next session save commits it durably.
func (m *SessionManager) EnsureTitle(id, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.findLocked(id)
	if sess == nil || sess.Title != "" {
		return
	}
	sess.Title = strings.TrimSpace(title)
}

// AppendMessages appends to the session's log and, when the session is
// active, to the visible log.
func (m *SessionManager) AppendMessages(sessionID string, msgs ...Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.findLocked(sessionID)
	if sess == nil {
		return
	}
	sess.Messages = append(sess.Messages, msgs...)
	sess.UpdatedAt = time.Now()
	if m.activeID == sessionID {
		m.visible = append(m.visible, msgs...)
	}
}

// InsertMessageBefore places msg immediately before the message identified
// by beforeID, in both views. Falls back to append when beforeID is gone.
func (m *SessionManager) InsertMessageBefore(sessionID, beforeID string, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.findLocked(sessionID)
	if sess == nil {
		return
	}
	sess.Messages = insertBefore(sess.Messages, beforeID, msg)
	sess.UpdatedAt = time.Now()
	if m.activeID == sessionID {
		m.visible = insertBefore(m.visible, beforeID, msg)
	}
}

// MutateMessage applies updater to exactly one message matched by id,
// across the session log and the visible log.
func (m *SessionManager) MutateMessage(sessionID, messageID string, updater func(*Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.findLocked(sessionID)
	if sess == nil {
		return
	}
	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			updater(&sess.Messages[i])
			if m.activeID == sessionID {
				for j := range m.visible {
					if m.visible[j].ID == messageID {
						m.visible[j] = sess.Messages[i]
						break
					}
				}
			}
			break
		}
	}
}

// UpdateAttachmentStatus applies the latest pipeline snapshot to the most
// recent attachment with the given name in the active session.
func (m *SessionManager) UpdateAttachmentStatus(name, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.findLocked(m.activeID)
	if sess == nil {
		return
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		atts := sess.Messages[i].Attachments
		for j := range atts {
			if atts[j].Name == name {
				atts[j].Status = status
				for k := range m.visible {
					if m.visible[k].ID == sess.Messages[i].ID {
						m.visible[k] = sess.Messages[i]
						break
					}
				}
				return
			}
		}
	}
}

// Active returns a copy of the active session, or nil when none is active.
func (m *SessionManager) Active() *ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := m.findLocked(m.activeID)
	if sess == nil {
		return nil
	}
	out := *sess
	out.Messages = append([]Message(nil), sess.Messages...)
	return &out
}

func (m *SessionManager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// VisibleMessages returns a copy of the visible log.
func (m *SessionManager) VisibleMessages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.visible...)
}

// Sessions returns shallow copies of every session, newest last, without
// message bodies. Intended for sidebar listings.
func (m *SessionManager) Sessions() []ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		item := *sess
		item.Messages = nil
		out = append(out, item)
	}
	return out
}

// SaveSession writes the session's current state through to the store.
func (m *SessionManager) SaveSession(id string) error {
	m.mu.Lock()
	sess := m.findLocked(id)
	if sess == nil {
		m.mu.Unlock()
		return nil
	}
	snapshot := *sess
	snapshot.Messages = append([]Message(nil), sess.Messages...)
	m.mu.Unlock()

	return m.store.SaveSession(&snapshot)
}

func (m *SessionManager) findLocked(id string) *ChatSession {
	if id == "" {
		return nil
	}
	for _, sess := range m.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func newMessageID() string { return uuid.NewString() }

func insertBefore(msgs []Message, beforeID string, msg Message) []Message {
	for i := range msgs {
		if msgs[i].ID == beforeID {
			out := make([]Message, 0, len(msgs)+1)
			out = append(out, msgs[:i]...)
			out = append(out, msg)
			out = append(out, msgs[i:]...)
			return out
		}
	}
	return append(msgs, msg)
}
