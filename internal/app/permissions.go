package app

import "sync"

// PermissionGate restricts which tools the backend may invoke, keyed by
// thread. Grants require an explicit user decision and are never shared
// across threads. A single pending slot holds the tool awaiting a
// decision; a second request overwrites it rather than queueing.
//
// Callers must SetThreadID before granting; a grant with no thread set
// lands in the empty-string bucket.
type PermissionGate struct {
	mu              sync.Mutex
	allowedByThread map[string][]string
	currentThreadID string
	pendingTool     string
}

func NewPermissionGate() *PermissionGate {
	return &PermissionGate{allowedByThread: make(map[string][]string)}
}

// RequestPermission marks toolName as awaiting a user decision. No effect
// if the current thread already holds a grant for it.
func (g *PermissionGate) RequestPermission(toolName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if contains(g.allowedByThread[g.currentThreadID], toolName) {
		return
	}
	g.pendingTool = toolName
}

// GrantPermission adds toolName to the current thread's allow-list and
// clears the pending slot. Idempotent.
func (g *PermissionGate) GrantPermission(toolName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.currentThreadID
	if !contains(g.allowedByThread[id], toolName) {
		g.allowedByThread[id] = append(g.allowedByThread[id], toolName)
	}
	g.pendingTool = ""
}

// DenyPermission clears the pending slot without touching any allow-list.
func (g *PermissionGate) DenyPermission() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pendingTool = ""
}

// SetThreadID switches the thread used to resolve grants. Allow-lists are
// neither cleared nor merged.
func (g *PermissionGate) SetThreadID(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentThreadID = id
}

func (g *PermissionGate) IsAllowed(threadID, toolName string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return contains(g.allowedByThread[threadID], toolName)
}

// AllowedTools returns a copy of the thread's allow-list for inclusion in
// an outgoing generation request.
func (g *PermissionGate) AllowedTools(threadID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.allowedByThread[threadID]...)
}

func (g *PermissionGate) PendingTool() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingTool
}

func (g *PermissionGate) ThreadID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentThreadID
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
