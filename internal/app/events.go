package app

import (
	"sort"
	"sync"
)

type Topic string

const (
	TopicToken        Topic = "chat-token"
	TopicToolMessage  Topic = "tool-message"
	TopicToolStream   Topic = "tool-stream"
	TopicTurnEnd      Topic = "chat-end"
	TopicFileProgress Topic = "file-progress"
)

// ToolPayload is the body of a tool-message event: a whole-content refresh
// of one tool invocation's output.
type ToolPayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// FileProgress reports attachment pipeline status by file name.
type FileProgress struct {
	Name    string `json:"fileName"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Bus is a minimal in-process event bus. Subscribe returns an unsubscribe
// handle that is safe to call more than once. Handlers for one topic run
// in subscription order; Emit dispatches synchronously on the caller's
// goroutine without holding the bus lock.
type Bus struct {
	mu   sync.Mutex
	seq  int
	subs map[Topic]map[int]func(any)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic]map[int]func(any))}
}

func (b *Bus) Subscribe(topic Topic, fn func(payload any)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := b.seq
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(any))
	}
	b.subs[topic][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

func (b *Bus) Emit(topic Topic, payload any) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs[topic]))
	for id := range b.subs[topic] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(any), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[topic][id])
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(payload)
	}
}
