package app

type StatusKind string

const (
	StatusNone          StatusKind = "none"
	StatusLoading       StatusKind = "loading"
	StatusToolExecuting StatusKind = "tool-executing"
	StatusError         StatusKind = "error"
	StatusSuccess       StatusKind = "success"
)

// GenerationStatus describes the current turn for display. It is transient
// UI state, never part of durable history, and always resettable to none.
type GenerationStatus struct {
	Kind    StatusKind
	Message string
}

func statusNone() GenerationStatus { return GenerationStatus{Kind: StatusNone} }

// Notifier is the toast-equivalent surface. Implementations must not block.
type Notifier interface {
	Notify(text string)
}

type NopNotifier struct{}

func (NopNotifier) Notify(string) {}
