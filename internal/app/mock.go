package app

import "context"

// MockTurn scripts the events one Generate call replays onto the bus, in
// order: tool-stream chunks, a tool-message refresh, token fragments, then
// the end event. A non-nil Err aborts the call instead, with no end event,
// like a transport failure would.
type MockTurn struct {
	ToolChunks []string
	Tool       *ToolPayload
	Tokens     []string
	Err        error
}

// MockGenerator simulates the generation backend for tests and offline
// runs. It honors the same permission pre-check as the real backend.
type MockGenerator struct {
	Bus    *Bus
	Turns  []MockTurn
	Models []string

	Calls    int
	Requests []GenerateRequest
}

func NewMockGenerator(bus *Bus) *MockGenerator {
	return &MockGenerator{Bus: bus, Models: []string{"mock-model"}}
}

func (g *MockGenerator) Generate(_ context.Context, req GenerateRequest) error {
	g.Calls++
	g.Requests = append(g.Requests, req)

	for _, tool := range req.EnabledTools {
		if !contains(req.AllowedTools, tool) {
			return &PermissionError{Tool: tool}
		}
	}

	turn := MockTurn{Tokens: []string{"Mock response."}}
	if len(g.Turns) > 0 {
		idx := g.Calls - 1
		if idx >= len(g.Turns) {
			idx = len(g.Turns) - 1
		}
		turn = g.Turns[idx]
	}
	if turn.Err != nil {
		return turn.Err
	}

	for _, chunk := range turn.ToolChunks {
		g.Bus.Emit(TopicToolStream, chunk)
	}
	if turn.Tool != nil {
		g.Bus.Emit(TopicToolMessage, *turn.Tool)
	}
	for _, token := range turn.Tokens {
		g.Bus.Emit(TopicToken, token)
	}
	g.Bus.Emit(TopicTurnEnd, nil)
	return nil
}

func (g *MockGenerator) ListModels(context.Context) ([]string, error) {
	return append([]string(nil), g.Models...), nil
}
