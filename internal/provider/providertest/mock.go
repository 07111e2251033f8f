// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/duet-cli/duet/internal/config"
	"github.com/duet-cli/duet/internal/provider"
)

// MockProvider is a configurable test double for provider.Provider.
// Set RunFunc to control behavior, or Results to script a sequence of
// outcomes (consumed one per call, last one repeating). All methods are
// safe for concurrent use.
type MockProvider struct {
	ID      provider.ID
	RunFunc func(ctx context.Context, prompt, sessionID string, cfg *config.Config) provider.Result

	// Results is a scripted sequence used when RunFunc is nil.
	Results []provider.Result

	mu       sync.Mutex
	RunCalls int

	// Prompts and SessionIDs record the arguments of each call.
	Prompts    []string
	SessionIDs []string
}

// Name implements provider.Provider.
func (m *MockProvider) Name() provider.ID { return m.ID }

// Run delegates to RunFunc or the scripted Results, recording arguments
// and call count.
func (m *MockProvider) Run(ctx context.Context, prompt, sessionID string, cfg *config.Config) provider.Result {
	m.mu.Lock()
	call := m.RunCalls
	m.RunCalls++
	m.Prompts = append(m.Prompts, prompt)
	m.SessionIDs = append(m.SessionIDs, sessionID)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, prompt, sessionID, cfg)
	}
	if len(m.Results) == 0 {
		panic("providertest: MockProvider has neither RunFunc nor Results")
	}
	if call >= len(m.Results) {
		call = len(m.Results) - 1
	}
	return m.Results[call]
}

// Success returns a successful Result with the given text and session.
func Success(text, sessionID string) provider.Result {
	return provider.Result{Success: true, Text: text, SessionID: sessionID}
}

// Failure returns a failed Result with the given class and message.
func Failure(class provider.ErrorClass, message string) provider.Result {
	return provider.Result{ErrorClass: class, ErrorMessage: message}
}
