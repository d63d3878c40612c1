package command

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// MockRunner is a test double for Runner. It is safe for concurrent use.
type MockRunner struct {
	mu sync.Mutex

	// Responses maps command patterns to responses.
	// The key is matched against the rendered command line.
	Responses map[string]MockResponse

	// Sequences maps command patterns to responses consumed one per call.
	// The last response repeats once the sequence is exhausted.
	Sequences map[string][]MockResponse

	// Calls records all invocations made to the runner.
	Calls []Invocation

	// DefaultResponse is used when no matching response is found.
	DefaultResponse *MockResponse
}

// MockResponse represents a mocked command response.
type MockResponse struct {
	Output string
	Err    error
}

// NewMockRunner creates a new MockRunner.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		Responses: make(map[string]MockResponse),
		Sequences: make(map[string][]MockResponse),
		Calls:     make([]Invocation, 0),
	}
}

// Run implements Runner.
func (m *MockRunner) Run(_ context.Context, inv Invocation) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, inv)
	line := inv.String()

	if pattern, ok := bestMatch(line, keys(m.Sequences)); ok {
		seq := m.Sequences[pattern]
		resp := seq[0]
		if len(seq) > 1 {
			m.Sequences[pattern] = seq[1:]
		}
		return resp.Output, resp.Err
	}

	if pattern, ok := bestMatch(line, keys(m.Responses)); ok {
		resp := m.Responses[pattern]
		return resp.Output, resp.Err
	}

	if m.DefaultResponse != nil {
		return m.DefaultResponse.Output, m.DefaultResponse.Err
	}

	return "", errors.New("no mock response configured for: " + line)
}

// bestMatch picks an exact match first, otherwise the longest pattern
// contained in the command line, so overlapping patterns resolve the same
// way on every run.
func bestMatch(line string, patterns []string) (string, bool) {
	best := ""
	found := false
	for _, p := range patterns {
		if p == line {
			return p, true
		}
		if strings.Contains(line, p) && len(p) > len(best) {
			best = p
			found = true
		}
	}
	return best, found
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// OnCommand sets a response for a specific command pattern.
func (m *MockRunner) OnCommand(pattern string) *MockResponseBuilder {
	return &MockResponseBuilder{
		runner:  m,
		pattern: pattern,
	}
}

// MockResponseBuilder helps build mock responses fluently.
type MockResponseBuilder struct {
	runner  *MockRunner
	pattern string
}

// Return sets the output for this command.
func (b *MockResponseBuilder) Return(output string) *MockRunner {
	b.runner.mu.Lock()
	defer b.runner.mu.Unlock()
	b.runner.Responses[b.pattern] = MockResponse{Output: output}
	return b.runner
}

// ReturnError sets an error for this command.
func (b *MockResponseBuilder) ReturnError(err error) *MockRunner {
	b.runner.mu.Lock()
	defer b.runner.mu.Unlock()
	b.runner.Responses[b.pattern] = MockResponse{Err: err}
	return b.runner
}

// ReturnSequence sets responses returned in order for this command.
func (b *MockResponseBuilder) ReturnSequence(responses ...MockResponse) *MockRunner {
	b.runner.mu.Lock()
	defer b.runner.mu.Unlock()
	if len(responses) > 0 {
		b.runner.Sequences[b.pattern] = responses
	}
	return b.runner
}

// CallCount returns the number of calls whose command line contains pattern.
func (m *MockRunner) CallCount(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, call := range m.Calls {
		if strings.Contains(call.String(), pattern) {
			count++
		}
	}
	return count
}

// Invocations returns a copy of the recorded calls.
func (m *MockRunner) Invocations() []Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Invocation, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// LastCall returns the last call made, or nil if no calls.
func (m *MockRunner) LastCall() *Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	last := m.Calls[len(m.Calls)-1]
	return &last
}

// Reset clears all recorded calls.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = m.Calls[:0]
}
