// ABOUTME: Mock Caller implementation for testing.
// ABOUTME: Records issued calls and lets tests complete or fail them explicitly.

package gateway

import (
	"sync"
)

// MockCall is one recorded call on a MockGateway.
type MockCall struct {
	Handle Handle
	Method string
	Params map[string]any

	done      func(payload []byte, err error)
	cancelled bool
}

// MockGateway is an in-memory Caller for tests. Calls are held until the test
// completes or fails them; cancelled calls never deliver.
type MockGateway struct {
	mu     sync.Mutex
	nextID Handle
	calls  []*MockCall
	byID   map[Handle]*MockCall
}

// NewMockGateway creates an empty MockGateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{byID: make(map[Handle]*MockCall)}
}

// Call records the call and returns its handle without completing it.
func (m *MockGateway) Call(method string, params map[string]any, done func(payload []byte, err error)) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	call := &MockCall{
		Handle: m.nextID,
		Method: method,
		Params: params,
		done:   done,
	}
	m.calls = append(m.calls, call)
	m.byID[call.Handle] = call
	return call.Handle
}

// Cancel voids the call; a later Complete or Fail for it is a no-op.
func (m *MockGateway) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call, ok := m.byID[h]; ok {
		call.cancelled = true
		delete(m.byID, h)
	}
}

// Calls returns every call issued so far, including cancelled ones.
func (m *MockGateway) Calls() []*MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsFor returns the issued calls matching method.
func (m *MockGateway) CallsFor(method string) []*MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MockCall
	for _, c := range m.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// LastCall returns the most recent non-cancelled call for method, or nil.
func (m *MockGateway) LastCall(method string) *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].Method == method && !m.calls[i].cancelled {
			return m.calls[i]
		}
	}
	return nil
}

// Cancelled reports whether the call with handle h was cancelled.
func (m *MockGateway) Cancelled(h Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c.Handle == h {
			return c.cancelled
		}
	}
	return false
}

// Complete delivers a success payload to the call, unless it was cancelled.
func (m *MockGateway) Complete(c *MockCall, payload string) {
	m.mu.Lock()
	_, live := m.byID[c.Handle]
	delete(m.byID, c.Handle)
	m.mu.Unlock()
	if live && !c.cancelled {
		c.done([]byte(payload), nil)
	}
}

// Fail delivers a wire error to the call, unless it was cancelled.
func (m *MockGateway) Fail(c *MockCall, code, message string) {
	m.mu.Lock()
	_, live := m.byID[c.Handle]
	delete(m.byID, c.Handle)
	m.mu.Unlock()
	if live && !c.cancelled {
		c.done(nil, &Error{Code: code, Message: message})
	}
}

var _ Caller = (*MockGateway)(nil)
