package dbexec

import (
	"context"
	"sync"
)

// Fake is an in-memory Executor for tests. Respond, when set, computes the
// result of each request; otherwise Results are returned in order and the
// last one repeats.
type Fake struct {
	Respond func(Request) (*Result, error)
	Results []*Result
	Err     error

	mu       sync.Mutex
	requests []Request
}

// Execute records req and returns the configured response.
func (f *Fake) Execute(_ context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	if f.Respond != nil {
		return f.Respond(req)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Results) == 0 {
		return &Result{}, nil
	}
	if n >= len(f.Results) {
		n = len(f.Results) - 1
	}
	return f.Results[n], nil
}

// Requests returns every request received so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
