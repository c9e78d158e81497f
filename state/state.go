// Package state implements state for debugging.
package state

import (
	"context"
	"sync"
	"time"

	"github.com/Darkness4/bili-auto-quality/poller"
)

// State represents the state of the program.
type State struct {
	Pages map[string]*PageState `json:"pages"`

	mu sync.RWMutex
}

// PageState represents the state of the automation on a page.
type PageState struct {
	PollerState poller.State      `json:"state"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Extra       map[string]any    `json:"extra,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Errors      []PageError       `json:"errors_log"`
}

// PageError represents an error observed on a page.
type PageError struct {
	Timestamp string `json:"timestamp"`
	Error     string `json:"error"`
}

// maxErrors bounds the error log of a page.
const maxErrors = 20

var (
	// DefaultState is the default state.
	DefaultState = State{
		Pages: make(map[string]*PageState),
	}
)

// GetPageState returns the poller state of a page.
func (s *State) GetPageState(name string) poller.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.Pages[name]; ok {
		return p.PollerState
	}
	return poller.StateIdle
}

type setPageStateOptions struct {
	labels map[string]string
	extra  map[string]any
}

// SetPageStateOptions represents options for SetPageState.
type SetPageStateOptions func(*setPageStateOptions)

// WithLabels sets labels for a page.
func WithLabels(labels map[string]string) SetPageStateOptions {
	return func(o *setPageStateOptions) {
		o.labels = labels
	}
}

// WithExtra sets extra data for a page.
func WithExtra(extra map[string]any) SetPageStateOptions {
	return func(o *setPageStateOptions) {
		o.extra = extra
	}
}

func (s *State) page(name string) *PageState {
	if _, ok := s.Pages[name]; !ok {
		s.Pages[name] = &PageState{
			Errors: make([]PageError, 0),
		}
	}
	return s.Pages[name]
}

// SetPageState sets the poller state of a page.
func (s *State) SetPageState(
	name string,
	state poller.State,
	opts ...SetPageStateOptions,
) {
	o := &setPageStateOptions{}
	for _, opt := range opts {
		opt(o)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.page(name)
	p.PollerState = state
	p.UpdatedAt = time.Now().UTC()
	if o.extra != nil {
		p.Extra = o.extra
	}
	if o.labels != nil {
		p.Labels = o.labels
	}
	setStateMetrics(context.Background(), name, state, p.Labels)
}

// SetPageError logs an error for a page.
func (s *State) SetPageError(name string, err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.page(name)
	p.Errors = append(p.Errors, PageError{
		Timestamp: time.Now().UTC().String(),
		Error:     err.Error(),
	})
	if len(p.Errors) > maxErrors {
		p.Errors = p.Errors[len(p.Errors)-maxErrors:]
	}
}

// ReadState returns a snapshot of the current state.
func (s *State) ReadState() map[string]PageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]PageState, len(s.Pages))
	for name, p := range s.Pages {
		cp := *p
		cp.Errors = append([]PageError(nil), p.Errors...)
		out[name] = cp
	}
	return out
}
