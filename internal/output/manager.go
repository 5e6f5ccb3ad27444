package output

import (
	"errors"
	"fmt"
)

// Sink receives Findings and Events in run order and renders them on Close.
type Sink interface {
	Write(v any) error
	Close() error
}

// ErrClosed is returned by a Manager used after Close.
var ErrClosed = errors.New("output manager closed")

// Manager fans every value out to all of its sinks. A failing sink does not
// stop the others; their errors are joined.
type Manager struct {
	sinks  []Sink
	closed bool
}

func NewManager(sinks ...Sink) *Manager {
	m := &Manager{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Manager) AddSink(s Sink) error {
	if s == nil {
		return errors.New("sink must not be nil")
	}
	if m.closed {
		return ErrClosed
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Len reports the number of attached sinks.
func (m *Manager) Len() int { return len(m.sinks) }

func (m *Manager) Write(v any) error {
	if m.closed {
		return ErrClosed
	}
	return m.each("write", func(s Sink) error { return s.Write(v) })
}

// Close closes every sink once. Later calls are no-ops.
func (m *Manager) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.each("close", Sink.Close)
}

func (m *Manager) each(op string, fn func(Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("%s %T: %w", op, s, err))
		}
	}
	return errors.Join(errs...)
}
