// Package state implements the run-state machine of the render loop.
package state

import (
	"pipelined.dev/audiograph/mutable"
)

type (
	// Handle manages the lifecycle of the render loop.
	Handle struct {
		// Event channel used to handle new events for state machine.
		// Created in constructor, never closed.
		Eventc    chan Event
		mutations *mutable.Pusher
		startFn   StartFunc
		stopFn    StopFunc
		renderFn  RenderFunc
	}

	// StartFunc is the closure to start the output device.
	StartFunc func() error

	// StopFunc is the closure to stop the output device.
	StopFunc func() error

	// RenderFunc is the closure to render and output a single quantum.
	// Returned error suspends the loop.
	RenderFunc func() error
)

// State identifies one of the possible states render loop can be in.
type State interface {
	listen(*Handle) State
	transition(*Handle, Event) State
}

// idleState identifies that the loop is ONLY waiting for events and
// mutations.
type idleState interface {
	State
}

// activeState identifies that the loop is rendering and also is waiting
// for events and mutations.
type activeState interface {
	State
	render(*Handle) State
}

// states
type (
	suspended struct{}
	running   struct{}
)

// states variables
var (
	Suspended suspended // Suspended means that nothing is rendered.
	Running   running   // Running means that quanta are rendered.
)

// NewHandle returns new initalized handle that can be used to manage lifecycle.
func NewHandle(mutations *mutable.Pusher, start StartFunc, stop StopFunc, render RenderFunc) *Handle {
	return &Handle{
		Eventc:    make(chan Event, 1),
		mutations: mutations,
		startFn:   start,
		stopFn:    stop,
		renderFn:  render,
	}
}

// Loop listens until nil state is returned.
func Loop(h *Handle, s State) {
	for s != nil {
		s = s.listen(h)
	}
}

// idle is used to listen to handle's channels which are relevant for idle state.
func (h *Handle) idle(s idleState) State {
	for {
		select {
		case e := <-h.Eventc:
			if newState := s.transition(h, e); newState != s {
				return newState
			}
		case <-h.mutations.Notify():
			h.mutations.Take().Apply()
		}
	}
}

// active is used to listen to handle's channels which are relevant for
// active state. Events and mutations are checked between quanta.
func (h *Handle) active(s activeState) State {
	for {
		select {
		case e := <-h.Eventc:
			if newState := s.transition(h, e); newState != s {
				return newState
			}
		case <-h.mutations.Notify():
			h.mutations.Take().Apply()
		default:
		}
		if newState := s.render(h); newState != s {
			return newState
		}
	}
}

func (s suspended) listen(h *Handle) State {
	return h.idle(s)
}

func (s suspended) transition(h *Handle, e Event) State {
	switch ev := e.(type) {
	case Toggle:
		if err := h.startFn(); err != nil {
			ev.Feedback <- false
			return s
		}
		ev.Feedback <- true
		return Running
	case Close:
		ev.Feedback <- nil
		return nil
	}
	return s
}

func (s running) listen(h *Handle) State {
	return h.active(s)
}

func (s running) transition(h *Handle, e Event) State {
	switch ev := e.(type) {
	case Toggle:
		h.stopFn()
		ev.Feedback <- false
		return Suspended
	case Close:
		ev.Feedback <- h.stopFn()
		return nil
	}
	return s
}

func (s running) render(h *Handle) State {
	if err := h.renderFn(); err != nil {
		h.stopFn()
		return Suspended
	}
	return s
}
