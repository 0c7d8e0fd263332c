// Package kind describes node kinds: how live units are constructed, which
// fields they accept and how every field value reaches the unit.
package kind

import (
	"context"
	"errors"

	"pipelined.dev/audiograph/device"
	"pipelined.dev/audiograph/param"
	"pipelined.dev/audiograph/unit"
)

// Kind identifies node kind.
type Kind string

// Known kinds.
const (
	Oscillator Kind = "osc"
	Microphone Kind = "mic"
	FileInput  Kind = "fileIn"
	Amplifier  Kind = "amp"
	Biquad     Kind = "biquad"
	Convolver  Kind = "conv"
	Delay      Kind = "delay"
	WaveShaper Kind = "waveShaper"
	Analyser   Kind = "draw"
	FileOutput Kind = "fileOut"
	Output     Kind = "out"
)

// Role defines which ends of a node can be connected.
type Role int

// Roles.
const (
	Source Role = iota
	Effect
	Sink
)

func (r Role) String() string {
	switch r {
	case Source:
		return "source"
	case Effect:
		return "effect"
	case Sink:
		return "sink"
	}
	return "unknown"
}

// HasInput returns true if node of this role accepts connections.
func (r Role) HasInput() bool {
	return r != Source
}

// HasOutput returns true if node of this role can be connected to others.
func (r Role) HasOutput() bool {
	return r != Sink
}

var (
	// ErrUnknownKind is returned when kind is not registered.
	ErrUnknownKind = errors.New("unknown kind")
	// ErrDuplicateKind is returned when kind is registered twice.
	ErrDuplicateKind = errors.New("duplicate kind")
)

type (
	// Env provides construction environment of the engine.
	Env struct {
		SampleRate int
		BlockSize  int
		// Capturer is used by asynchronous kinds.
		Capturer device.Capturer
		// MaxDelayTime of delay units in seconds.
		MaxDelayTime float64
		// MaxRecording of recorder units in seconds.
		MaxRecording float64
	}

	// Field describes a single settable field of a kind.
	Field struct {
		Name      string
		Semantics param.Semantics
	}

	// Binding is a field bound to a constructed unit. Exactly one of
	// Param, Assign and Special is set, according to field semantics.
	Binding struct {
		Field
		// Param receives Parameter values.
		Param *param.Param
		// Assign converts a Property value and returns the assignment
		// that must run on the render goroutine.
		Assign func(v any) (func(), bool)
		// Immediate is true if assignment can run on the caller
		// goroutine.
		Immediate bool
		// Special converts a SpecialSetter value. It returns the
		// installation that must run on the render goroutine and
		// derived values owned by the node.
		Special func(v any) (func(), param.Bag, error)
	}

	// Instance is a constructed unit together with its bindings.
	Instance struct {
		Unit     unit.Unit
		Bindings []Binding
		// Start and Stop are set for scheduled kinds.
		Start func()
		Stop  func()
		// Release frees resources held by the unit.
		Release func() error
		// Analyser is set for analysing kinds.
		Analyser *unit.Analyser
		// Recorder is set for recording kinds.
		Recorder *unit.Recorder
	}

	// Descriptor defines a kind.
	Descriptor struct {
		Kind      Kind
		Role      Role
		Async     bool
		Scheduled bool

		defaults param.Bag
		fields   []Field
		build    func(Env) (*Instance, error)
		open     func(context.Context, Env) (*Instance, error)
	}
)

// Binding returns binding of the named field.
func (i *Instance) Binding(name string) (Binding, bool) {
	for _, b := range i.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// Defaults returns a fresh copy of default values.
func (d Descriptor) Defaults() param.Bag {
	return d.defaults.Clone()
}

// Fields returns fields in the order they are applied.
func (d Descriptor) Fields() []Field {
	fields := make([]Field, len(d.fields))
	copy(fields, d.fields)
	return fields
}

// New constructs unit of a synchronous kind.
func (d Descriptor) New(env Env) (*Instance, error) {
	if d.build == nil {
		return nil, errors.New("kind " + string(d.Kind) + " is asynchronous")
	}
	return d.build(env)
}

// Deferred returns asynchronous kind k which constructs units of d after
// wait returns. Units are never constructed if wait fails.
func Deferred(k Kind, d Descriptor, wait func(context.Context) error) Descriptor {
	inner := d
	d.Kind = k
	d.Async = true
	d.build = nil
	d.open = func(ctx context.Context, env Env) (*Instance, error) {
		if err := wait(ctx); err != nil {
			return nil, err
		}
		if inner.build != nil {
			return inner.build(env)
		}
		return inner.open(ctx, env)
	}
	return d
}

// Open acquires unit of an asynchronous kind. It blocks until the
// resource is acquired or failed.
func (d Descriptor) Open(ctx context.Context, env Env) (*Instance, error) {
	if d.open == nil {
		return nil, errors.New("kind " + string(d.Kind) + " is synchronous")
	}
	return d.open(ctx, env)
}
