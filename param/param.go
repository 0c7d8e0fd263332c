// Package param defines parameter bags exchanged between the graph model
// and the engine, and control-rate parameters read by the render loop.
package param

import (
	"encoding/base64"
	"math"
	"sync/atomic"

	"github.com/spf13/cast"
)

type (
	// Bag is a string-keyed map of field values. Values are loosely typed
	// and coerced by the field that consumes them.
	Bag map[string]any

	// Semantics defines how a field value reaches a live unit.
	Semantics int

	// Param is a control-rate parameter. It is written by the control
	// goroutine and read by the render goroutine without locks.
	Param struct {
		bits     atomic.Uint64
		min, max float64
	}
)

const (
	// Parameter fields write the value into a Param.
	Parameter Semantics = iota
	// Property fields assign a plain attribute of the unit.
	Property
	// SpecialSetter fields run custom conversion logic, such as
	// decoding an opaque binary payload.
	SpecialSetter
)

func (s Semantics) String() string {
	switch s {
	case Parameter:
		return "parameter"
	case Property:
		return "property"
	case SpecialSetter:
		return "special"
	}
	return "unknown"
}

// Clone returns a shallow copy of the bag.
func (b Bag) Clone() Bag {
	if b == nil {
		return Bag{}
	}
	c := make(Bag, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// Merge returns a new bag with partial applied on top of b. Keys of
// partial win.
func (b Bag) Merge(partial Bag) Bag {
	m := b.Clone()
	for k, v := range partial {
		m[k] = v
	}
	return m
}

// New returns a parameter with initial value v limited to [min, max].
func New(v, min, max float64) *Param {
	p := Param{min: min, max: max}
	p.SetValue(v)
	return &p
}

// Value returns current value.
func (p *Param) Value() float64 {
	return math.Float64frombits(p.bits.Load())
}

// SetValue stores v clamped to the parameter range. NaN is ignored.
func (p *Param) SetValue(v float64) {
	if math.IsNaN(v) {
		return
	}
	if v < p.min {
		v = p.min
	} else if v > p.max {
		v = p.max
	}
	p.bits.Store(math.Float64bits(v))
}

// Range returns limits of the parameter.
func (p *Param) Range() (min, max float64) {
	return p.min, p.max
}

// Float coerces v into float64.
func Float(v any) (float64, bool) {
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// Int coerces v into int.
func Int(v any) (int, bool) {
	f, ok := Float(v)
	if !ok || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// Bool coerces v into bool.
func Bool(v any) (bool, bool) {
	b, err := cast.ToBoolE(v)
	return b, err == nil
}

// String coerces v into string.
func String(v any) (string, bool) {
	s, err := cast.ToStringE(v)
	return s, err == nil
}

// Floats coerces v into a slice of float64.
func Floats(v any) ([]float64, bool) {
	switch vv := v.(type) {
	case []float64:
		c := make([]float64, len(vv))
		copy(c, vv)
		return c, true
	case []float32:
		c := make([]float64, len(vv))
		for i := range vv {
			c[i] = float64(vv[i])
		}
		return c, true
	}
	s, err := cast.ToSliceE(v)
	if err != nil {
		return nil, false
	}
	c := make([]float64, len(s))
	for i := range s {
		f, ok := Float(s[i])
		if !ok {
			return nil, false
		}
		c[i] = f
	}
	return c, true
}

// Bytes coerces v into a binary payload. Strings are treated as standard
// base64 encoding, which is how JSON carries byte slices.
func Bytes(v any) ([]byte, bool) {
	switch vv := v.(type) {
	case []byte:
		return vv, true
	case string:
		b, err := base64.StdEncoding.DecodeString(vv)
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}
