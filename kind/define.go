package kind

import (
	"context"

	"pipelined.dev/audiograph/param"
	"pipelined.dev/audiograph/unit"
)

// field is a field definition for units of type U. It is bound to a
// concrete unit at construction, so values never need type inspection.
type field[U unit.Unit] struct {
	Field
	param   func(U) *param.Param
	assign  func(U, any) (func(), bool)
	special func(U, Env, any) (func(), param.Bag, error)
	// immediate assignments are synchronized by the unit itself.
	immediate bool
}

func parameter[U unit.Unit](name string, p func(U) *param.Param) field[U] {
	return field[U]{
		Field: Field{Name: name, Semantics: param.Parameter},
		param: p,
	}
}

func property[U unit.Unit](name string, assign func(U, any) (func(), bool)) field[U] {
	return field[U]{
		Field:  Field{Name: name, Semantics: param.Property},
		assign: assign,
	}
}

func special[U unit.Unit](name string, fn func(U, Env, any) (func(), param.Bag, error)) field[U] {
	return field[U]{
		Field:   Field{Name: name, Semantics: param.SpecialSetter},
		special: fn,
	}
}

// immediate marks property which unit synchronizes itself, so it's
// assigned on the caller goroutine.
func immediate[U unit.Unit](f field[U]) field[U] {
	f.immediate = true
	return f
}

func boolProperty[U unit.Unit](name string, set func(U, bool)) field[U] {
	return property(name, func(u U, v any) (func(), bool) {
		b, ok := param.Bool(v)
		if !ok {
			return nil, false
		}
		return func() { set(u, b) }, true
	})
}

func floatProperty[U unit.Unit](name string, set func(U, float64)) field[U] {
	return property(name, func(u U, v any) (func(), bool) {
		f, ok := param.Float(v)
		if !ok {
			return nil, false
		}
		return func() { set(u, f) }, true
	})
}

func (f field[U]) bind(u U, env Env) Binding {
	b := Binding{Field: f.Field, Immediate: f.immediate}
	switch f.Semantics {
	case param.Parameter:
		b.Param = f.param(u)
	case param.Property:
		b.Assign = func(v any) (func(), bool) {
			return f.assign(u, v)
		}
	case param.SpecialSetter:
		b.Special = func(v any) (func(), param.Bag, error) {
			return f.special(u, env, v)
		}
	}
	return b
}

// definition of a kind with units of type U.
type definition[U unit.Unit] struct {
	kind     Kind
	role     Role
	defaults param.Bag
	fields   []field[U]
	// exactly one of build and open is set
	build func(Env) (U, error)
	open  func(context.Context, Env) (U, error)

	start    func(U) bool
	stop     func(U) bool
	release  func(U) error
	analyser func(U) *unit.Analyser
	recorder func(U) *unit.Recorder
}

func (d definition[U]) instance(u U, env Env) *Instance {
	i := Instance{
		Unit:     u,
		Bindings: make([]Binding, 0, len(d.fields)),
	}
	for _, f := range d.fields {
		i.Bindings = append(i.Bindings, f.bind(u, env))
	}
	if d.start != nil {
		i.Start = func() { d.start(u) }
	}
	if d.stop != nil {
		i.Stop = func() { d.stop(u) }
	}
	if d.release != nil {
		i.Release = func() error { return d.release(u) }
	}
	if d.analyser != nil {
		i.Analyser = d.analyser(u)
	}
	if d.recorder != nil {
		i.Recorder = d.recorder(u)
	}
	return &i
}

func (d definition[U]) descriptor() Descriptor {
	desc := Descriptor{
		Kind:      d.kind,
		Role:      d.role,
		Async:     d.open != nil,
		Scheduled: d.start != nil,
		defaults:  d.defaults,
		fields:    make([]Field, 0, len(d.fields)),
	}
	for _, f := range d.fields {
		desc.fields = append(desc.fields, f.Field)
	}
	if d.build != nil {
		desc.build = func(env Env) (*Instance, error) {
			u, err := d.build(env)
			if err != nil {
				return nil, err
			}
			return d.instance(u, env), nil
		}
	}
	if d.open != nil {
		desc.open = func(ctx context.Context, env Env) (*Instance, error) {
			u, err := d.open(ctx, env)
			if err != nil {
				return nil, err
			}
			return d.instance(u, env), nil
		}
	}
	return desc
}
