package audiograph

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/audiograph/device"
	"pipelined.dev/audiograph/internal/routing"
	"pipelined.dev/audiograph/internal/state"
	"pipelined.dev/audiograph/kind"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/metric"
	"pipelined.dev/audiograph/mutable"
	"pipelined.dev/audiograph/param"
)

// OutputID is the id of the output node. It exists for the whole life of
// the engine and cannot be removed.
const OutputID = "output"

// Status of a creation.
type Status int

// Creation statuses.
const (
	// Created means the unit is live.
	Created Status = iota
	// Pending means the unit waits for its device.
	Pending
	// Failed means the unit could not be created.
	Failed
	// Cancelled means the node was removed before its device was acquired.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Pending:
		return "pending"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// State of a node entry.
type State int

// Entry states.
const (
	StateAbsent State = iota
	StatePending
	StateLive
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePending:
		return "pending"
	case StateLive:
		return "live"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type (
	// Resolution is the final outcome of a creation.
	Resolution struct {
		Status Status
		Err    error
	}

	// CreateResult is returned by Create. Done receives exactly one
	// resolution: immediately for synchronous kinds and after the device
	// is acquired, failed or cancelled for asynchronous ones.
	CreateResult struct {
		Status Status
		Err    error
		Done   <-chan Resolution
	}

	// Engine owns live units and renders them to the output device.
	// All methods are safe for concurrent use.
	Engine struct {
		registry *kind.Registry
		logger   logrus.FieldLogger
		player   device.Player
		metrics  *metric.Engine
		measure  metric.MeasureFunc
		format   device.Format
		env      kind.Env
		additive bool

		m          sync.Mutex
		entries    map[string]*entry
		edges      map[edge]int
		deferred   map[edge]int
		generation uint64
		closed     bool

		// lifecycle serializes events sent to the render loop.
		lifecycle sync.Mutex
		running   atomic.Bool
		pusher    *mutable.Pusher
		// graph is the mutation context of the routes.
		graph  mutable.Context
		routes *routing.Graph
		out    []float32
		handle *state.Handle
		done   chan struct{}

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup
	}

	entry struct {
		id         string
		kind       kind.Kind
		state      State
		generation uint64
		instance   *kind.Instance
		ctx        mutable.Context
		// params are kept while device is acquired. revision counts
		// updates merged into them.
		params   param.Bag
		revision uint64
		derived param.Bag
		err     error
	}

	edge struct {
		src, dst string
	}

	// setting is a special field value converted for the unit.
	setting struct {
		install func()
		derived param.Bag
		err     error
	}
)

// New creates engine and starts its render loop in suspended state.
func New(options ...Option) (*Engine, error) {
	e := Engine{
		registry: kind.DefaultRegistry(),
		logger:   log.Discard(),
		player:   &device.Null{},
		format: device.Format{
			SampleRate: DefaultSampleRate,
			Channels:   DefaultChannels,
			BlockSize:  DefaultBlockSize,
		},
		env: kind.Env{
			Capturer: device.Unavailable{},
		},
		entries:  make(map[string]*entry),
		edges:    make(map[edge]int),
		deferred: make(map[edge]int),
		pusher:   mutable.NewPusher(),
		graph:    mutable.Mutable(),
		done:     make(chan struct{}),
	}
	for _, option := range options {
		if err := option(&e); err != nil {
			return nil, fmt.Errorf("error applying option: %w", err)
		}
	}
	e.env.SampleRate = e.format.SampleRate
	e.env.BlockSize = e.format.BlockSize
	e.measure = e.metrics.Meter()
	e.routes = routing.New(e.format.BlockSize)
	e.out = make([]float32, e.format.Samples())

	desc, err := e.registry.Lookup(kind.Output)
	if err != nil {
		return nil, fmt.Errorf("output kind: %w", err)
	}
	inst, err := desc.New(e.env)
	if err != nil {
		return nil, fmt.Errorf("output unit: %w", err)
	}
	if err := e.player.Open(e.format); err != nil {
		return nil, fmt.Errorf("open player: %w", err)
	}
	e.entries[OutputID] = &entry{
		id:       OutputID,
		kind:     kind.Output,
		state:    StateLive,
		instance: inst,
		ctx:      mutable.Mutable(),
		derived:  param.Bag{},
	}
	// loop is not started yet.
	e.routes.Add(OutputID, inst.Unit, false)
	e.metrics.UnitAdded(string(kind.Output))

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.handle = state.NewHandle(e.pusher, e.start, e.stop, e.render)
	go func() {
		defer close(e.done)
		state.Loop(e.handle, state.Suspended)
	}()
	e.logger.WithFields(logrus.Fields{
		"sampleRate": e.format.SampleRate,
		"blockSize":  e.format.BlockSize,
		"channels":   e.format.Channels,
	}).Debug("engine created")
	return &e, nil
}

// SampleRate returns the rendering sample rate.
func (e *Engine) SampleRate() int {
	return e.format.SampleRate
}

// Registry returns kinds known to engine.
func (e *Engine) Registry() *kind.Registry {
	return e.registry
}

// Create constructs a unit for the node. Params are merged over kind
// defaults. Units of asynchronous kinds are Pending until their device is
// acquired. Create panics if kind is not registered.
func (e *Engine) Create(id string, k kind.Kind, params param.Bag) CreateResult {
	desc := e.registry.MustLookup(k)
	fields := logrus.Fields{"id": id, "kind": k}
	bag := desc.Defaults().Merge(params)
	if desc.Async {
		e.m.Lock()
		defer e.m.Unlock()
		if err := e.admit(id); err != nil {
			return failed(err)
		}
		return e.acquire(id, desc, bag)
	}

	// payloads are decoded before the lock is taken
	inst, err := desc.New(e.env)
	if err != nil {
		e.logger.WithFields(fields).WithError(err).Warn("create failed")
		return failed(err)
	}
	settings := prepare(inst, bag)

	e.m.Lock()
	defer e.m.Unlock()
	if err := e.admit(id); err != nil {
		release(inst, e.logger.WithFields(fields))
		return failed(err)
	}
	en := &entry{
		id:       id,
		kind:     k,
		state:    StateLive,
		instance: inst,
		ctx:      mutable.Mutable(),
		derived:  param.Bag{},
	}
	e.entries[id] = en
	e.install(en, bag, settings)
	e.logger.WithFields(fields).Debug("created")
	return resolved(Resolution{Status: Created})
}

// admit returns error if unit with id cannot be created. Must be called
// with lock held.
func (e *Engine) admit(id string) error {
	if e.closed {
		return ErrClosed
	}
	if en, ok := e.entries[id]; ok && en.state != StateCancelled {
		e.logger.WithField("id", id).Warn("duplicate id")
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	return nil
}

// acquire starts device acquisition. Must be called with lock held.
func (e *Engine) acquire(id string, desc kind.Descriptor, bag param.Bag) CreateResult {
	e.generation++
	gen := e.generation
	e.entries[id] = &entry{
		id:         id,
		kind:       desc.Kind,
		state:      StatePending,
		generation: gen,
		ctx:        mutable.Mutable(),
		params:     bag,
		derived:    param.Bag{},
	}
	e.metrics.AcquisitionStarted()

	done := make(chan Resolution, 1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		inst, err := desc.Open(e.ctx, e.env)
		var (
			settings map[string]setting
			revision uint64
		)
		if err == nil {
			if current, rev, ok := e.pending(id, gen); ok {
				settings = prepare(inst, current)
				revision = rev
			}
		}
		done <- e.resolve(id, gen, inst, err, settings, revision)
	}()
	e.logger.WithFields(logrus.Fields{"id": id, "kind": desc.Kind, "generation": gen}).Debug("pending")
	return CreateResult{Status: Pending, Done: done}
}

// pending returns params of the entry if it still waits for its device.
func (e *Engine) pending(id string, gen uint64) (param.Bag, uint64, bool) {
	e.m.Lock()
	defer e.m.Unlock()
	en, ok := e.entries[id]
	if !ok || en.generation != gen || en.state != StatePending {
		return nil, 0, false
	}
	return en.params, en.revision, true
}

// resolve installs acquired unit if the entry still waits for it.
// Settings converted before params were updated are dropped.
func (e *Engine) resolve(id string, gen uint64, inst *kind.Instance, err error, settings map[string]setting, revision uint64) Resolution {
	e.m.Lock()
	defer e.m.Unlock()
	fields := logrus.Fields{"id": id, "generation": gen}

	en, ok := e.entries[id]
	if !ok || en.generation != gen || en.state != StatePending || e.closed {
		if ok && en.generation == gen && en.state == StateCancelled {
			delete(e.entries, id)
		}
		if err == nil && inst != nil {
			release(inst, e.logger.WithFields(fields))
		}
		e.metrics.AcquisitionDone(metric.AcquisitionDiscarded)
		e.logger.WithFields(fields).Debug("acquisition discarded")
		return Resolution{Status: Cancelled}
	}
	if err != nil {
		en.state = StateFailed
		en.params = nil
		en.err = &AcquisitionError{ID: id, Err: err}
		e.forget(id)
		e.metrics.AcquisitionDone(metric.AcquisitionFailed)
		e.logger.WithFields(fields).WithError(err).Warn("acquisition failed")
		return Resolution{Status: Failed, Err: en.err}
	}
	en.instance = inst
	en.state = StateLive
	bag := en.params
	if en.revision != revision {
		settings = nil
	}
	en.params = nil
	e.install(en, bag, settings)
	e.reconnect(id)
	e.metrics.AcquisitionDone(metric.AcquisitionCreated)
	e.logger.WithFields(fields).Debug("acquired")
	return Resolution{Status: Created}
}

// install applies params and adds the unit to the routes. Must be called
// with lock held.
func (e *Engine) install(en *entry, bag param.Bag, settings map[string]setting) {
	e.apply(en, bag, settings)
	inst := en.instance
	pulled := inst.Analyser != nil || inst.Recorder != nil
	id, u := en.id, inst.Unit
	e.pusher.Put(e.graph.Mutate(func() {
		e.routes.Add(id, u, pulled)
	}))
	if inst.Start != nil {
		inst.Start()
	}
	e.metrics.UnitAdded(string(en.kind))
}

// prepare converts values of special fields present in the bag. It
// doesn't touch the unit, so it's called without lock held.
func prepare(inst *kind.Instance, bag param.Bag) map[string]setting {
	var settings map[string]setting
	for _, b := range inst.Bindings {
		if b.Semantics != param.SpecialSetter {
			continue
		}
		v, ok := bag[b.Name]
		if !ok {
			continue
		}
		if settings == nil {
			settings = make(map[string]setting)
		}
		settings[b.Name] = convert(b, v)
	}
	return settings
}

func convert(b kind.Binding, v any) setting {
	install, derived, err := b.Special(v)
	return setting{install: install, derived: derived, err: err}
}

// apply sets values of fields present in the bag, in the order fields are
// declared. Special values missing in settings are converted in place.
// Invalid values are ignored. Must be called with lock held.
func (e *Engine) apply(en *entry, bag param.Bag, settings map[string]setting) {
	for _, b := range en.instance.Bindings {
		v, ok := bag[b.Name]
		if !ok {
			continue
		}
		switch b.Semantics {
		case param.Parameter:
			f, ok := param.Float(v)
			if !ok {
				e.invalid(en, b.Name, v, nil)
				continue
			}
			b.Param.SetValue(f)
		case param.Property:
			assign, ok := b.Assign(v)
			if !ok {
				e.invalid(en, b.Name, v, nil)
				continue
			}
			if b.Immediate {
				assign()
				continue
			}
			e.pusher.Put(en.ctx.Mutate(assign))
		case param.SpecialSetter:
			s, ok := settings[b.Name]
			if !ok {
				s = convert(b, v)
			}
			if s.err != nil {
				e.invalid(en, b.Name, v, s.err)
				continue
			}
			if s.install != nil {
				e.pusher.Put(en.ctx.Mutate(s.install))
			}
			if s.derived == nil {
				delete(en.derived, b.Name)
			} else {
				en.derived[b.Name] = s.derived
			}
		}
	}
}

func (e *Engine) invalid(en *entry, name string, v any, err error) {
	l := e.logger.WithFields(logrus.Fields{
		"id":    en.id,
		"kind":  en.kind,
		"field": name,
		"value": fmt.Sprintf("%T", v),
	})
	if err != nil {
		l = l.WithError(err)
	}
	l.Warn("invalid value ignored")
}

// Update applies partial params to the unit. Unknown ids and invalid
// values are ignored. Params of pending units are applied when their
// device is acquired. Updates of cancelled and failed units are dropped.
func (e *Engine) Update(id string, params param.Bag) {
	inst, ok := e.merge(id, params)
	if !ok {
		return
	}
	settings := prepare(inst, params)

	e.m.Lock()
	defer e.m.Unlock()
	// unit could be removed while payloads were decoded
	en, ok := e.entries[id]
	if !ok || e.closed || en.instance != inst {
		return
	}
	e.apply(en, params, settings)
}

// merge keeps params of the pending unit and returns the instance of the
// live one.
func (e *Engine) merge(id string, params param.Bag) (*kind.Instance, bool) {
	e.m.Lock()
	defer e.m.Unlock()
	en, ok := e.entries[id]
	if !ok || e.closed {
		return nil, false
	}
	switch en.state {
	case StateLive:
		return en.instance, true
	case StatePending:
		en.params = en.params.Merge(params)
		en.revision++
	}
	return nil, false
}

// Remove destroys the unit and all its connections. Removing a pending
// node cancels its acquisition. Removing output node or unknown ids does
// nothing.
func (e *Engine) Remove(id string) {
	if id == OutputID {
		return
	}
	e.m.Lock()
	defer e.m.Unlock()
	en, ok := e.entries[id]
	if !ok {
		return
	}
	switch en.state {
	case StatePending:
		en.state = StateCancelled
		en.params = nil
		e.forget(id)
		e.logger.WithField("id", id).Debug("acquisition cancelled")
	case StateFailed:
		delete(e.entries, id)
	case StateLive:
		e.destroy(en)
		delete(e.entries, id)
		e.logger.WithField("id", id).Debug("removed")
	}
}

// destroy disconnects the live unit and frees its resources. Must be
// called with lock held.
func (e *Engine) destroy(en *entry) {
	id := en.id
	for k := range e.edges {
		if k.src == id || k.dst == id {
			delete(e.edges, k)
		}
	}
	e.forget(id)
	e.pusher.Detach(en.ctx)
	e.pusher.Put(e.graph.Mutate(func() {
		e.routes.Remove(id)
	}))
	if en.instance.Stop != nil {
		en.instance.Stop()
	}
	release(en.instance, e.logger.WithField("id", id))
	e.metrics.UnitRemoved(string(en.kind))
}

func release(inst *kind.Instance, l logrus.FieldLogger) error {
	if inst.Release == nil {
		return nil
	}
	err := inst.Release()
	if err != nil {
		l.WithError(err).Warn("release failed")
	}
	return err
}

// Connect routes output of src to input of dst. Connecting a pending node
// is deferred until its device is acquired. Other ids are ignored.
func (e *Engine) Connect(src, dst string) {
	e.m.Lock()
	defer e.m.Unlock()
	s, sok := e.entries[src]
	d, dok := e.entries[dst]
	if !sok || !dok {
		return
	}
	k := edge{src: src, dst: dst}
	switch {
	case s.state == StateLive && d.state == StateLive:
		e.connect(k)
	case waiting(s) && waiting(d):
		if e.additive {
			e.deferred[k]++
		} else {
			e.deferred[k] = 1
		}
	}
}

func waiting(en *entry) bool {
	return en.state == StateLive || en.state == StatePending
}

// connect adds the path between live units. Must be called with lock held.
func (e *Engine) connect(k edge) {
	if !e.additive && e.edges[k] > 0 {
		return
	}
	e.edges[k]++
	e.pusher.Put(e.graph.Mutate(func() {
		e.routes.Connect(k.src, k.dst)
	}))
}

// Disconnect removes all paths from src to dst.
func (e *Engine) Disconnect(src, dst string) {
	e.m.Lock()
	defer e.m.Unlock()
	k := edge{src: src, dst: dst}
	delete(e.deferred, k)
	if e.edges[k] == 0 {
		return
	}
	delete(e.edges, k)
	e.pusher.Put(e.graph.Mutate(func() {
		e.routes.Disconnect(k.src, k.dst)
	}))
}

// reconnect applies deferred connections of the acquired unit. Must be
// called with lock held.
func (e *Engine) reconnect(id string) {
	for k, n := range e.deferred {
		if k.src != id && k.dst != id {
			continue
		}
		other := k.dst
		if other == id {
			other = k.src
		}
		en, ok := e.entries[other]
		switch {
		case ok && en.state == StateLive:
			delete(e.deferred, k)
			for i := 0; i < n; i++ {
				e.connect(k)
			}
		case ok && en.state == StatePending:
		default:
			delete(e.deferred, k)
		}
	}
}

// forget drops deferred connections of the node. Must be called with lock
// held.
func (e *Engine) forget(id string) {
	for k := range e.deferred {
		if k.src == id || k.dst == id {
			delete(e.deferred, k)
		}
	}
}

// Toggle resumes suspended engine or suspends running one. The returned
// channel receives the new running state.
func (e *Engine) Toggle() <-chan bool {
	feedback := make(chan bool, 1)
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	e.m.Lock()
	closed := e.closed
	e.m.Unlock()
	if closed {
		feedback <- false
		return feedback
	}
	e.handle.Eventc <- state.Toggle{Feedback: feedback}
	return feedback
}

// IsRunning returns true if quanta are rendered.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Close stops rendering, cancels acquisitions and releases all units.
// Returned error wraps every failure of stopping and releasing.
func (e *Engine) Close() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	e.m.Lock()
	if e.closed {
		e.m.Unlock()
		return nil
	}
	e.closed = true
	e.m.Unlock()

	var errs closeErrors
	feedback := make(chan error, 1)
	e.handle.Eventc <- state.Close{Feedback: feedback}
	if err := <-feedback; err != nil {
		errs = append(errs, err)
	}
	<-e.done
	e.cancel()
	e.wg.Wait()

	e.m.Lock()
	for id, en := range e.entries {
		if en.state == StateLive {
			if en.instance.Stop != nil {
				en.instance.Stop()
			}
			if err := release(en.instance, e.logger.WithField("id", id)); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", id, err))
			}
			e.metrics.UnitRemoved(string(en.kind))
		}
		delete(e.entries, id)
	}
	e.edges = make(map[edge]int)
	e.deferred = make(map[edge]int)
	e.m.Unlock()

	if err := e.player.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close player: %w", err))
	}
	e.logger.Debug("engine closed")
	return errs.ret()
}

func (e *Engine) start() error {
	if err := e.player.Start(); err != nil {
		e.logger.WithError(err).Error("start output")
		return err
	}
	e.running.Store(true)
	e.logger.Debug("resumed")
	return nil
}

func (e *Engine) stop() error {
	e.running.Store(false)
	if err := e.player.Stop(); err != nil {
		e.logger.WithError(err).Error("stop output")
		return err
	}
	e.logger.Debug("suspended")
	return nil
}

// render pulls one quantum from the output node and writes it to every
// channel of the device.
func (e *Engine) render() error {
	started := time.Now()
	block := e.routes.Render(OutputID)
	channels := e.format.Channels
	for i, v := range block {
		s := float32(v)
		for c := 0; c < channels; c++ {
			e.out[i*channels+c] = s
		}
	}
	e.measure(len(block), time.Since(started))
	if err := e.player.Write(e.out); err != nil {
		e.logger.WithError(err).Error("write output")
		return err
	}
	return nil
}

func failed(err error) CreateResult {
	done := make(chan Resolution, 1)
	done <- Resolution{Status: Failed, Err: err}
	return CreateResult{Status: Failed, Err: err, Done: done}
}

func resolved(r Resolution) CreateResult {
	done := make(chan Resolution, 1)
	done <- r
	return CreateResult{Status: r.Status, Err: r.Err, Done: done}
}
