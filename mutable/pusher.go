package mutable

import "sync"

// Pusher queues mutations for a single consumer. Put never blocks: the
// consumer is notified through a channel with capacity of one and takes
// everything that was queued since the last Take.
type Pusher struct {
	m       sync.Mutex
	pending Mutations
	notify  chan struct{}
}

// NewPusher creates new pusher.
func NewPusher() *Pusher {
	return &Pusher{
		notify: make(chan struct{}, 1),
	}
}

// Put mutations to the pusher and notify the consumer.
func (p *Pusher) Put(mutations ...Mutation) {
	p.m.Lock()
	for _, m := range mutations {
		p.pending = p.pending.Put(m)
	}
	p.m.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Detach drops queued mutations of provided context.
func (p *Pusher) Detach(c Context) {
	p.m.Lock()
	p.pending = p.pending.Detach(c)
	p.m.Unlock()
}

// Notify returns a channel that receives a value after Put.
func (p *Pusher) Notify() <-chan struct{} {
	return p.notify
}

// Take returns all queued mutations and resets the queue.
func (p *Pusher) Take() Mutations {
	p.m.Lock()
	defer p.m.Unlock()
	ms := p.pending
	p.pending = nil
	return ms
}
