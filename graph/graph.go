// Package graph is the declarative model of nodes and edges mirrored into
// the engine. Every mutation calls the engine first and then updates the
// model, so failed or pending nodes stay visible.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/kind"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/param"
)

var (
	// ErrUndeletable is returned when output node is removed.
	ErrUndeletable = errors.New("node cannot be removed")
	// ErrNodeNotFound is returned for unknown node ids.
	ErrNodeNotFound = errors.New("node not found")
	// ErrEdgeNotFound is returned for unknown edge ids.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrInvalidEdge is returned when edge cannot connect provided nodes.
	ErrInvalidEdge = errors.New("invalid edge")
	// ErrSingleOutput is returned when another output node is added.
	ErrSingleOutput = errors.New("graph has a single output")
)

// Engine renders nodes of the graph.
type Engine interface {
	Create(id string, k kind.Kind, params param.Bag) audiograph.CreateResult
	Update(id string, params param.Bag)
	Remove(id string)
	Connect(src, dst string)
	Disconnect(src, dst string)
	Toggle() <-chan bool
	IsRunning() bool
}

// Status of the node unit.
type Status string

// Node statuses.
const (
	Ready   Status = "ready"
	Pending Status = "pending"
	Failed  Status = "failed"
)

type (
	// Position of the node on the canvas.
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Node of the graph.
	Node struct {
		ID        string    `json:"id"`
		Kind      kind.Kind `json:"kind"`
		Position  Position  `json:"position"`
		Params    param.Bag `json:"params"`
		Deletable bool      `json:"deletable"`
		Status    Status    `json:"status"`
		Error     string    `json:"error,omitempty"`
	}

	// Edge connects output of source node to input of target node.
	Edge struct {
		ID     string `json:"id"`
		Source string `json:"source"`
		Target string `json:"target"`
	}

	// Graph holds nodes and edges in insertion order. It's safe for
	// concurrent use.
	Graph struct {
		engine   Engine
		registry *kind.Registry
		logger   logrus.FieldLogger

		m     sync.Mutex
		nodes map[string]*Node
		order []string
		edges []Edge
		// watchers wait for pending nodes
		watchers sync.WaitGroup
	}
)

// Option configures the graph.
type Option func(*Graph)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Graph) {
		g.logger = l
	}
}

// New returns graph with the output node.
func New(engine Engine, registry *kind.Registry, options ...Option) *Graph {
	g := Graph{
		engine:   engine,
		registry: registry,
		logger:   log.Discard(),
		nodes:    make(map[string]*Node),
	}
	for _, option := range options {
		option(&g)
	}
	g.nodes[audiograph.OutputID] = &Node{
		ID:     audiograph.OutputID,
		Kind:   kind.Output,
		Params: param.Bag{},
		Status: Ready,
	}
	g.order = append(g.order, audiograph.OutputID)
	return &g
}

// AddNode creates a node of the kind with default params.
func (g *Graph) AddNode(k kind.Kind, pos Position) (Node, error) {
	desc, err := g.registry.Lookup(k)
	if err != nil {
		return Node{}, err
	}
	if k == kind.Output {
		return Node{}, ErrSingleOutput
	}
	id := xid.New().String()
	params := desc.Defaults()

	g.m.Lock()
	defer g.m.Unlock()
	r := g.engine.Create(id, k, params)
	n := &Node{
		ID:        id,
		Kind:      k,
		Position:  pos,
		Params:    params,
		Deletable: true,
	}
	switch r.Status {
	case audiograph.Created:
		n.Status = Ready
	case audiograph.Pending:
		n.Status = Pending
		g.watch(id, r.Done)
	default:
		n.Status = Failed
		if r.Err != nil {
			n.Error = r.Err.Error()
		}
	}
	g.nodes[id] = n
	g.order = append(g.order, id)
	g.logger.WithFields(logrus.Fields{"id": id, "kind": k, "status": n.Status}).Debug("node added")
	return n.copy(), nil
}

// watch updates status of pending node when it's resolved. Must be called
// with lock held.
func (g *Graph) watch(id string, done <-chan audiograph.Resolution) {
	g.watchers.Add(1)
	go func() {
		defer g.watchers.Done()
		res := <-done
		g.m.Lock()
		defer g.m.Unlock()
		n, ok := g.nodes[id]
		if !ok || n.Status != Pending {
			return
		}
		switch res.Status {
		case audiograph.Created:
			n.Status = Ready
		case audiograph.Failed:
			n.Status = Failed
			if res.Err != nil {
				n.Error = res.Err.Error()
			}
		}
		g.logger.WithFields(logrus.Fields{"id": id, "status": n.Status}).Debug("node resolved")
	}()
}

// UpdateNode merges partial params into the node.
func (g *Graph) UpdateNode(id string, partial param.Bag) error {
	g.m.Lock()
	defer g.m.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	g.engine.Update(id, partial)
	n.Params = n.Params.Merge(partial)
	return nil
}

// MoveNode sets node position.
func (g *Graph) MoveNode(id string, pos Position) error {
	g.m.Lock()
	defer g.m.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Position = pos
	return nil
}

// RemoveNode removes node and its edges.
func (g *Graph) RemoveNode(id string) error {
	if id == audiograph.OutputID {
		return ErrUndeletable
	}
	g.m.Lock()
	defer g.m.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	g.engine.Remove(id)
	delete(g.nodes, id)
	for i := range g.order {
		if g.order[i] == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	edges := g.edges[:0]
	for _, e := range g.edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}
	g.edges = edges
	g.logger.WithField("id", id).Debug("node removed")
	return nil
}

// AddEdge connects source node to target node.
func (g *Graph) AddEdge(src, dst string) (Edge, error) {
	g.m.Lock()
	defer g.m.Unlock()
	s, ok := g.nodes[src]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s", ErrNodeNotFound, src)
	}
	d, ok := g.nodes[dst]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s", ErrNodeNotFound, dst)
	}
	if src == dst {
		return Edge{}, fmt.Errorf("%w: self loop %s", ErrInvalidEdge, src)
	}
	if err := g.connectable(s, d); err != nil {
		return Edge{}, err
	}
	for _, e := range g.edges {
		if e.Source == src && e.Target == dst {
			return Edge{}, fmt.Errorf("%w: %s is already connected to %s", ErrInvalidEdge, src, dst)
		}
	}
	g.engine.Connect(src, dst)
	e := Edge{
		ID:     xid.New().String(),
		Source: src,
		Target: dst,
	}
	g.edges = append(g.edges, e)
	return e, nil
}

func (g *Graph) connectable(s, d *Node) error {
	sd, err := g.registry.Lookup(s.Kind)
	if err != nil {
		return err
	}
	dd, err := g.registry.Lookup(d.Kind)
	if err != nil {
		return err
	}
	if !sd.Role.HasOutput() {
		return fmt.Errorf("%w: %s %s has no output", ErrInvalidEdge, sd.Role, s.ID)
	}
	if !dd.Role.HasInput() {
		return fmt.Errorf("%w: %s %s has no input", ErrInvalidEdge, dd.Role, d.ID)
	}
	return nil
}

// RemoveEdge disconnects the edge.
func (g *Graph) RemoveEdge(id string) error {
	g.m.Lock()
	defer g.m.Unlock()
	for i, e := range g.edges {
		if e.ID != id {
			continue
		}
		g.engine.Disconnect(e.Source, e.Target)
		g.edges = append(g.edges[:i], g.edges[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
}

// Toggle resumes or suspends the engine and returns new running state.
func (g *Graph) Toggle(ctx context.Context) (bool, error) {
	select {
	case running := <-g.engine.Toggle():
		return running, nil
	case <-ctx.Done():
		return g.engine.IsRunning(), ctx.Err()
	}
}

// IsRunning returns true if engine is running.
func (g *Graph) IsRunning() bool {
	return g.engine.IsRunning()
}

// Node returns a copy of the node.
func (g *Graph) Node(id string) (Node, bool) {
	g.m.Lock()
	defer g.m.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.copy(), true
}

// Nodes returns copies of nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.m.Lock()
	defer g.m.Unlock()
	nodes := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id].copy())
	}
	return nodes
}

// Edges returns edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.m.Lock()
	defer g.m.Unlock()
	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)
	return edges
}

// Wait blocks until all pending nodes are resolved. Engine must resolve
// them, so it's called after engine is closed.
func (g *Graph) Wait() {
	g.watchers.Wait()
}

func (n *Node) copy() Node {
	c := *n
	c.Params = n.Params.Clone()
	return c
}
