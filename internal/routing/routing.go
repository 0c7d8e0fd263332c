// Package routing is the render-side graph of units. It's owned by the
// render goroutine and is not safe for concurrent use.
package routing

import (
	"sort"

	"pipelined.dev/audiograph/unit"
)

type (
	// Graph renders units by pulling from the sink. Every vertex is
	// rendered at most once per quantum, so fan-out shares the output.
	Graph struct {
		blockSize int
		quantum   uint64
		vertices  map[string]*vertex
		// pulled are rendered every quantum even if unreachable from
		// the sink.
		pulled []string
	}

	vertex struct {
		id     string
		unit   unit.Unit
		inputs map[string]int
		// sorted keys of inputs for stable summation order
		order    []string
		in, out  []float64
		rendered uint64
		visiting bool
	}
)

// New returns empty graph.
func New(blockSize int) *Graph {
	return &Graph{
		blockSize: blockSize,
		vertices:  make(map[string]*vertex),
	}
}

// Add unit to the graph. Pulled units are rendered every quantum. Adding
// an existing id replaces its unit and keeps the connections.
func (g *Graph) Add(id string, u unit.Unit, pulled bool) {
	if v, ok := g.vertices[id]; ok {
		v.unit = u
		return
	}
	g.vertices[id] = &vertex{
		id:     id,
		unit:   u,
		inputs: make(map[string]int),
		in:     make([]float64, g.blockSize),
		out:    make([]float64, g.blockSize),
	}
	if pulled {
		g.pulled = append(g.pulled, id)
	}
}

// Remove unit and all its connections.
func (g *Graph) Remove(id string) {
	if _, ok := g.vertices[id]; !ok {
		return
	}
	delete(g.vertices, id)
	for _, v := range g.vertices {
		if _, ok := v.inputs[id]; ok {
			delete(v.inputs, id)
			v.sortInputs()
		}
	}
	for i := range g.pulled {
		if g.pulled[i] == id {
			g.pulled = append(g.pulled[:i], g.pulled[i+1:]...)
			break
		}
	}
}

// Connect adds a path from src to dst. Every call adds a path, so
// connecting twice doubles the contribution of src.
func (g *Graph) Connect(src, dst string) {
	if _, ok := g.vertices[src]; !ok {
		return
	}
	v, ok := g.vertices[dst]
	if !ok {
		return
	}
	v.inputs[src]++
	v.sortInputs()
}

// Disconnect removes all paths from src to dst.
func (g *Graph) Disconnect(src, dst string) {
	if v, ok := g.vertices[dst]; ok {
		if _, ok := v.inputs[src]; ok {
			delete(v.inputs, src)
			v.sortInputs()
		}
	}
}

// Paths returns the number of paths from src to dst.
func (g *Graph) Paths(src, dst string) int {
	if v, ok := g.vertices[dst]; ok {
		return v.inputs[src]
	}
	return 0
}

// Len returns the number of units.
func (g *Graph) Len() int {
	return len(g.vertices)
}

// Render advances one quantum and returns the output of sink. The
// returned slice is reused by the next call.
func (g *Graph) Render(sink string) []float64 {
	g.quantum++
	for _, id := range g.pulled {
		if v, ok := g.vertices[id]; ok {
			g.pull(v)
		}
	}
	v, ok := g.vertices[sink]
	if !ok {
		return nil
	}
	return g.pull(v)
}

// pull renders vertex after its inputs. A vertex reached again while its
// inputs are rendered closes a cycle and contributes its previous block.
func (g *Graph) pull(v *vertex) []float64 {
	if v.rendered == g.quantum || v.visiting {
		return v.out
	}
	v.visiting = true
	for i := range v.in {
		v.in[i] = 0
	}
	for _, id := range v.order {
		src, ok := g.vertices[id]
		if !ok {
			continue
		}
		out := g.pull(src)
		gain := float64(v.inputs[id])
		for i := range v.in {
			v.in[i] += out[i] * gain
		}
	}
	v.unit.Process(v.in, v.out)
	v.rendered = g.quantum
	v.visiting = false
	return v.out
}

func (v *vertex) sortInputs() {
	v.order = v.order[:0]
	for id := range v.inputs {
		v.order = append(v.order, id)
	}
	sort.Strings(v.order)
}
