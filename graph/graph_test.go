package graph_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/graph"
	"pipelined.dev/audiograph/kind"
	"pipelined.dev/audiograph/mock"
	"pipelined.dev/audiograph/param"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setup(t *testing.T, options ...audiograph.Option) (*graph.Graph, *audiograph.Engine) {
	t.Helper()
	options = append([]audiograph.Option{audiograph.WithPlayer(&mock.Player{})}, options...)
	e, err := audiograph.New(options...)
	require.NoError(t, err)
	g := graph.New(e, e.Registry())
	t.Cleanup(func() {
		assert.NoError(t, e.Close())
		g.Wait()
	})
	return g, e
}

func TestOutput(t *testing.T) {
	g, _ := setup(t)
	nodes := g.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, audiograph.OutputID, nodes[0].ID)
	assert.Equal(t, kind.Output, nodes[0].Kind)
	assert.Equal(t, graph.Ready, nodes[0].Status)
	assert.False(t, nodes[0].Deletable)

	assert.ErrorIs(t, g.RemoveNode(audiograph.OutputID), graph.ErrUndeletable)
	_, err := g.AddNode(kind.Output, graph.Position{})
	assert.ErrorIs(t, err, graph.ErrSingleOutput)
}

func TestAddNode(t *testing.T) {
	g, e := setup(t)

	n, err := g.AddNode(kind.Oscillator, graph.Position{X: 10, Y: 20})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, graph.Ready, n.Status)
	assert.True(t, n.Deletable)
	assert.Equal(t, 440.0, n.Params["frequency"])
	assert.Equal(t, graph.Position{X: 10, Y: 20}, n.Position)
	assert.Equal(t, audiograph.StateLive, e.State(n.ID))

	_, err = g.AddNode(kind.Kind("theremin"), graph.Position{})
	assert.ErrorIs(t, err, kind.ErrUnknownKind)
	assert.Len(t, g.Nodes(), 2)
}

func TestUpdateNode(t *testing.T) {
	g, _ := setup(t)
	n, err := g.AddNode(kind.Biquad, graph.Position{})
	require.NoError(t, err)

	require.NoError(t, g.UpdateNode(n.ID, param.Bag{"frequency": 1000.0}))
	require.NoError(t, g.UpdateNode(n.ID, param.Bag{"frequency": 2000.0, "type": "highpass"}))
	n, ok := g.Node(n.ID)
	require.True(t, ok)
	assert.Equal(t, 2000.0, n.Params["frequency"])
	assert.Equal(t, "highpass", n.Params["type"])
	assert.Equal(t, 1.0, n.Params["Q"])

	// returned nodes are copies
	n.Params["Q"] = 5.0
	n, _ = g.Node(n.ID)
	assert.Equal(t, 1.0, n.Params["Q"])

	assert.ErrorIs(t, g.UpdateNode("unknown", nil), graph.ErrNodeNotFound)
}

func TestUpdateNodeParameter(t *testing.T) {
	const gatedAmplifier kind.Kind = "gatedAmp"
	tests := []struct {
		description string
		kind        kind.Kind
		status      graph.Status
	}{
		{
			description: "ready",
			kind:        kind.Amplifier,
			status:      graph.Ready,
		},
		{
			description: "pending",
			kind:        gatedAmplifier,
			status:      graph.Pending,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			gate := make(chan struct{})
			r := kind.DefaultRegistry()
			r.MustRegister(kind.Deferred(gatedAmplifier, r.MustLookup(kind.Amplifier), func(ctx context.Context) error {
				select {
				case <-gate:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}))
			g, e := setup(t, audiograph.WithRegistry(r))

			n, err := g.AddNode(test.kind, graph.Position{})
			require.NoError(t, err)
			assert.Equal(t, test.status, n.Status)
			require.NoError(t, g.UpdateNode(n.ID, param.Bag{"gain": 0.7}))
			require.NoError(t, g.UpdateNode(n.ID, param.Bag{"gain": 0.3}))
			n, _ = g.Node(n.ID)
			assert.Equal(t, param.Bag{"gain": 0.3}, n.Params)

			close(gate)
			assert.Eventually(t, func() bool {
				n, _ := g.Node(n.ID)
				return n.Status == graph.Ready
			}, time.Second, time.Millisecond)
			v, ok := e.Value(n.ID, "gain")
			require.True(t, ok)
			assert.Equal(t, 0.3, v)
		})
	}
}

func TestMoveNode(t *testing.T) {
	g, _ := setup(t)
	n, err := g.AddNode(kind.Amplifier, graph.Position{})
	require.NoError(t, err)
	require.NoError(t, g.MoveNode(n.ID, graph.Position{X: 1, Y: 2}))
	n, _ = g.Node(n.ID)
	assert.Equal(t, graph.Position{X: 1, Y: 2}, n.Position)
	assert.ErrorIs(t, g.MoveNode("unknown", graph.Position{}), graph.ErrNodeNotFound)
}

func TestEdges(t *testing.T) {
	g, e := setup(t)
	osc, err := g.AddNode(kind.Oscillator, graph.Position{})
	require.NoError(t, err)
	amp, err := g.AddNode(kind.Amplifier, graph.Position{})
	require.NoError(t, err)

	e1, err := g.AddEdge(osc.ID, amp.ID)
	require.NoError(t, err)
	e2, err := g.AddEdge(amp.ID, audiograph.OutputID)
	require.NoError(t, err)
	assert.NotEqual(t, e1.ID, e2.ID)
	assert.Equal(t, 1, e.Connected(osc.ID, amp.ID))
	assert.Equal(t, 1, e.Connected(amp.ID, audiograph.OutputID))
	assert.Equal(t, []graph.Edge{e1, e2}, g.Edges())

	invalid := []struct {
		src, dst string
		err      error
	}{
		{osc.ID, amp.ID, graph.ErrInvalidEdge},
		{amp.ID, amp.ID, graph.ErrInvalidEdge},
		{amp.ID, osc.ID, graph.ErrInvalidEdge},
		{audiograph.OutputID, amp.ID, graph.ErrInvalidEdge},
		{"unknown", amp.ID, graph.ErrNodeNotFound},
		{amp.ID, "unknown", graph.ErrNodeNotFound},
	}
	for _, test := range invalid {
		_, err := g.AddEdge(test.src, test.dst)
		assert.ErrorIs(t, err, test.err, "%s -> %s", test.src, test.dst)
	}

	require.NoError(t, g.RemoveEdge(e1.ID))
	assert.Zero(t, e.Connected(osc.ID, amp.ID))
	assert.ErrorIs(t, g.RemoveEdge(e1.ID), graph.ErrEdgeNotFound)

	require.NoError(t, g.RemoveNode(amp.ID))
	assert.Empty(t, g.Edges())
	assert.Zero(t, e.Connected(amp.ID, audiograph.OutputID))
	assert.Equal(t, audiograph.StateAbsent, e.State(amp.ID))
	assert.ErrorIs(t, g.RemoveNode(amp.ID), graph.ErrNodeNotFound)
	assert.Len(t, g.Nodes(), 2)
}

func TestPendingNode(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	g, e := setup(t, audiograph.WithCapturer(c))

	mic, err := g.AddNode(kind.Microphone, graph.Position{})
	require.NoError(t, err)
	assert.Equal(t, graph.Pending, mic.Status)
	_, err = g.AddEdge(mic.ID, audiograph.OutputID)
	require.NoError(t, err)

	c.Resolve()
	assert.Eventually(t, func() bool {
		n, _ := g.Node(mic.ID)
		return n.Status == graph.Ready
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, e.Connected(mic.ID, audiograph.OutputID))
}

func TestFailedNode(t *testing.T) {
	g, e := setup(t)

	mic, err := g.AddNode(kind.Microphone, graph.Position{})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		n, _ := g.Node(mic.ID)
		return n.Status == graph.Failed
	}, time.Second, time.Millisecond)
	n, _ := g.Node(mic.ID)
	assert.Contains(t, n.Error, "no input device")
	assert.Equal(t, audiograph.StateFailed, e.State(mic.ID))

	require.NoError(t, g.RemoveNode(mic.ID))
	assert.Equal(t, audiograph.StateAbsent, e.State(mic.ID))
}

func TestRemovePendingNode(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	g, e := setup(t, audiograph.WithCapturer(c))

	mic, err := g.AddNode(kind.Microphone, graph.Position{})
	require.NoError(t, err)
	require.NoError(t, g.RemoveNode(mic.ID))
	c.Resolve()
	assert.Eventually(t, func() bool {
		return c.Released() == 1
	}, time.Second, time.Millisecond)
	_, ok := g.Node(mic.ID)
	assert.False(t, ok)
	assert.Equal(t, audiograph.StateAbsent, e.State(mic.ID))
}

func TestToggle(t *testing.T) {
	g, _ := setup(t)
	ctx := context.Background()

	running, err := g.Toggle(ctx)
	require.NoError(t, err)
	assert.True(t, running)
	assert.True(t, g.IsRunning())

	running, err = g.Toggle(ctx)
	require.NoError(t, err)
	assert.False(t, running)
	assert.False(t, g.IsRunning())
}
