package audiograph_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/codec"
	"pipelined.dev/audiograph/device"
	"pipelined.dev/audiograph/kind"
	"pipelined.dev/audiograph/mock"
	"pipelined.dev/audiograph/param"
	"pipelined.dev/audiograph/unit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const wait = 2 * time.Second

func newEngine(t *testing.T, options ...audiograph.Option) *audiograph.Engine {
	t.Helper()
	e, err := audiograph.New(options...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, e.Close())
	})
	return e
}

func resolution(t *testing.T, r audiograph.CreateResult) audiograph.Resolution {
	t.Helper()
	select {
	case res := <-r.Done:
		return res
	case <-time.After(wait):
		t.Fatal("resolution timeout")
	}
	return audiograph.Resolution{}
}

const gatedAmplifier kind.Kind = "gatedAmp"

// gated returns registry with amplifier which is constructed after gate
// is closed.
func gated(gate <-chan struct{}) *kind.Registry {
	r := kind.DefaultRegistry()
	wait := func(ctx context.Context) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.MustRegister(kind.Deferred(gatedAmplifier, r.MustLookup(kind.Amplifier), wait))
	r.MustRegister(kind.Deferred("gatedFileIn", r.MustLookup(kind.FileInput), wait))
	return r
}

func peak(samples []float32) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(float64(s)))
	}
	return p
}

func TestOutput(t *testing.T) {
	e := newEngine(t)
	assert.Equal(t, audiograph.StateLive, e.State(audiograph.OutputID))
	e.Remove(audiograph.OutputID)
	assert.Equal(t, audiograph.StateLive, e.State(audiograph.OutputID))
	assert.False(t, e.IsRunning())
}

func TestCreate(t *testing.T) {
	e := newEngine(t)

	r := e.Create("a", kind.Oscillator, nil)
	assert.Equal(t, audiograph.Created, r.Status)
	assert.NoError(t, r.Err)
	assert.Equal(t, audiograph.Created, resolution(t, r).Status)
	assert.Equal(t, audiograph.StateLive, e.State("a"))

	r = e.Create("a", kind.Amplifier, nil)
	assert.Equal(t, audiograph.Failed, r.Status)
	assert.ErrorIs(t, r.Err, audiograph.ErrDuplicateID)
	assert.Equal(t, audiograph.Failed, resolution(t, r).Status)

	r = e.Create(audiograph.OutputID, kind.Output, nil)
	assert.ErrorIs(t, r.Err, audiograph.ErrDuplicateID)

	assert.Panics(t, func() {
		e.Create("b", kind.Kind("theremin"), nil)
	})
	assert.Equal(t, audiograph.StateAbsent, e.State("b"))
}

func TestRemove(t *testing.T) {
	e := newEngine(t)
	e.Create("a", kind.Oscillator, nil)
	e.Connect("a", audiograph.OutputID)
	require.Equal(t, 1, e.Connected("a", audiograph.OutputID))

	e.Remove("a")
	assert.Equal(t, audiograph.StateAbsent, e.State("a"))
	assert.Zero(t, e.Connected("a", audiograph.OutputID))
	// removing again or unknown ids does nothing
	e.Remove("a")
	e.Remove("unknown")

	// id can be reused
	r := e.Create("a", kind.Amplifier, nil)
	assert.Equal(t, audiograph.Created, r.Status)
}

func TestConnect(t *testing.T) {
	tests := []struct {
		description string
		options     []audiograph.Option
		connects    int
		expected    int
	}{
		{
			description: "idempotent",
			connects:    3,
			expected:    1,
		},
		{
			description: "additive",
			options:     []audiograph.Option{audiograph.WithAdditiveConnections()},
			connects:    3,
			expected:    3,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			e := newEngine(t, test.options...)
			e.Create("osc", kind.Oscillator, nil)
			for i := 0; i < test.connects; i++ {
				e.Connect("osc", audiograph.OutputID)
			}
			assert.Equal(t, test.expected, e.Connected("osc", audiograph.OutputID))
			e.Disconnect("osc", audiograph.OutputID)
			assert.Zero(t, e.Connected("osc", audiograph.OutputID))
		})
	}
}

func TestConnectUnknown(t *testing.T) {
	e := newEngine(t)
	e.Create("osc", kind.Oscillator, nil)
	e.Connect("osc", "missing")
	e.Connect("missing", audiograph.OutputID)
	e.Disconnect("missing", audiograph.OutputID)
	assert.Zero(t, e.Connected("osc", "missing"))
	assert.Zero(t, e.Connected("missing", audiograph.OutputID))
}

func TestUpdate(t *testing.T) {
	e := newEngine(t)
	e.Create("amp", kind.Amplifier, nil)
	e.Create("bq", kind.Biquad, nil)
	assert.NotPanics(t, func() {
		e.Update("unknown", param.Bag{"gain": 1.0})
		e.Update("amp", nil)
		e.Update("amp", param.Bag{"gain": "loud", "unknown": 1})
		e.Update("bq", param.Bag{"type": "bandstop", "Q": []int{1}})
		e.Update(audiograph.OutputID, param.Bag{"gain": 1.0})
	})
	assert.Equal(t, audiograph.StateLive, e.State("amp"))
}

func TestUpdateParameter(t *testing.T) {
	tests := []struct {
		description string
		kind        kind.Kind
		updates     []param.Bag
		expected    float64
	}{
		{
			description: "live",
			kind:        kind.Amplifier,
			updates:     []param.Bag{{"gain": 0.7}, {"gain": 0.3}},
			expected:    0.3,
		},
		{
			description: "pending",
			kind:        gatedAmplifier,
			updates:     []param.Bag{{"gain": 0.7}, {"gain": 0.3}},
			expected:    0.3,
		},
		{
			description: "live invalid ignored",
			kind:        kind.Amplifier,
			updates:     []param.Bag{{"gain": 0.7}, {"gain": "loud"}},
			expected:    0.7,
		},
		{
			description: "pending invalid ignored",
			kind:        gatedAmplifier,
			updates:     []param.Bag{{"gain": 0.7}, {"gain": "loud"}},
			expected:    0.7,
		},
		{
			description: "defaults",
			kind:        gatedAmplifier,
			expected:    0.5,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			gate := make(chan struct{})
			e := newEngine(t, audiograph.WithRegistry(gated(gate)))

			r := e.Create("amp", test.kind, nil)
			for _, params := range test.updates {
				e.Update("amp", params)
			}
			close(gate)
			require.Equal(t, audiograph.Created, resolution(t, r).Status)
			v, ok := e.Value("amp", "gain")
			require.True(t, ok)
			assert.Equal(t, test.expected, v)
		})
	}
}

func TestUpdateCancelled(t *testing.T) {
	gate := make(chan struct{})
	e := newEngine(t, audiograph.WithRegistry(gated(gate)))

	stale := e.Create("amp", gatedAmplifier, nil)
	e.Update("amp", param.Bag{"gain": 0.7})
	e.Remove("amp")
	// dropped with the cancelled unit
	e.Update("amp", param.Bag{"gain": 0.9})
	assert.Equal(t, audiograph.StateCancelled, e.State("amp"))
	_, ok := e.Value("amp", "gain")
	assert.False(t, ok)

	fresh := e.Create("amp", gatedAmplifier, param.Bag{"gain": 0.3})
	close(gate)
	assert.Equal(t, audiograph.Cancelled, resolution(t, stale).Status)
	assert.Equal(t, audiograph.Created, resolution(t, fresh).Status)
	v, ok := e.Value("amp", "gain")
	require.True(t, ok)
	assert.Equal(t, 0.3, v)

	e.Remove("amp")
	e.Update("amp", param.Bag{"gain": 0.9})
	assert.Equal(t, audiograph.StateAbsent, e.State("amp"))
}

func TestUpdatePendingPayload(t *testing.T) {
	gate := make(chan struct{})
	e := newEngine(t, audiograph.WithRegistry(gated(gate)))
	short, err := codec.WAV(make([]float64, 4800), 48000)
	require.NoError(t, err)
	long, err := codec.WAV(make([]float64, 24000), 48000)
	require.NoError(t, err)

	r := e.Create("file", "gatedFileIn", param.Bag{"buffer": short})
	e.Update("file", param.Bag{"buffer": long, "playbackRate": 2.0})
	assert.Nil(t, e.Derived("file")["buffer"])
	close(gate)
	require.Equal(t, audiograph.Created, resolution(t, r).Status)

	info, ok := e.Derived("file")["buffer"].(param.Bag)
	require.True(t, ok)
	assert.Equal(t, 24000, info["length"])
	v, ok := e.Value("file", "playbackRate")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)
}

func TestRender(t *testing.T) {
	p := &mock.Player{}
	e := newEngine(t,
		audiograph.WithPlayer(p),
		audiograph.WithFormat(48000, 128, 2),
	)
	assert.Equal(t, device.Format{SampleRate: 48000, Channels: 2, BlockSize: 128}, p.Format())

	e.Create("osc", kind.Oscillator, param.Bag{"frequency": 1000.0})
	e.Create("amp", kind.Amplifier, nil)
	e.Connect("osc", "amp")
	e.Connect("amp", audiograph.OutputID)

	require.True(t, <-e.Toggle())
	assert.True(t, e.IsRunning())
	assert.True(t, p.Started())
	assert.Eventually(t, func() bool {
		return len(p.Samples()) >= 4800
	}, wait, time.Millisecond)
	require.False(t, <-e.Toggle())
	assert.False(t, e.IsRunning())
	assert.False(t, p.Started())

	// default gain halves the signal
	assert.InDelta(t, 0.5, peak(p.Samples()), 0.01)

	p.Reset()
	e.Update("amp", param.Bag{"gain": 0.25})
	require.True(t, <-e.Toggle())
	assert.Eventually(t, func() bool {
		return len(p.Samples()) >= 4800
	}, wait, time.Millisecond)
	require.False(t, <-e.Toggle())
	samples := p.Samples()
	assert.InDelta(t, 0.25, peak(samples[len(samples)-2400:]), 0.01)
}

func TestRenderSilence(t *testing.T) {
	p := &mock.Player{}
	e := newEngine(t, audiograph.WithPlayer(p))
	e.Create("osc", kind.Oscillator, nil)

	require.True(t, <-e.Toggle())
	assert.Eventually(t, func() bool {
		return len(p.Samples()) >= 1024
	}, wait, time.Millisecond)
	require.False(t, <-e.Toggle())
	assert.Zero(t, peak(p.Samples()))
}

func TestToggleStartFailure(t *testing.T) {
	p := &mock.Player{StartErr: errors.New("device busy")}
	e := newEngine(t, audiograph.WithPlayer(p))
	assert.False(t, <-e.Toggle())
	assert.False(t, e.IsRunning())
}

func TestAcquisition(t *testing.T) {
	c := &mock.Capturer{Manual: true, Value: 0.5}
	p := &mock.Player{}
	e := newEngine(t, audiograph.WithCapturer(c), audiograph.WithPlayer(p))

	r := e.Create("mic", kind.Microphone, nil)
	assert.Equal(t, audiograph.Pending, r.Status)
	assert.Equal(t, audiograph.StatePending, e.State("mic"))

	// connection is applied when device is acquired
	e.Connect("mic", audiograph.OutputID)
	assert.Zero(t, e.Connected("mic", audiograph.OutputID))

	c.Resolve()
	assert.Equal(t, audiograph.Created, resolution(t, r).Status)
	assert.Equal(t, audiograph.StateLive, e.State("mic"))
	assert.Equal(t, 1, e.Connected("mic", audiograph.OutputID))

	require.True(t, <-e.Toggle())
	assert.Eventually(t, func() bool {
		return peak(p.Samples()) > 0.4
	}, wait, time.Millisecond)
	require.False(t, <-e.Toggle())

	e.Remove("mic")
	assert.Equal(t, 1, c.Released())
}

func TestAcquisitionDisconnectedWhilePending(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	e := newEngine(t, audiograph.WithCapturer(c))

	r := e.Create("mic", kind.Microphone, nil)
	e.Connect("mic", audiograph.OutputID)
	e.Disconnect("mic", audiograph.OutputID)
	c.Resolve()
	assert.Equal(t, audiograph.Created, resolution(t, r).Status)
	assert.Zero(t, e.Connected("mic", audiograph.OutputID))
}

func TestAcquisitionBetweenPending(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	e := newEngine(t, audiograph.WithCapturer(c))

	r1 := e.Create("mic1", kind.Microphone, nil)
	r2 := e.Create("mic2", kind.Microphone, nil)
	e.Create("amp", kind.Amplifier, nil)
	e.Connect("mic1", "amp")
	e.Connect("mic2", "amp")
	e.Connect("amp", audiograph.OutputID)

	c.Resolve()
	c.Resolve()
	assert.Equal(t, audiograph.Created, resolution(t, r1).Status)
	assert.Equal(t, audiograph.Created, resolution(t, r2).Status)
	assert.Equal(t, 1, e.Connected("mic1", "amp"))
	assert.Equal(t, 1, e.Connected("mic2", "amp"))
	assert.Equal(t, 1, e.Connected("amp", audiograph.OutputID))
}

func TestAcquisitionCancelled(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	e := newEngine(t, audiograph.WithCapturer(c))

	r := e.Create("mic", kind.Microphone, nil)
	e.Connect("mic", audiograph.OutputID)
	e.Remove("mic")
	assert.Equal(t, audiograph.StateCancelled, e.State("mic"))

	c.Resolve()
	assert.Equal(t, audiograph.Cancelled, resolution(t, r).Status)
	assert.Equal(t, 1, c.Opened())
	assert.Equal(t, 1, c.Released())
	assert.Equal(t, audiograph.StateAbsent, e.State("mic"))
	assert.Zero(t, e.Connected("mic", audiograph.OutputID))
}

func TestAcquisitionRecreated(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	e := newEngine(t, audiograph.WithCapturer(c))

	stale := e.Create("mic", kind.Microphone, nil)
	e.Remove("mic")
	fresh := e.Create("mic", kind.Microphone, nil)
	assert.Equal(t, audiograph.Pending, fresh.Status)

	c.Resolve()
	c.Resolve()
	assert.Equal(t, audiograph.Cancelled, resolution(t, stale).Status)
	assert.Equal(t, audiograph.Created, resolution(t, fresh).Status)
	assert.Equal(t, audiograph.StateLive, e.State("mic"))
	assert.Equal(t, 2, c.Opened())
	assert.Equal(t, 1, c.Released())
}

func TestAcquisitionFailed(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	e := newEngine(t, audiograph.WithCapturer(c))

	r := e.Create("mic", kind.Microphone, nil)
	e.Connect("mic", audiograph.OutputID)
	c.Fail(assert.AnError)
	res := resolution(t, r)
	assert.Equal(t, audiograph.Failed, res.Status)
	assert.ErrorIs(t, res.Err, audiograph.ErrDeviceAcquisition)
	assert.ErrorIs(t, res.Err, assert.AnError)
	var acqErr *audiograph.AcquisitionError
	require.ErrorAs(t, res.Err, &acqErr)
	assert.Equal(t, "mic", acqErr.ID)

	assert.Equal(t, audiograph.StateFailed, e.State("mic"))
	assert.ErrorIs(t, e.Err("mic"), assert.AnError)
	assert.Zero(t, e.Connected("mic", audiograph.OutputID))

	// failed entry holds the id until removed
	assert.ErrorIs(t, e.Create("mic", kind.Microphone, nil).Err, audiograph.ErrDuplicateID)
	e.Remove("mic")
	assert.Equal(t, audiograph.StateAbsent, e.State("mic"))
}

func TestAcquisitionUnavailable(t *testing.T) {
	e := newEngine(t)
	r := e.Create("mic", kind.Microphone, nil)
	assert.Equal(t, audiograph.Pending, r.Status)
	res := resolution(t, r)
	assert.Equal(t, audiograph.Failed, res.Status)
	assert.ErrorIs(t, res.Err, device.ErrNoInput)
}

func TestSpectrum(t *testing.T) {
	e := newEngine(t, audiograph.WithPlayer(&mock.Player{}))
	e.Create("osc", kind.Oscillator, param.Bag{"frequency": 1500.0})
	e.Create("draw", kind.Analyser, param.Bag{"fftSize": 256})
	e.Connect("osc", "draw")

	assert.Zero(t, e.FrequencyBinCount("osc"))
	assert.Zero(t, e.FrequencyBinCount("unknown"))
	e.SampleSpectrum("unknown", make([]byte, 8))

	require.Equal(t, uint(128), e.FrequencyBinCount("draw"))

	require.True(t, <-e.Toggle())
	spectrum := make([]byte, e.FrequencyBinCount("draw"))
	// analyser is rendered without connection to output
	assert.Eventually(t, func() bool {
		e.SampleSpectrum("draw", spectrum)
		// 1500 Hz is in bin 8 at 48 kHz with 256 points
		return spectrum[8] > 200
	}, wait, time.Millisecond)
	require.False(t, <-e.Toggle())
}

func TestFrequencyBinCount(t *testing.T) {
	e := newEngine(t)
	sizes := []int{32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 32768}
	for _, size := range sizes {
		id := fmt.Sprintf("draw%d", size)
		e.Create(id, kind.Analyser, param.Bag{"fftSize": size})
		assert.Equal(t, uint(size/2), e.FrequencyBinCount(id), "create %d", size)
	}

	e.Create("draw", kind.Analyser, nil)
	assert.Equal(t, uint(unit.DefaultFFTSize/2), e.FrequencyBinCount("draw"))
	for _, size := range sizes {
		e.Update("draw", param.Bag{"fftSize": size})
		assert.Equal(t, uint(size/2), e.FrequencyBinCount("draw"), "update %d", size)
	}
	// invalid sizes keep current one
	for _, size := range []any{16, 100, 65536, "large"} {
		e.Update("draw", param.Bag{"fftSize": size})
		assert.Equal(t, uint(16384), e.FrequencyBinCount("draw"), "update %v", size)
	}
}

func TestRecording(t *testing.T) {
	e := newEngine(t, audiograph.WithPlayer(&mock.Player{}), audiograph.WithMaxRecording(1))
	e.Create("osc", kind.Oscillator, nil)
	e.Create("rec", kind.FileOutput, param.Bag{"recording": true})
	e.Connect("osc", "rec")

	_, err := e.Recording("osc")
	assert.ErrorIs(t, err, audiograph.ErrNotRecorder)

	require.True(t, <-e.Toggle())
	var wav []byte
	assert.Eventually(t, func() bool {
		wav, err = e.Recording("rec")
		return err == nil && len(wav) > 44+2*1024
	}, wait, time.Millisecond)
	require.False(t, <-e.Toggle())

	b, err := codec.Decode(wav)
	require.NoError(t, err)
	assert.Equal(t, 48000, b.SampleRate)
	assert.InDelta(t, 1, peak32(b.Data[0]), 0.01)
}

func peak32(samples []float64) float64 {
	var p float64
	for _, s := range samples {
		p = math.Max(p, math.Abs(s))
	}
	return p
}

func TestDerived(t *testing.T) {
	e := newEngine(t)
	payload, err := codec.WAV(make([]float64, 24000), 48000)
	require.NoError(t, err)

	e.Create("file", kind.FileInput, param.Bag{"buffer": payload})
	info, ok := e.Derived("file")["buffer"].(param.Bag)
	require.True(t, ok)
	assert.Equal(t, 48000, info["sampleRate"])
	assert.Equal(t, 24000, info["length"])
	assert.InDelta(t, 0.5, info["duration"], 1e-9)

	// invalid payload keeps previous buffer
	e.Update("file", param.Bag{"buffer": []byte("garbage")})
	assert.NotNil(t, e.Derived("file")["buffer"])

	e.Update("file", param.Bag{"buffer": nil})
	assert.Nil(t, e.Derived("file")["buffer"])
	assert.Nil(t, e.Derived("unknown"))
}

func TestClose(t *testing.T) {
	c := &mock.Capturer{}
	p := &mock.Player{}
	e, err := audiograph.New(audiograph.WithCapturer(c), audiograph.WithPlayer(p))
	require.NoError(t, err)

	r := e.Create("mic", kind.Microphone, nil)
	require.Equal(t, audiograph.Created, resolution(t, r).Status)
	require.True(t, <-e.Toggle())

	require.NoError(t, e.Close())
	assert.True(t, p.Closed())
	assert.False(t, p.Started())
	assert.Equal(t, 1, c.Released())
	assert.False(t, e.IsRunning())

	assert.NoError(t, e.Close())
	assert.False(t, <-e.Toggle())
	r = e.Create("osc", kind.Oscillator, nil)
	assert.ErrorIs(t, r.Err, audiograph.ErrClosed)
}

func TestCloseCancelsAcquisition(t *testing.T) {
	c := &mock.Capturer{Manual: true}
	e, err := audiograph.New(audiograph.WithCapturer(c))
	require.NoError(t, err)

	r := e.Create("mic", kind.Microphone, nil)
	require.NoError(t, e.Close())
	assert.Equal(t, audiograph.Cancelled, resolution(t, r).Status)
	assert.Zero(t, c.Opened())
}

func TestOptions(t *testing.T) {
	_, err := audiograph.New(audiograph.WithFormat(0, 128, 2))
	assert.Error(t, err)
	_, err = audiograph.New(audiograph.WithRegistry(nil))
	assert.Error(t, err)
	_, err = audiograph.New(audiograph.WithRegistry(kind.NewRegistry()))
	assert.ErrorIs(t, err, kind.ErrUnknownKind)
	_, err = audiograph.New(audiograph.WithMaxDelayTime(-1))
	assert.Error(t, err)
}
