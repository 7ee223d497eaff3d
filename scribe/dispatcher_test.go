package scribe

import (
	"context"
	"errors"
	"testing"

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlushUnit(seq int, value float32) FlushUnit {
	c := testChunk(testUnit, value, 0)
	return FlushUnit{
		Seq:         seq,
		Samples:     c.Samples,
		SampleRate:  testRate,
		WindowStart: float64(seq) * testInterval.Seconds(),
	}
}

// valueOf recovers the constant sample value a test unit was built with.
func valueOf(t *testing.T, wav []byte) float32 {
	samples, rate, err := audio.DecodeWAV(wav)
	if !assert.NoError(t, err) || !assert.NotEmpty(t, samples) {
		return 0
	}
	assert.Equal(t, testRate, rate)
	return samples[0]
}

func TestDispatchBuildsFragment(t *testing.T) {
	var gotValue float32
	d := NewDispatcher(transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		gotValue = valueOf(t, wav)
		return "  ciao a tutti \n", nil
	}), testInterval, nil)

	frag, err := d.Dispatch(context.Background(), testFlushUnit(3, 0.5))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, gotValue, 1e-4)
	assert.Equal(t, "ciao a tutti", frag.Text)
	assert.InDelta(t, 0.3, frag.StartTime, 1e-9)
	assert.InDelta(t, 0.4, frag.EndTime, 1e-9)
	assert.InDelta(t, 0.9, frag.Confidence, 1e-6)
	assert.False(t, frag.IsFinal)
}

func TestDispatchWrapsFailure(t *testing.T) {
	cause := errors.New("connection reset")
	d := NewDispatcher(transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		return "", cause
	}), testInterval, nil)

	_, err := d.Dispatch(context.Background(), testFlushUnit(2, 0.1))

	var terr *TranscriptionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Seq)
	assert.ErrorIs(t, err, cause)
}

func TestDispatchRejectsEmptyUnit(t *testing.T) {
	d := NewDispatcher(transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		t.Fatal("transcriber must not be called")
		return "", nil
	}), testInterval, nil)

	_, err := d.Dispatch(context.Background(), FlushUnit{SampleRate: testRate})
	var terr *TranscriptionError
	assert.ErrorAs(t, err, &terr)
}

func TestDispatcherRunSkipsFailuresAndEmptyText(t *testing.T) {
	d := NewDispatcher(transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		switch v := valueOf(t, wav); {
		case v < 0.2:
			return "", errors.New("boom")
		case v < 0.4:
			return "   ", nil
		default:
			return "ok", nil
		}
	}), testInterval, nil)

	in := make(chan FlushUnit, 3)
	out := make(chan types.Fragment, 3)
	in <- testFlushUnit(0, 0.1)
	in <- testFlushUnit(1, 0.3)
	in <- testFlushUnit(2, 0.5)
	close(in)

	require.NoError(t, d.Run(context.Background(), in, out))

	var frags []types.Fragment
	for f := range out {
		frags = append(frags, f)
	}
	require.Len(t, frags, 1)
	assert.Equal(t, "ok", frags[0].Text)
	assert.InDelta(t, 0.2, frags[0].StartTime, 1e-9)
}

func TestDispatcherRunWithoutTranscriberDrains(t *testing.T) {
	d := NewDispatcher(nil, testInterval, nil)

	in := make(chan FlushUnit, 2)
	out := make(chan types.Fragment, 2)
	in <- testFlushUnit(0, 0.1)
	in <- testFlushUnit(1, 0.1)
	close(in)

	require.NoError(t, d.Run(context.Background(), in, out))
	_, ok := <-out
	assert.False(t, ok)
}
