package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSourceCadence(t *testing.T) {
	src := NewSimulatedSource(Options{SampleRate: 8000, ChunkDuration: 10 * time.Millisecond})

	chunks, err := src.Start(context.Background())
	require.NoError(t, err)

	var got []Chunk
	for c := range chunks {
		got = append(got, c)
		if len(got) == 5 {
			src.Stop()
		}
	}

	require.GreaterOrEqual(t, len(got), 5)
	assert.LessOrEqual(t, len(got), 7, "stream must end shortly after Stop")
	for i, c := range got {
		assert.Len(t, c.Samples, 80)
		assert.Equal(t, 8000, c.SampleRate)
		assert.InDelta(t, float64(i)*0.01, c.Timestamp, 1e-9)
		assert.Equal(t, 10*time.Millisecond, c.Duration())
	}
	assert.NoError(t, src.Err())
	assert.Greater(t, src.Level(), float32(0))
}

func TestSimulatedSourceStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewSimulatedSource(Options{ChunkDuration: 5 * time.Millisecond})

	chunks, err := src.Start(ctx)
	require.NoError(t, err)
	<-chunks
	cancel()

	done := make(chan struct{})
	go func() {
		for range chunks {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("source did not close its stream after cancellation")
	}
}

func TestSimulatedSourceDropsWhenQueueFull(t *testing.T) {
	dropped := make(chan struct{}, 100)
	src := NewSimulatedSource(Options{
		ChunkDuration: time.Millisecond,
		QueueSize:     1,
		OnDrop:        func() { dropped <- struct{}{} },
	})

	chunks, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("expected a dropped chunk while nobody was reading")
	}
	_, ok := <-chunks
	assert.True(t, ok)
}

func TestSimulatedSourceSingleUse(t *testing.T) {
	src := NewSimulatedSource(Options{})
	_, err := src.Start(context.Background())
	require.NoError(t, err)
	defer src.Stop()

	_, err = src.Start(context.Background())
	assert.Error(t, err)
}
