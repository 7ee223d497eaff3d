package scribe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bosley/trascrivi/audio"
)

const (
	testRate     = 1000
	testInterval = 100 * time.Millisecond
	testUnit     = 100 // samples per unit at testRate and testInterval
)

// fakeSource is a capture source driven by the test.
type fakeSource struct {
	chunks   chan audio.Chunk
	startErr error
	stopOnce sync.Once

	mu  sync.Mutex
	err error
}

func newFakeSource() *fakeSource {
	return &fakeSource{chunks: make(chan audio.Chunk, 64)}
}

func (f *fakeSource) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.chunks, nil
}

func (f *fakeSource) Stop() {
	f.stopOnce.Do(func() { close(f.chunks) })
}

func (f *fakeSource) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeSource) Level() float32 { return 0.25 }

func (f *fakeSource) failWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.Stop()
}

// push sends one full unit of constant-valued samples.
func (f *fakeSource) push(value float32, timestamp float64) {
	f.chunks <- testChunk(testUnit, value, timestamp)
}

func testChunk(n int, value float32, timestamp float64) audio.Chunk {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return audio.Chunk{Samples: samples, SampleRate: testRate, Timestamp: timestamp}
}

type transcriberFunc func(ctx context.Context, wav []byte) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return f(ctx, wav)
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// eventSink records notifications for later inspection.
type eventSink struct {
	events chan Event
}

func newEventSink() *eventSink {
	return &eventSink{events: make(chan Event, 128)}
}

func (s *eventSink) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (s *eventSink) drain() []Event {
	var out []Event
	for {
		select {
		case e := <-s.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for signal")
	}
}
