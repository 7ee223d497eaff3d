package scribe

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/store"
	"github.com/bosley/trascrivi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T, src *fakeSource, tr Transcriber) (*Recorder, *eventSink, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	sink := newEventSink()
	r := NewRecorder(RecorderConfig{
		NewSource:      func() audio.Source { return src },
		NewTranscriber: func() Transcriber { return tr },
		Store:          st,
		Notifier:       NotifierFunc(func(e Event) { sink.events <- e }),
		FlushInterval:  testInterval,
		QueueSize:      8,
	})
	t.Cleanup(r.Wait)
	return r, sink, st
}

func fragmentOf(t *testing.T, e Event) types.Fragment {
	t.Helper()
	require.Equal(t, EventTranscriptionChunk, e.Type)
	frag, ok := e.Payload.(types.Fragment)
	require.True(t, ok)
	return frag
}

func TestSessionApply(t *testing.T) {
	var s Session

	assert.True(t, s.apply(types.Fragment{Text: " Buongiorno ", EndTime: 2}))
	assert.Equal(t, "Buongiorno", s.Text)

	assert.False(t, s.apply(types.Fragment{Text: "  \t", EndTime: 10}))
	assert.Equal(t, "Buongiorno", s.Text)
	assert.Equal(t, 2.0, s.Duration)

	assert.True(t, s.apply(types.Fragment{Text: "a tutti", EndTime: 4}))
	assert.Equal(t, "Buongiorno a tutti", s.Text)
	assert.Equal(t, 4.0, s.Duration)
}

func TestSessionDurationIsMonotonic(t *testing.T) {
	ends := []float64{4, 2, 6, 2, 8, 6}
	var s Session
	prev := 0.0
	for i, end := range ends {
		s.apply(types.Fragment{Text: fmt.Sprintf("f%d", i), EndTime: end})
		assert.GreaterOrEqual(t, s.Duration, prev)
		prev = s.Duration
	}
	assert.Equal(t, 8.0, s.Duration)
	assert.Equal(t, "f0 f1 f2 f3 f4 f5", s.Text)
}

func TestRecorderMergesFragments(t *testing.T) {
	src := newFakeSource()
	var calls atomic.Int32
	r, sink, st := newTestRecorder(t, src, transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		if calls.Add(1) == 1 {
			return "hello", nil
		}
		return "world", nil
	}))

	id, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Active())

	src.push(0.1, 0)
	assert.Equal(t, "hello", fragmentOf(t, sink.next(t)).Text)
	src.push(0.1, 0.1)
	assert.Equal(t, "world", fragmentOf(t, sink.next(t)).Text)

	state, err := r.State()
	require.NoError(t, err)
	assert.True(t, state.Recording)
	assert.Equal(t, id, state.TranscriptID)
	assert.Equal(t, "hello world", state.Text)
	assert.InDelta(t, 0.2, state.Duration, 1e-9)
	assert.Equal(t, float32(0.25), state.AudioLevel)

	transcript, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, id, transcript.ID)
	assert.Equal(t, "hello world", transcript.RawText)
	assert.Equal(t, types.Completed, transcript.Status)
	assert.Equal(t, "New Transcription", transcript.Title)
	assert.Empty(t, transcript.Chapters)
	assert.False(t, r.Active())

	stopped := sink.next(t)
	assert.Equal(t, EventRecordingStopped, stopped.Type)
	assert.Equal(t, id, stopped.TranscriptID)

	saved, err := st.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "hello world", saved.RawText)
	assert.InDelta(t, 0.2, saved.Duration, 1e-9)
}

func TestRecorderRejectsSecondStart(t *testing.T) {
	src := newFakeSource()
	r, _, _ := newTestRecorder(t, src, nil)

	_, err := r.Start(context.Background())
	require.NoError(t, err)

	_, err = r.Start(context.Background())
	assert.ErrorIs(t, err, ErrSessionActive)

	_, err = r.Stop()
	assert.NoError(t, err)
}

func TestRecorderWithoutSession(t *testing.T) {
	r, _, _ := newTestRecorder(t, newFakeSource(), nil)

	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = r.State()
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRecorderDeviceUnavailable(t *testing.T) {
	src := newFakeSource()
	src.startErr = fmt.Errorf("%w: no default input", audio.ErrDeviceUnavailable)
	r, _, _ := newTestRecorder(t, src, nil)

	_, err := r.Start(context.Background())
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.False(t, r.Active())
}

func TestRecorderDispatchFailureDoesNotBlockNext(t *testing.T) {
	src := newFakeSource()
	failed := make(chan struct{}, 1)
	var calls atomic.Int32
	r, sink, _ := newTestRecorder(t, src, transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		if calls.Add(1) == 1 {
			failed <- struct{}{}
			return "", errors.New("service unavailable")
		}
		return "ok", nil
	}))

	_, err := r.Start(context.Background())
	require.NoError(t, err)

	src.push(0.1, 0)
	waitSignal(t, failed)
	src.push(0.1, 0.1)
	frag := fragmentOf(t, sink.next(t))
	assert.Equal(t, "ok", frag.Text)

	transcript, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, "ok", transcript.RawText)
	assert.InDelta(t, 0.2, transcript.Duration, 1e-9)
}

func TestRecorderMergesInArrivalOrder(t *testing.T) {
	src := newFakeSource()
	release := make(chan struct{})
	r, sink, _ := newTestRecorder(t, src, transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		if valueOf(t, wav) < 0.3 {
			<-release
			return "first", nil
		}
		return "second", nil
	}))

	_, err := r.Start(context.Background())
	require.NoError(t, err)

	src.push(0.1, 0)
	src.push(0.5, 0.1)
	assert.Equal(t, "second", fragmentOf(t, sink.next(t)).Text)

	state, err := r.State()
	require.NoError(t, err)
	assert.InDelta(t, 0.2, state.Duration, 1e-9)

	close(release)
	assert.Equal(t, "first", fragmentOf(t, sink.next(t)).Text)

	transcript, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, "second first", transcript.RawText)
	assert.InDelta(t, 0.2, transcript.Duration, 1e-9)
}

func TestRecorderDiscardsLateFragment(t *testing.T) {
	src := newFakeSource()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	r, sink, st := newTestRecorder(t, src, transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		if calls.Add(1) == 1 {
			return "early", nil
		}
		started <- struct{}{}
		<-release
		return "late", nil
	}))

	id, err := r.Start(context.Background())
	require.NoError(t, err)

	src.push(0.1, 0)
	assert.Equal(t, "early", fragmentOf(t, sink.next(t)).Text)
	src.push(0.1, 0.1)
	waitSignal(t, started)

	transcript, err := r.Stop()
	require.NoError(t, err)
	assert.Equal(t, "early", transcript.RawText)

	close(release)
	r.Wait()

	for _, e := range sink.drain() {
		assert.NotEqual(t, EventTranscriptionChunk, e.Type)
	}
	saved, err := st.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "early", saved.RawText)
	assert.InDelta(t, 0.1, saved.Duration, 1e-9)
}

func TestRecorderDeviceErrorFinalizesSession(t *testing.T) {
	src := newFakeSource()
	r, sink, st := newTestRecorder(t, src, transcriberFunc(func(ctx context.Context, wav []byte) (string, error) {
		return "prima", nil
	}))

	id, err := r.Start(context.Background())
	require.NoError(t, err)

	src.push(0.1, 0)
	fragmentOf(t, sink.next(t))

	src.failWith(&audio.DeviceError{Err: errors.New("device unplugged")})

	e := sink.next(t)
	require.Equal(t, EventRecordingError, e.Type)
	transcript, ok := e.Payload.(*types.Transcript)
	require.True(t, ok)
	assert.Equal(t, types.StatusError, transcript.Status.Kind)
	assert.Contains(t, transcript.Status.Reason, "device unplugged")
	assert.Equal(t, "prima", transcript.RawText)

	assert.False(t, r.Active())
	_, err = r.Stop()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	saved, err := st.Load(id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, saved.Status.Kind)
}

func TestRecorderWithoutTranscriber(t *testing.T) {
	src := newFakeSource()
	r, sink, _ := newTestRecorder(t, src, nil)

	_, err := r.Start(context.Background())
	require.NoError(t, err)
	src.push(0.1, 0)
	src.push(0.1, 0.1)

	transcript, err := r.Stop()
	require.NoError(t, err)
	assert.Empty(t, transcript.RawText)
	assert.Equal(t, types.Completed, transcript.Status)

	r.Wait()
	for _, e := range sink.drain() {
		assert.NotEqual(t, EventTranscriptionChunk, e.Type)
	}
}
