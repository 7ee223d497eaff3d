package scribe

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/metrics"
	"github.com/bosley/trascrivi/types"
)

// placeholderConfidence is reported for every fragment; the remote service
// returns no score.
const placeholderConfidence = 0.9

// Transcriber turns an encoded WAV buffer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Dispatcher sends flush units to a Transcriber. Every unit is dispatched on
// its own goroutine so a slow or failing request never holds back the next
// one; fragments are therefore delivered in completion order.
type Dispatcher struct {
	transcriber Transcriber
	interval    time.Duration
	metrics     *metrics.Metrics
}

// NewDispatcher creates a dispatcher. A nil transcriber disables
// transcription: units are consumed and discarded.
func NewDispatcher(t Transcriber, interval time.Duration, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Dispatcher{
		transcriber: t,
		interval:    interval,
		metrics:     m,
	}
}

// Dispatch encodes and transcribes a single unit.
//
// The fragment covers [WindowStart, WindowStart+interval). Its text is
// trimmed and may be empty.
func (d *Dispatcher) Dispatch(ctx context.Context, unit FlushUnit) (types.Fragment, error) {
	wav, err := audio.EncodeWAV(unit.Samples, unit.SampleRate)
	if err != nil {
		return types.Fragment{}, &TranscriptionError{Seq: unit.Seq, Detail: "encode", Err: err}
	}

	d.metrics.DispatchRequests.Inc()
	d.metrics.DispatchInFlight.Inc()
	start := time.Now()
	text, err := d.transcriber.Transcribe(ctx, wav)
	d.metrics.DispatchInFlight.Dec()
	d.metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		d.metrics.DispatchFailures.Inc()
		return types.Fragment{}, &TranscriptionError{Seq: unit.Seq, Detail: "request", Err: err}
	}

	return types.Fragment{
		Text:       strings.TrimSpace(text),
		Confidence: placeholderConfidence,
		StartTime:  unit.WindowStart,
		EndTime:    unit.WindowStart + d.interval.Seconds(),
	}, nil
}

// Run dispatches every unit received on in and sends non-empty fragments to
// out. It returns once in is closed and all outstanding requests have
// completed, closing out.
func (d *Dispatcher) Run(ctx context.Context, in <-chan FlushUnit, out chan<- types.Fragment) error {
	defer close(out)

	if d.transcriber == nil {
		slog.Warn("No API key configured, recording without transcription")
		for range in {
		}
		return nil
	}

	var wg sync.WaitGroup
	for unit := range in {
		wg.Add(1)
		go func(unit FlushUnit) {
			defer wg.Done()
			d.handle(ctx, unit, out)
		}(unit)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, unit FlushUnit, out chan<- types.Fragment) {
	slog.Debug("Dispatching audio window",
		"seq", unit.Seq,
		"windowStart", unit.WindowStart,
		"duration", unit.Duration())

	frag, err := d.Dispatch(ctx, unit)
	if err != nil {
		slog.Error("Failed to transcribe audio window",
			"error", err,
			"seq", unit.Seq)
		return
	}

	if frag.Text == "" {
		d.metrics.FragmentsEmpty.Inc()
		slog.Debug("No transcribable content in window", "seq", unit.Seq)
		return
	}

	select {
	case out <- frag:
	case <-ctx.Done():
	}
}
