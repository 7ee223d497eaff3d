package scribe

import (
	"context"
	"log/slog"
	"time"

	"github.com/bosley/trascrivi/audio"
	"github.com/bosley/trascrivi/metrics"
)

// Accumulator collects chunks into windows of exactly one flush interval.
//
// A unit is emitted as soon as the buffer holds at least rate*interval
// samples; exactly that many samples are emitted and the remainder starts the
// next window. Every sample therefore lands in exactly one unit and a partial
// window left when the input closes is dropped. When a chunk's timestamp jumps
// ahead of the buffered audio (chunks were dropped upstream), the partial
// window is flushed and the next one starts at the chunk's timestamp. It is
// not safe for concurrent use.
type Accumulator struct {
	interval time.Duration
	metrics  *metrics.Metrics

	buf         []float32
	rate        int
	windowStart float64
	seq         int
}

// NewAccumulator creates an accumulator flushing every interval of audio.
func NewAccumulator(interval time.Duration, m *metrics.Metrics) *Accumulator {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Accumulator{interval: interval, metrics: m}
}

// Add appends a chunk and returns the units it completed, if any.
func (a *Accumulator) Add(c audio.Chunk) []FlushUnit {
	if len(c.Samples) == 0 || c.SampleRate <= 0 {
		return nil
	}

	var units []FlushUnit
	if len(a.buf) > 0 && c.SampleRate != a.rate {
		slog.Warn("Sample rate changed mid-window, flushing partial window",
			"from", a.rate,
			"to", c.SampleRate)
		units = append(units, a.take(len(a.buf)))
	}
	if gap := c.Timestamp - a.bufferedUntil(); len(a.buf) > 0 && gap > c.Duration().Seconds()/2 {
		slog.Warn("Gap in captured audio, flushing partial window",
			"expected", a.bufferedUntil(),
			"timestamp", c.Timestamp)
		units = append(units, a.take(len(a.buf)))
	}
	if len(a.buf) == 0 {
		a.rate = c.SampleRate
		a.windowStart = c.Timestamp
	}
	a.buf = append(a.buf, c.Samples...)

	need := audio.SamplesPerChunk(a.rate, a.interval)
	if need < 1 {
		need = 1
	}
	for len(a.buf) >= need {
		units = append(units, a.take(need))
	}
	return units
}

func (a *Accumulator) take(n int) FlushUnit {
	samples := make([]float32, n)
	copy(samples, a.buf[:n])
	unit := FlushUnit{
		Seq:         a.seq,
		Samples:     samples,
		SampleRate:  a.rate,
		WindowStart: a.windowStart,
	}
	a.seq++

	rest := copy(a.buf, a.buf[n:])
	a.buf = a.buf[:rest]
	a.windowStart += float64(n) / float64(a.rate)

	a.metrics.FlushUnits.Inc()
	return unit
}

// bufferedUntil is the capture time just past the last buffered sample.
func (a *Accumulator) bufferedUntil() float64 {
	if a.rate <= 0 {
		return a.windowStart
	}
	return a.windowStart + float64(len(a.buf))/float64(a.rate)
}

// Pending returns the duration of audio waiting for the next flush.
func (a *Accumulator) Pending() time.Duration {
	if a.rate <= 0 {
		return 0
	}
	return time.Duration(len(a.buf)) * time.Second / time.Duration(a.rate)
}

// Run consumes chunks until in is closed, sending completed units to out.
// It closes out when it returns.
func (a *Accumulator) Run(ctx context.Context, in <-chan audio.Chunk, out chan<- FlushUnit) error {
	defer close(out)

	for chunk := range in {
		a.metrics.ChunksCaptured.Inc()
		for _, unit := range a.Add(chunk) {
			slog.Debug("Flushing audio window",
				"seq", unit.Seq,
				"windowStart", unit.WindowStart,
				"samples", len(unit.Samples))
			select {
			case out <- unit:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if pending := a.Pending(); pending > 0 {
		slog.Debug("Dropping partial window at end of stream", "pending", pending)
	}
	return nil
}
