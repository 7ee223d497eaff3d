package audio

import (
	"context"
	"log/slog"
	"math"
	"time"
)

const (
	toneFrequency = 440.0
	toneAmplitude = 0.1
)

// SimulatedSource is a self-clocked source producing a quiet sine tone. It is
// used when no capture hardware is wanted and in tests.
type SimulatedSource struct {
	stream
	rate int
}

// NewSimulatedSource creates a simulated source.
func NewSimulatedSource(opts Options) *SimulatedSource {
	s := &SimulatedSource{}
	s.init(opts)
	s.rate = s.opts.SampleRate
	if s.rate <= 0 {
		s.rate = DefaultSampleRate
	}
	return s
}

// Start begins producing one chunk per ChunkDuration.
func (s *SimulatedSource) Start(ctx context.Context) (<-chan Chunk, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, errAlreadyStarted
	}

	slog.Debug("Starting simulated audio source",
		"sampleRate", s.rate,
		"chunkDuration", s.opts.ChunkDuration)

	go s.produce(ctx)
	return s.out, nil
}

func (s *SimulatedSource) produce(ctx context.Context) {
	defer close(s.out)

	ticker := time.NewTicker(s.opts.ChunkDuration)
	defer ticker.Stop()

	perChunk := SamplesPerChunk(s.rate, s.opts.ChunkDuration)
	var produced int
	for {
		if s.stopped() || ctx.Err() != nil {
			slog.Debug("Simulated audio source stopped", "samples", produced)
			return
		}

		samples := make([]float32, perChunk)
		for i := range samples {
			t := float64(produced+i) / float64(s.rate)
			samples[i] = float32(math.Sin(2*math.Pi*toneFrequency*t) * toneAmplitude)
		}
		s.emit(Chunk{
			Samples:    samples,
			SampleRate: s.rate,
			Timestamp:  float64(produced) / float64(s.rate),
		})
		produced += perChunk

		select {
		case <-ctx.Done():
		case <-s.done:
		case <-ticker.C:
		}
	}
}
