// Package audio provides the capture side of the pipeline: sources that emit
// fixed-duration PCM chunks and the WAV container used to ship them.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultChunkDuration is the span of audio carried by a single chunk.
	DefaultChunkDuration = 100 * time.Millisecond

	// DefaultSampleRate is used by the simulated source and whenever a device
	// does not report a usable native rate.
	DefaultSampleRate = 44100

	// DefaultQueueSize is the number of chunks buffered between a source and
	// its consumer before chunks start being dropped.
	DefaultQueueSize = 256
)

// ErrDeviceUnavailable is returned by Start when there is no capture device.
var ErrDeviceUnavailable = errors.New("audio: no capture device available")

// DeviceError reports an unrecoverable failure of a running capture stream.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: capture device failed: %v", e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Chunk is one fixed-duration slice of mono audio. Samples are in [-1, 1] and
// Timestamp is seconds since the recording started.
type Chunk struct {
	Samples    []float32
	SampleRate int
	Timestamp  float64
}

// Duration returns the span of audio covered by the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Source produces a stream of chunks at a fixed cadence.
//
// Start returns the chunk channel, which is closed when the source stops or
// the device fails. After the channel is closed Err reports the failure, if
// any. Stop asks the producer to end after the chunk it is working on.
type Source interface {
	Start(ctx context.Context) (<-chan Chunk, error)
	Stop()
	Err() error
	Level() float32
}

// SamplesPerChunk returns how many samples span d at the given rate.
func SamplesPerChunk(sampleRate int, d time.Duration) int {
	return int(int64(sampleRate) * int64(d) / int64(time.Second))
}

// RMS returns the root mean square amplitude of samples.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
