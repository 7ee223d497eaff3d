package audio

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

var errAlreadyStarted = errors.New("audio: source already started")

// Options configures a Source. Zero values are replaced with defaults.
type Options struct {
	// SampleRate requested from the device. Zero selects the device's native
	// rate (or DefaultSampleRate for the simulated source).
	SampleRate int

	// ChunkDuration is the span of each emitted chunk.
	ChunkDuration time.Duration

	// QueueSize is the capacity of the chunk channel.
	QueueSize int

	// DeviceID selects a PortAudio device index. Zero uses the default input.
	DeviceID int

	// OnDrop is called whenever a chunk is dropped because the queue is full.
	OnDrop func()
}

func (o Options) withDefaults() Options {
	if o.ChunkDuration <= 0 {
		o.ChunkDuration = DefaultChunkDuration
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	return o
}

// stream holds the state shared by every Source implementation: the outgoing
// queue, the stop flag, the last audio level and the terminal error.
type stream struct {
	opts Options
	out  chan Chunk

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	level    atomic.Uint32

	mu  sync.Mutex
	err error
}

func (s *stream) init(opts Options) {
	s.opts = opts.withDefaults()
	s.out = make(chan Chunk, s.opts.QueueSize)
	s.done = make(chan struct{})
}

// Stop signals the producer to end the stream after its current chunk.
func (s *stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *stream) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Err returns the device failure that ended the stream, if any.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Level returns the RMS amplitude of the most recently emitted chunk.
func (s *stream) Level() float32 {
	return math.Float32frombits(s.level.Load())
}

// emit hands a chunk to the consumer without ever blocking the producer.
func (s *stream) emit(c Chunk) {
	s.level.Store(math.Float32bits(RMS(c.Samples)))

	select {
	case s.out <- c:
	default:
		slog.Warn("Audio queue full, dropping chunk",
			"timestamp", c.Timestamp,
			"queueSize", cap(s.out))
		if s.opts.OnDrop != nil {
			s.opts.OnDrop()
		}
	}
}
