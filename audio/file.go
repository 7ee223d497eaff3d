package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/youpy/go-wav"
)

// FileSource replays a 16-bit PCM WAV file at its natural pace, as if it were
// being captured live. Stereo files are mixed down to mono. The stream closes
// without error when the file is exhausted.
type FileSource struct {
	stream
	path string
}

// NewFileSource creates a source replaying the WAV file at path.
func NewFileSource(path string, opts Options) *FileSource {
	f := &FileSource{path: path}
	f.init(opts)
	return f
}

// Start opens the file and begins replaying it.
func (f *FileSource) Start(ctx context.Context) (<-chan Chunk, error) {
	if !f.started.CompareAndSwap(false, true) {
		return nil, errAlreadyStarted
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: failed to read WAV format: %v", ErrDeviceUnavailable, err)
	}
	if format.BitsPerSample != bitsPerSample || format.NumChannels < 1 || format.NumChannels > 2 {
		file.Close()
		return nil, fmt.Errorf("%w: unsupported WAV layout: %d channels, %d bits",
			ErrDeviceUnavailable, format.NumChannels, format.BitsPerSample)
	}

	slog.Info("Replaying audio file",
		"file", f.path,
		"sampleRate", format.SampleRate,
		"channels", format.NumChannels)

	go f.replay(ctx, file, reader, int(format.SampleRate), int(format.NumChannels))
	return f.out, nil
}

func (f *FileSource) replay(ctx context.Context, file *os.File, reader *wav.Reader, rate, numChannels int) {
	defer close(f.out)
	defer file.Close()

	ticker := time.NewTicker(f.opts.ChunkDuration)
	defer ticker.Stop()

	perChunk := SamplesPerChunk(rate, f.opts.ChunkDuration)
	var produced int
	for {
		if f.stopped() || ctx.Err() != nil {
			return
		}

		frames, err := reader.ReadSamples(uint32(perChunk))
		if len(frames) > 0 {
			samples := make([]float32, len(frames))
			for i, frame := range frames {
				var sum float32
				for c := 0; c < numChannels; c++ {
					sum += FromPCM16(int16(frame.Values[c]))
				}
				samples[i] = sum / float32(numChannels)
			}
			f.emit(Chunk{
				Samples:    samples,
				SampleRate: rate,
				Timestamp:  float64(produced) / float64(rate),
			})
			produced += len(frames)
		}

		if errors.Is(err, io.EOF) {
			slog.Info("Finished replaying audio file",
				"file", f.path,
				"seconds", float64(produced)/float64(rate))
			return
		}
		if err != nil {
			f.fail(&DeviceError{Err: err})
			return
		}

		select {
		case <-ctx.Done():
		case <-f.done:
		case <-ticker.C:
		}
	}
}
