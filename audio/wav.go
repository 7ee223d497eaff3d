package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/youpy/go-wav"
)

const (
	channels      = 1  // Mono audio
	bitsPerSample = 16 // Using int16 for samples
)

// ToPCM16 maps an amplitude in [-1, 1] to a signed 16-bit sample using
// round(s * 32767), clamped to the int16 range.
func ToPCM16(s float32) int16 {
	v := math.Round(float64(s) * math.MaxInt16)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// FromPCM16 is the inverse of ToPCM16.
func FromPCM16(v int16) float32 {
	return float32(v) / math.MaxInt16
}

// EncodeWAV wraps samples in a mono 16-bit PCM WAV container.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	writer := wav.NewWriter(buf, uint32(len(samples)), channels, uint32(sampleRate), bitsPerSample)

	pcm := make([]wav.Sample, len(samples))
	for i, s := range samples {
		pcm[i].Values[0] = int(ToPCM16(s))
	}
	if err := writer.WriteSamples(pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV reads a mono 16-bit PCM WAV container back into amplitudes.
func DecodeWAV(data []byte) ([]float32, int, error) {
	reader := wav.NewReader(bytes.NewReader(data))

	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV format: %w", err)
	}
	if format.NumChannels != channels || format.BitsPerSample != bitsPerSample {
		return nil, 0, fmt.Errorf("unsupported WAV layout: %d channels, %d bits",
			format.NumChannels, format.BitsPerSample)
	}

	var samples []float32
	for {
		block, err := reader.ReadSamples()
		for _, s := range block {
			samples = append(samples, FromPCM16(int16(s.Values[0])))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read WAV samples: %w", err)
		}
	}

	return samples, int(format.SampleRate), nil
}
