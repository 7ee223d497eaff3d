package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// DeviceSource captures from a PortAudio input device. Reads block on the
// driver, so the cadence is set by the hardware.
type DeviceSource struct {
	stream
}

// NewDeviceSource creates a source for the device selected by opts.DeviceID.
func NewDeviceSource(opts Options) *DeviceSource {
	d := &DeviceSource{}
	d.init(opts)
	return d
}

// Start opens the device and begins capturing.
func (d *DeviceSource) Start(ctx context.Context) (<-chan Chunk, error) {
	if !d.started.CompareAndSwap(false, true) {
		return nil, errAlreadyStarted
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %v", ErrDeviceUnavailable, err)
	}

	device, err := d.inputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	rate := d.opts.SampleRate
	if rate <= 0 {
		rate = int(device.DefaultSampleRate)
	}
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	buf := make([]float32, SamplesPerChunk(rate, d.opts.ChunkDuration))
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(rate),
		FramesPerBuffer: len(buf),
	}

	paStream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, openError("open audio stream", err)
	}
	if err := paStream.Start(); err != nil {
		paStream.Close()
		portaudio.Terminate()
		return nil, openError("start audio stream", err)
	}

	slog.Info("Capturing from audio device",
		"deviceName", device.Name,
		"sampleRate", rate,
		"framesPerBuffer", len(buf))

	go d.capture(ctx, paStream, buf, rate)
	return d.out, nil
}

func (d *DeviceSource) capture(ctx context.Context, paStream *portaudio.Stream, buf []float32, rate int) {
	defer close(d.out)
	defer portaudio.Terminate()
	defer paStream.Close()
	defer func() {
		if err := paStream.Stop(); err != nil {
			slog.Error("Failed to stop audio stream", "error", err)
		}
	}()

	d.pump(ctx, paStream.Read, buf, rate)
}

// pump reads into buf until stopped. A chunk already read when Stop is
// called is still emitted.
func (d *DeviceSource) pump(ctx context.Context, read func() error, buf []float32, rate int) {
	var captured int
	for {
		if d.stopped() || ctx.Err() != nil {
			slog.Debug("Audio device capture stopped", "samples", captured)
			return
		}

		if err := read(); err != nil {
			if !errors.Is(err, portaudio.InputOverflowed) {
				slog.Error("Audio device read failed", "error", err)
				d.fail(&DeviceError{Err: err})
				return
			}
			slog.Warn("Audio input overflowed", "timestamp", float64(captured)/float64(rate))
		}

		samples := make([]float32, len(buf))
		copy(samples, buf)
		d.emit(Chunk{
			Samples:    samples,
			SampleRate: rate,
			Timestamp:  float64(captured) / float64(rate),
		})
		captured += len(samples)
	}
}

// openError reports a device that exists but cannot be opened or started.
func openError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", ErrDeviceUnavailable, op, err)
}

func (d *DeviceSource) inputDevice() (*portaudio.DeviceInfo, error) {
	if d.opts.DeviceID > 0 { // Only use specific device if explicitly requested (non-zero)
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, openError("get audio devices", err)
		}
		if d.opts.DeviceID >= len(devices) {
			return nil, fmt.Errorf("%w: invalid device ID %d", ErrDeviceUnavailable, d.opts.DeviceID)
		}
		device := devices[d.opts.DeviceID]
		if device.MaxInputChannels == 0 {
			return nil, fmt.Errorf("%w: device %q is not an input device", ErrDeviceUnavailable, device.Name)
		}
		return device, nil
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return device, nil
}

// ListDevices returns the available input devices.
func ListDevices() ([]portaudio.DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	// Filter to only input devices
	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}
