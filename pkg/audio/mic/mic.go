// Package mic captures microphone frames through PortAudio.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio device.
type Device struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListDevices returns every device PortAudio can see.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, ai.NewDeviceError(err, "portaudio initialize")
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, ai.NewDeviceError(err, "list devices")
	}

	devices := make([]Device, 0, len(infos))
	for i, info := range infos {
		d := Device{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Config configures a microphone source.
type Config struct {
	// DeviceIndex selects an input device from ListDevices. Negative means
	// the system default.
	DeviceIndex int
	// Buffer is how many frames may queue before the oldest is dropped.
	Buffer int
	Logger *slog.Logger
}

// Source is an audio.FrameSource reading 16 kHz mono frames from a device.
type Source struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	frames  chan audio.Frame
	errs    chan error
	stop    chan struct{}
	done    chan struct{}
	dropped int
}

var _ audio.FrameSource = (*Source)(nil)

// New creates a microphone source. Nothing is opened until Start.
func New(cfg Config) *Source {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, logger: logger.With(slog.String("component", "mic"))}
}

// Start opens the device and begins capturing in the background.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return ai.NewDeviceError(err, "portaudio initialize")
	}

	buf := make([]int16, audio.FrameLength)
	stream, err := s.open(buf)
	if err != nil {
		portaudio.Terminate()
		return ai.NewDeviceError(err, "open input stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return ai.NewDeviceError(err, "start input stream")
	}

	s.stream = stream
	s.frames = make(chan audio.Frame, s.cfg.Buffer)
	s.errs = make(chan error, 1)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.capture(stream, buf, s.frames, s.errs, s.stop, s.done)

	s.logger.Info("Microphone started", slog.Int("device", s.cfg.DeviceIndex))
	return nil
}

func (s *Source) open(buf []int16) (*portaudio.Stream, error) {
	if s.cfg.DeviceIndex < 0 {
		return portaudio.OpenDefaultStream(1, 0, audio.SampleRate, len(buf), buf)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if s.cfg.DeviceIndex >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", s.cfg.DeviceIndex, len(devices))
	}
	dev := devices[s.cfg.DeviceIndex]
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", dev.Name)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      audio.SampleRate,
		FramesPerBuffer: len(buf),
	}
	return portaudio.OpenStream(params, buf)
}

func (s *Source) capture(stream *portaudio.Stream, buf []int16, frames chan audio.Frame, errs chan error, stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.logger.Debug("Input overflowed")
				continue
			}
			select {
			case errs <- ai.NewDeviceError(err, "read input stream"):
			default:
			}
			return
		}

		frame := audio.Frame(buf).Clone()
		select {
		case frames <- frame:
		default:
			// Consumer fell behind: drop the oldest so capture stays live.
			select {
			case <-frames:
			default:
			}
			frames <- frame
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		}
	}
}

// Read returns the next captured frame.
func (s *Source) Read(ctx context.Context) (audio.Frame, error) {
	s.mu.Lock()
	frames, errs := s.frames, s.errs
	s.mu.Unlock()

	if frames == nil {
		return nil, audio.ErrNotStarted
	}

	select {
	case f := <-frames:
		return f, nil
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop halts capture and releases the device. The source can be started
// again afterwards.
func (s *Source) Stop() error {
	s.mu.Lock()
	stream, stop, done, dropped := s.stream, s.stop, s.done, s.dropped
	s.stream, s.frames, s.errs, s.dropped = nil, nil, nil, 0
	s.mu.Unlock()

	if stream == nil {
		return nil
	}

	close(stop)
	err := stream.Stop()
	<-done
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()

	s.logger.Info("Microphone stopped", slog.Int("dropped_frames", dropped))
	if err != nil {
		return ai.NewDeviceError(err, "stop input stream")
	}
	return nil
}

// Close is Stop.
func (s *Source) Close() error {
	return s.Stop()
}
