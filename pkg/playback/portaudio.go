package playback

import (
	"log/slog"
	"sync"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

const portAudioFramesPerBuffer = 1024

// PortAudioSink plays PCM on the default output device.
type PortAudioSink struct {
	stream *portaudio.Stream
	buf    []int16
	queue  chan []byte
	stop   chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	killed bool
	closed bool
	done   chan struct{}
	err    error
}

var _ Sink = (*PortAudioSink)(nil)

// NewPortAudioSink opens an output stream for format.
func NewPortAudioSink(format audio.Format, logger *slog.Logger) (*PortAudioSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, ai.NewDeviceError(err, "portaudio initialize")
	}

	channels := max(format.Channels, 1)
	buf := make([]int16, portAudioFramesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(format.SampleRate), portAudioFramesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, ai.NewDeviceError(err, "open output stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, ai.NewDeviceError(err, "start output stream")
	}

	s := &PortAudioSink{
		stream: stream,
		buf:    buf,
		queue:  make(chan []byte, 256),
		stop:   make(chan struct{}),
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.play()
	return s, nil
}

// PortAudioOpener opens a PortAudioSink per reply.
func PortAudioOpener(logger *slog.Logger) Opener {
	return func(format audio.Format) (Sink, error) {
		return NewPortAudioSink(format, logger)
	}
}

func (s *PortAudioSink) play() {
	defer func() {
		s.stream.Close()
		portaudio.Terminate()
		close(s.done)
	}()

	var pending []int16
	flush := func(final bool) bool {
		for len(pending) >= len(s.buf) || (final && len(pending) > 0) {
			if s.isKilled() {
				return false
			}
			n := copy(s.buf, pending)
			clear(s.buf[n:])
			pending = pending[n:]
			if err := s.stream.Write(); err != nil && !s.isKilled() {
				s.mu.Lock()
				s.err = ai.NewDeviceError(err, "write output stream")
				s.mu.Unlock()
				return false
			}
		}
		return true
	}

	for {
		select {
		case chunk, ok := <-s.queue:
			if !ok {
				if flush(true) {
					s.stream.Stop()
				}
				return
			}
			pending = append(pending, audio.DecodePCM(chunk)...)
			if !flush(false) {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *PortAudioSink) isKilled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

// Write queues PCM. It is not safe to call concurrently with Close.
func (s *PortAudioSink) Write(p []byte) (int, error) {
	select {
	case s.queue <- append([]byte(nil), p...):
		return len(p), nil
	case <-s.stop:
		return 0, ErrKilled
	case <-s.done:
		return 0, ErrKilled
	}
}

func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PortAudioSink) Handle() Handle {
	return &doneHandle{done: s.done, kill: s.kill}
}

func (s *PortAudioSink) kill() error {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return nil
	}
	s.killed = true
	close(s.stop)
	s.mu.Unlock()

	if err := s.stream.Abort(); err != nil {
		s.logger.Debug("Abort output stream", slog.String("error", err.Error()))
	}
	<-s.done
	return nil
}
