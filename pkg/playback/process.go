package playback

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// FFPlayArgs returns an ffplay command line reading raw PCM from stdin.
func FFPlayArgs(format audio.Format) []string {
	return []string{
		"ffplay",
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(max(format.Channels, 1)),
		"-nodisp", "-autoexit", "-loglevel", "quiet",
		"-",
	}
}

// ProcessSink pipes PCM into an external player's stdin.
type ProcessSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	mu      sync.Mutex
	killed  bool
	done    chan struct{}
	waitErr error
}

var _ Sink = (*ProcessSink)(nil)

// NewProcessSink starts the player. args[0] is the executable.
func NewProcessSink(args []string, logger *slog.Logger) (*ProcessSink, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("empty player command")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, ai.NewDeviceError(err, "player stdin")
	}
	if err := cmd.Start(); err != nil {
		return nil, ai.NewDeviceError(err, "start "+args[0])
	}

	s := &ProcessSink{cmd: cmd, stdin: stdin, logger: logger, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(s.done)
	}()

	logger.Debug("Player started", slog.String("cmd", args[0]), slog.Int("pid", cmd.Process.Pid))
	return s, nil
}

// ProcessOpener opens a ProcessSink per reply using build to form the command.
func ProcessOpener(build func(audio.Format) []string, logger *slog.Logger) Opener {
	return func(format audio.Format) (Sink, error) {
		return NewProcessSink(build(format), logger)
	}
}

func (s *ProcessSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	killed := s.killed
	s.mu.Unlock()
	if killed {
		return 0, ErrKilled
	}
	n, err := s.stdin.Write(p)
	if err != nil {
		return n, ai.NewDeviceError(err, "write to player")
	}
	return n, nil
}

// Close ends input and waits for the player to drain and exit.
func (s *ProcessSink) Close() error {
	s.stdin.Close()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.killed || s.waitErr == nil {
		return nil
	}
	return ai.NewDeviceError(s.waitErr, "player exited")
}

func (s *ProcessSink) Handle() Handle {
	return &doneHandle{done: s.done, kill: s.kill}
}

func (s *ProcessSink) kill() error {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return nil
	}
	s.killed = true
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
	}
	s.stdin.Close()
	if err := s.cmd.Process.Kill(); err != nil {
		select {
		case <-s.done:
			return nil
		default:
			return err
		}
	}
	<-s.done
	return nil
}
