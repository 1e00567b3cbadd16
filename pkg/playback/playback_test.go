package playback

import (
	"errors"
	"testing"

	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/matryer/is"
)

func TestMemorySink(t *testing.T) {
	is := is.New(t)

	s := NewMemorySink(audio.Mono16k)
	_, err := s.Write([]byte{1, 2})
	is.NoErr(err)
	_, err = s.Write([]byte{3, 4})
	is.NoErr(err)
	is.Equal(s.Bytes(), []byte{1, 2, 3, 4})
	is.Equal(s.Writes(), 2)

	is.NoErr(s.Close())
	<-s.Handle().Done()
	is.True(s.Closed())
}

func TestMemorySink_Kill(t *testing.T) {
	is := is.New(t)

	s := NewMemorySink(audio.Mono16k)
	h := s.Handle()
	is.NoErr(h.Kill())
	is.NoErr(h.Kill()) // idempotent
	<-h.Done()

	_, err := s.Write([]byte{1})
	is.True(errors.Is(err, ErrKilled))
	is.NoErr(s.Close()) // close after kill is fine
}

func TestMemoryOpener(t *testing.T) {
	is := is.New(t)

	open, opened := MemoryOpener()
	_, err := open(audio.Format{SampleRate: 24000, Channels: 1})
	is.NoErr(err)
	sinks := opened()
	is.Equal(len(sinks), 1)
	is.Equal(sinks[0].Format.SampleRate, 24000)
}

func TestFFPlayArgs(t *testing.T) {
	is := is.New(t)
	args := FFPlayArgs(audio.Format{SampleRate: 22050, Channels: 1})
	is.Equal(args[0], "ffplay")
	is.Equal(args[len(args)-1], "-")
	is.Equal(args[4], "22050")
}

func TestProcessSink_Cat(t *testing.T) {
	is := is.New(t)

	s, err := NewProcessSink([]string{"cat"}, nil)
	if err != nil {
		t.Skipf("cat unavailable: %v", err)
	}
	_, err = s.Write([]byte("pcm"))
	is.NoErr(err)
	is.NoErr(s.Close())
	<-s.Handle().Done()
}

func TestProcessSink_Kill(t *testing.T) {
	is := is.New(t)

	s, err := NewProcessSink([]string{"sleep", "30"}, nil)
	if err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	is.NoErr(s.Handle().Kill())
	<-s.Handle().Done()
	_, err = s.Write([]byte{0})
	is.True(errors.Is(err, ErrKilled))
	is.NoErr(s.Close())
}
