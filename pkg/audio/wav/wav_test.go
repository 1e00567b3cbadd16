package wav

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/matryer/is"
)

func TestEncodeDecode(t *testing.T) {
	is := is.New(t)

	pcm := audio.EncodePCM([]int16{0, 1000, -1000, 32767, -32768, 42})
	clip, err := Decode(bytes.NewReader(Encode(pcm, audio.Mono16k)))
	is.NoErr(err)

	is.Equal(clip.Header.SampleRate, uint32(16000))
	is.Equal(clip.Header.NumChannels, uint16(1))
	is.Equal(clip.Header.BitsPerSample, uint16(16))
	is.Equal(clip.PCM, pcm) // payload survives the container
	is.Equal(clip.Format(), audio.Mono16k)
}

func TestDecode_StreamingSize(t *testing.T) {
	is := is.New(t)

	// espeak-ng --stdout writes 0xFFFFFFFF as the data size
	pcm := audio.EncodePCM([]int16{1, 2, 3, 4})
	data := Encode(pcm, audio.Format{SampleRate: 22050, Channels: 1})
	copy(data[40:44], []byte{0xFF, 0xFF, 0xFF, 0xFF})

	clip, err := Decode(bytes.NewReader(data))
	is.NoErr(err)
	is.Equal(clip.PCM, pcm)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not riff", []byte("RIFX\x00\x00\x00\x00WAVE")},
		{"not wave", []byte("RIFF\x00\x00\x00\x00AVI ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(bytes.NewReader(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClip_MonoDownmixAndResample(t *testing.T) {
	is := is.New(t)

	stereo := make([]int16, 0, 96)
	for i := 0; i < 48; i++ {
		stereo = append(stereo, 1000, 3000)
	}
	clip := &Clip{
		Header: Header{SampleRate: 32000, NumChannels: 2, BitsPerSample: 16},
		PCM:    audio.EncodePCM(stereo),
	}

	mono := clip.Mono(16000)
	is.Equal(len(mono), 24)
	for _, s := range mono {
		is.Equal(s, int16(2000)) // channels averaged
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "capture.wav")
	w, err := NewWriter(path, audio.Mono16k)
	is.NoErr(err)

	frame := make(audio.Frame, audio.FrameLength)
	for i := range frame {
		frame[i] = int16(i)
	}
	is.NoErr(w.WriteFrame(frame))
	is.NoErr(w.WriteFrame(frame))
	is.NoErr(w.Close())

	clip, err := ReadFile(path)
	is.NoErr(err)
	is.Equal(clip.Header.DataSize, uint32(2*audio.FrameBytes))
	is.Equal(len(clip.PCM), 2*audio.FrameBytes)
}
