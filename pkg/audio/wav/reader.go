// Package wav reads and writes 16-bit PCM RIFF/WAVE data.
package wav

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// Header represents a WAV file header
type Header struct {
	ChunkSize     uint32
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Clip is a decoded WAV payload.
type Clip struct {
	Header Header
	PCM    []byte // interleaved 16-bit little-endian samples
}

// Format returns the clip's PCM layout.
func (c *Clip) Format() audio.Format {
	return audio.Format{SampleRate: int(c.Header.SampleRate), Channels: int(c.Header.NumChannels)}
}

// Mono returns the clip as mono samples at the given rate, averaging stereo
// channels and resampling when needed.
func (c *Clip) Mono(rate int) []int16 {
	samples := audio.DecodePCM(c.PCM)
	if c.Header.NumChannels == 2 {
		mono := make([]int16, len(samples)/2)
		for i := range mono {
			mono[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
		}
		samples = mono
	}
	return audio.Resample(samples, int(c.Header.SampleRate), rate)
}

// ReadFile decodes a WAV file from disk.
func ReadFile(filename string) (*Clip, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	clip, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return clip, nil
}

// Decode reads a complete WAV stream. A data chunk size of zero or 0xFFFFFFFF,
// as written by tools streaming to a pipe, means "read until EOF".
func Decode(r io.Reader) (*Clip, error) {
	br := bufio.NewReader(r)

	header, err := readHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	var data []byte
	if header.DataSize == 0 || header.DataSize == 0xFFFFFFFF {
		data, err = io.ReadAll(br)
	} else {
		data = make([]byte, header.DataSize)
		var n int
		n, err = io.ReadFull(br, data)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// Truncated file: keep what was written.
			data, err = data[:n], nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	return &Clip{Header: header, PCM: data[:len(data)&^1]}, nil
}

// readHeader reads and validates the WAV header, leaving r at the start of
// the audio data.
func readHeader(r io.Reader) (Header, error) {
	var header Header

	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return header, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" {
		return header, fmt.Errorf("not a valid RIFF file")
	}
	if string(riffHeader[8:12]) != "WAVE" {
		return header, fmt.Errorf("not a valid WAVE file")
	}
	header.ChunkSize = binary.LittleEndian.Uint32(riffHeader[4:8])

	sawFmt := false
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			return header, fmt.Errorf("failed to read chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return header, fmt.Errorf("fmt chunk too small: %d bytes", chunkSize)
			}
			fmtData := make([]byte, chunkSize+chunkSize%2)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return header, fmt.Errorf("failed to read fmt data: %w", err)
			}
			if format := binary.LittleEndian.Uint16(fmtData[0:2]); format != 1 {
				return header, fmt.Errorf("only PCM format is supported, got format %d", format)
			}
			header.NumChannels = binary.LittleEndian.Uint16(fmtData[2:4])
			header.SampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
			header.BitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])
			sawFmt = true

		case "data":
			if !sawFmt {
				return header, fmt.Errorf("data chunk before fmt chunk")
			}
			header.DataSize = chunkSize
			if header.BitsPerSample != 16 {
				return header, fmt.Errorf("only 16-bit samples are supported, got %d-bit", header.BitsPerSample)
			}
			if header.NumChannels != 1 && header.NumChannels != 2 {
				return header, fmt.Errorf("only mono and stereo are supported, got %d channels", header.NumChannels)
			}
			return header, nil

		default:
			// Skip unknown chunk (LIST, fact, ...), honouring the pad byte.
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize+chunkSize%2)); err != nil {
				return header, fmt.Errorf("failed to skip %q chunk: %w", chunkID, err)
			}
		}
	}
}

// OpenSource decodes a WAV file and returns it as a capture FrameSource,
// converting to 16 kHz mono first.
func OpenSource(filename string, realtime bool) (*audio.SliceSource, error) {
	clip, err := ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return audio.NewSliceSource(clip.Mono(audio.SampleRate), realtime), nil
}
