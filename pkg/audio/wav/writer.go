package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/chriscow/voice-agent-go/pkg/audio"
)

// Encode wraps little-endian PCM in a WAV container in memory.
func Encode(pcm []byte, format audio.Format) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, format, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Writer writes WAV files incrementally.
type Writer struct {
	file         *os.File
	format       audio.Format
	bytesWritten uint32
}

// NewWriter creates a new WAV file writer
func NewWriter(filename string, format audio.Format) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	// Sizes are patched in Close.
	if err := writeHeader(file, format, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return &Writer{file: file, format: format}, nil
}

// WriteFrame appends one captured frame.
func (w *Writer) WriteFrame(f audio.Frame) error {
	_, err := w.Write(f.Bytes())
	return err
}

// Write appends raw little-endian PCM.
func (w *Writer) Write(p []byte) (int, error) {
	if w.file == nil {
		return 0, fmt.Errorf("writer closed")
	}
	n, err := w.file.Write(p)
	w.bytesWritten += uint32(n)
	return n, err
}

// Close finalizes the WAV file by updating the header with correct sizes
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	if _, err := w.file.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to chunk size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, w.bytesWritten+36); err != nil {
		return fmt.Errorf("failed to write chunk size: %w", err)
	}

	if _, err := w.file.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, w.bytesWritten); err != nil {
		return fmt.Errorf("failed to write data size: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	return err
}

// writeHeader writes a canonical 44-byte PCM header.
func writeHeader(w io.Writer, format audio.Format, dataSize uint32) error {
	channels := uint16(format.Channels)
	if channels == 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := uint32(format.SampleRate) * uint32(channels) * bitsPerSample / 8

	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		dataSize + 36,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		channels,
		uint32(format.SampleRate),
		byteRate,
		channels * bitsPerSample / 8,
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
