package piper

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/matryer/is"
)

// fakeBinary writes a shell script standing in for piper.
func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSynthesize(t *testing.T) {
	is := is.New(t)

	// Echo the arguments, then the text read from stdin.
	bin := fakeBinary(t, `echo "$@"; cat`)
	s, err := New(Config{Binary: bin, Model: "voice.onnx"})
	is.NoErr(err)
	is.Equal(s.Format().SampleRate, 22050)

	chunks, err := s.Synthesize(context.Background(), "Hello\n  there.")
	is.NoErr(err)
	var got []byte
	for c := range chunks {
		got = append(got, c...)
	}
	is.Equal(string(got), "--model voice.onnx --output_raw\nHello there.\n")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no model", cfg: Config{Binary: "sh"}},
		{name: "missing binary", cfg: Config{Binary: "definitely-not-piper-xyz", Model: "v.onnx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			_, err := New(tt.cfg)
			is.True(err != nil)
		})
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	is := is.New(t)
	s, err := New(Config{Binary: fakeBinary(t, "cat"), Model: "v.onnx"})
	is.NoErr(err)
	_, err = s.Synthesize(context.Background(), "   ")
	is.True(err != nil)
}
