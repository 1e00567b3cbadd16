package llm_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/ai"
	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	"github.com/chriscow/voice-agent-go/pkg/ai/llm/fake"
	"github.com/matryer/is"
)

func drain(t *testing.T, s llm.Stream) string {
	t.Helper()
	var sb strings.Builder
	for {
		delta, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String()
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		sb.WriteString(delta)
	}
}

func TestWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		failOpens int
		wantCalls int
		wantErr   bool
	}{
		{"first attempt", 0, 1, false},
		{"one retry", 1, 2, false},
		{"gives up after two", 2, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			f := fake.NewFakeLLM("Hello there, friend.")
			f.FailOpens = tt.failOpens

			retries := 0
			client := llm.WithRetry(f, llm.RetryOptions{OnRetry: func() { retries++ }})
			s, err := client.StreamChat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})

			is.Equal(f.Calls(), tt.wantCalls)
			is.Equal(retries, tt.wantCalls-1)
			if tt.wantErr {
				is.True(errors.Is(err, fake.ErrUnavailable))
				return
			}
			is.NoErr(err)
			is.Equal(drain(t, s), "Hello there, friend.")
			is.NoErr(s.Close())
		})
	}
}

func TestWithRetry_ConnectTimeout(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeLLM("late")
	f.OpenDelay = time.Second
	client := llm.WithRetry(f, llm.RetryOptions{ConnectTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := client.StreamChat(context.Background(), nil)
	is.True(err != nil)
	is.True(ai.IsRecoverable(err))          // timeout classified as transient
	is.Equal(f.Calls(), 2)                  // retried once
	is.True(time.Since(start) < time.Second) // bounded
}

func TestWithRetry_IdleTimeout(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeLLM("Hello there, friend.")
	f.StallAfter = 2
	client := llm.WithRetry(f, llm.RetryOptions{IdleTimeout: 30 * time.Millisecond})

	s, err := client.StreamChat(context.Background(), nil)
	is.NoErr(err)
	defer s.Close()

	var got string
	for i := 0; i < 2; i++ {
		delta, err := s.Recv()
		is.NoErr(err)
		got += delta
	}
	is.Equal(got, "Hello there, ")

	start := time.Now()
	_, err = s.Recv()
	is.True(ai.IsRecoverable(err))           // stall is a transient failure
	is.True(time.Since(start) < time.Second) // bounded
	_, again := s.Recv()
	is.Equal(again, err) // stays failed
}

func TestWithRetry_StreamOutlivesConnect(t *testing.T) {
	is := is.New(t)

	f := fake.NewFakeLLM("one two three")
	f.ChunkDelay = 15 * time.Millisecond
	client := llm.WithRetry(f, llm.RetryOptions{ConnectTimeout: 20 * time.Millisecond})

	s, err := client.StreamChat(context.Background(), nil)
	is.NoErr(err)
	// reading takes longer than the connect timeout but must not be cut off
	is.Equal(drain(t, s), "one two three")
}
