package wswake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

// wakeServer reports a wake word once it has received fireAfter frames.
func wakeServer(t *testing.T, fireAfter int, gotConfig chan<- configMessage, frames *atomic.Int32) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var cfg configMessage
		if err := conn.ReadJSON(&cfg); err != nil {
			return
		}
		gotConfig <- cfg

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage || len(data) != audio.FrameBytes {
				continue
			}
			if frames.Add(1) == int32(fireAfter) {
				msg, _ := json.Marshal(Event{Type: "wake_word", WakeWord: "hey_computer", Confidence: 0.93})
				conn.WriteMessage(websocket.TextMessage, msg)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEngineDetects(t *testing.T) {
	is := is.New(t)

	gotConfig := make(chan configMessage, 1)
	var frames atomic.Int32
	url := wakeServer(t, 3, gotConfig, &frames)

	e, err := New(context.Background(), Config{URL: url, WakeWords: []string{"jarvis", "hey_computer"}, Threshold: 0.7})
	is.NoErr(err)
	defer e.Close()

	cfg := <-gotConfig
	is.Equal(cfg.Type, "wake_word_config")
	is.Equal(cfg.WakeWords, []string{"jarvis", "hey_computer"})
	is.Equal(cfg.Threshold, 0.7)

	frame := make(audio.Frame, audio.FrameLength)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		kw, ok, err := e.Process(frame)
		is.NoErr(err)
		if ok {
			is.Equal(kw, 1)
			is.True(frames.Load() >= 3)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("wake word not detected")
}

func TestEngineReportsConnectionLoss(t *testing.T) {
	is := is.New(t)

	gotConfig := make(chan configMessage, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var cfg configMessage
		conn.ReadJSON(&cfg)
		gotConfig <- cfg
		conn.Close()
	}))
	defer srv.Close()

	e, err := New(context.Background(), Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	is.NoErr(err)
	defer e.Close()
	<-gotConfig

	frame := make(audio.Frame, audio.FrameLength)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, err := e.Process(frame); err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("connection loss not reported")
}

func TestNewRequiresURL(t *testing.T) {
	is := is.New(t)
	_, err := New(context.Background(), Config{})
	is.True(err != nil)
}
