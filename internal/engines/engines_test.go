package engines

import (
	"context"
	"strings"
	"testing"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	llmfake "github.com/chriscow/voice-agent-go/pkg/ai/llm/fake"
	sttfake "github.com/chriscow/voice-agent-go/pkg/ai/stt/fake"
	ttsfake "github.com/chriscow/voice-agent-go/pkg/ai/tts/fake"
	"github.com/chriscow/voice-agent-go/pkg/ai/wake"
	"github.com/chriscow/voice-agent-go/pkg/audio"
	"github.com/chriscow/voice-agent-go/pkg/config"
	"github.com/chriscow/voice-agent-go/pkg/conversation"
	"github.com/chriscow/voice-agent-go/pkg/metrics"
	"github.com/chriscow/voice-agent-go/pkg/playback"
	"github.com/chriscow/voice-agent-go/pkg/plugin/elevenlabs"
	"github.com/chriscow/voice-agent-go/pkg/plugin/openai"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	return &cfg
}

func TestSelectEngines(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()

	synth, err := NewSynthesizer(cfg, nil)
	is.NoErr(err)
	_, ok := synth.(*openai.Speech)
	is.True(ok)

	cfg.TTS.Engine = config.EngineElevenLabs
	cfg.TTS.ElevenLabs.APIKey = "el"
	synth, err = NewSynthesizer(cfg, nil)
	is.NoErr(err)
	_, ok = synth.(*elevenlabs.Synthesizer)
	is.True(ok)

	tr, err := NewTranscriber(cfg, nil)
	is.NoErr(err)
	_, ok = tr.(*openai.Whisper)
	is.True(ok)

	w, err := NewWake(context.Background(), cfg, nil)
	is.NoErr(err)
	is.True(w == nil) // always listening

	cfg.Wake.Engine = "clapper"
	_, err = NewWake(context.Background(), cfg, nil)
	is.True(err != nil)

	cfg.TTS.Engine = "sam"
	_, err = NewSynthesizer(cfg, nil)
	is.True(err != nil)
}

func TestRegisteredEngines(t *testing.T) {
	is := is.New(t)
	r := NewRegistries()
	is.Equal(r.Transcribers.Names(), []string{config.EngineOpenAI, config.EngineWhisperCpp})
	is.Equal(r.Synthesizers.Names(), []string{config.EngineElevenLabs, config.EngineEspeak, config.EngineOpenAI, config.EnginePiper})
	is.Equal(r.Wakes.Names(), []string{config.EngineNone, config.EngineONNX, config.EngineWebSocket})

	r.Wakes.Register("clapper", "test only", func(context.Context, Settings) (wake.Engine, error) {
		return nil, nil
	})
	is.Equal(len(NewRegistries().Wakes.Names()), 3) // registries are not shared
}

func TestNewOpener(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()

	cfg.Audio.Player = "ffplay"
	open, err := NewOpener(cfg, nil)
	is.NoErr(err)
	is.True(open != nil)

	cfg.Audio.Player = "vlc"
	_, err = NewOpener(cfg, nil)
	is.True(err != nil)
}

func TestNewMachineAnswersATurn(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	cfg.Conversation.SystemPrompt = "be brief"

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	open, opened := playback.MemoryOpener()
	chat := llmfake.NewFakeLLM("Hey, not much. You?")

	machine, err := NewMachine(cfg, Deps{
		Engines: &Set{
			LLM:         chat,
			Transcriber: sttfake.NewFakeTranscriber("what's up"),
			Synth:       ttsfake.NewFakeTTS(),
		},
		Open:    open,
		Metrics: m,
	})
	is.NoErr(err)
	defer machine.Close()
	is.Equal(machine.State(), conversation.WaitingForSilence)

	speech := make([]int16, audio.FrameLength)
	for i := range speech {
		speech[i] = 5000
		if i%2 == 1 {
			speech[i] = -5000
		}
	}
	var samples []int16
	for i := 0; i < 20; i++ {
		samples = append(samples, speech...)
	}

	is.NoErr(machine.Run(context.Background(), audio.NewSliceSource(samples, false)))

	msgs := machine.Transcript().Messages()
	is.Equal(len(msgs), 3)
	is.Equal(msgs[0], llm.Message{Role: llm.RoleSystem, Content: "be brief"})
	is.Equal(msgs[1], llm.Message{Role: llm.RoleUser, Content: "what's up"})
	is.True(strings.Contains(msgs[2].Content, "not much"))

	is.Equal(chat.Calls(), 1)
	is.Equal(len(opened()), 1)
	is.Equal(testutil.ToFloat64(m.Turns), 1.0)
}
