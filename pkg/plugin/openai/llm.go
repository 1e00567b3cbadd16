package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/chriscow/voice-agent-go/pkg/ai/llm"
	openai "github.com/sashabaranov/go-openai"
)

// LLM implements llm.Client with streaming chat completions.
type LLM struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

var _ llm.Client = (*LLM)(nil)

// NewLLM creates a chat client.
func NewLLM(cfg Config) (*LLM, error) {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &LLM{
		client: client,
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "openai-llm")),
	}, nil
}

// StreamChat opens a streaming completion for messages.
func (o *LLM) StreamChat(ctx context.Context, messages []llm.Message) (llm.Stream, error) {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       o.cfg.ChatModel,
		Messages:    openaiMessages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Stream:      true,
	}

	o.logger.Debug("Opening chat stream", slog.Int("messages", len(messages)), slog.String("model", o.cfg.ChatModel))
	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classify(ctx, err, "open chat stream")
	}
	return &chatStream{ctx: ctx, stream: stream}, nil
}

type chatStream struct {
	ctx    context.Context
	stream *openai.ChatCompletionStream
}

func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", classify(s.ctx, err, "read chat stream")
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
