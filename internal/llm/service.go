package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"dijon/internal/models"
)

// systemPrompt sets the assistant persona for every completion.
const systemPrompt = "You are Dijon, a concise, friendly AI support bot for our website. " +
	"Tone: warm, helpful, human. Keep answers under ~4 sentences when possible. " +
	"Always acknowledge the user's message in your first sentence. " +
	"If the user asks something vague, ask exactly ONE smart clarifying question. " +
	"If you're unsure, say so briefly and suggest the next step."

// fallbackReply is returned when the upstream answers with empty content.
const fallbackReply = "Sorry, I had trouble responding."

// ErrTimeout reports that the upstream did not answer within the
// caller-supplied deadline.
var ErrTimeout = errors.New("llm: upstream timed out")

// UpstreamError wraps any non-timeout failure from the completion service.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: upstream request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int

	// HistoryWindow caps how many recent messages are sent upstream;
	// HistoryTokenBudget further trims that window by token count.
	HistoryWindow      int
	HistoryTokenBudget int
}

// Service adapts the OpenAI-compatible completion API behind a single
// Complete call.
type Service struct {
	llm         llms.Model
	logger      *zap.Logger
	temperature float64
	maxTokens   int
	window      int
	tokenBudget int
	enc         *tiktoken.Tiktoken
}

func New(cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: API key is required")
	}
	model, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: initialize client: %w", err)
	}
	return NewWithModel(model, cfg, logger), nil
}

// NewWithModel builds a Service around an existing model, which lets tests
// substitute a stub for the real client.
func NewWithModel(model llms.Model, cfg Config, logger *zap.Logger) *Service {
	s := &Service{
		llm:         model,
		logger:      logger,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		window:      cfg.HistoryWindow,
		tokenBudget: cfg.HistoryTokenBudget,
	}
	if cfg.HistoryTokenBudget > 0 {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("token encoding unavailable, trimming history by message count only",
				zap.Error(err))
		} else {
			s.enc = enc
		}
	}
	return s
}

// Complete sends the system prompt, the trimmed recent history and the new
// user message upstream and returns the generated reply.
func (s *Service) Complete(ctx context.Context, history []models.Message, userMessage string) (string, error) {
	trimmed := s.trimHistory(history)

	msgs := make([]llms.MessageContent, 0, len(trimmed)+2)
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt))
	for _, m := range trimmed {
		role := schema.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, m.Content))
	}
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, userMessage))

	opts := []llms.CallOption{llms.WithTemperature(s.temperature)}
	if s.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.maxTokens))
	}

	resp, err := s.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", &UpstreamError{Err: err}
	}

	if len(resp.Choices) == 0 {
		s.logger.Warn("upstream returned no choices")
		return fallbackReply, nil
	}
	reply := strings.TrimSpace(resp.Choices[0].Content)
	if reply == "" {
		return fallbackReply, nil
	}
	return reply, nil
}

// trimHistory keeps the newest messages: first capped to the message
// window, then walked newest to oldest until the token budget is spent.
func (s *Service) trimHistory(history []models.Message) []models.Message {
	if s.window > 0 && len(history) > s.window {
		history = history[len(history)-s.window:]
	}
	if s.enc == nil || s.tokenBudget <= 0 {
		return history
	}

	total := 0
	start := 0
	for i := len(history) - 1; i >= 0; i-- {
		total += len(s.enc.Encode(history[i].Content, nil, nil))
		if total > s.tokenBudget {
			start = i + 1
			break
		}
	}
	return history[start:]
}
