// Package llm talks to an OpenAI-compatible chat completion API on behalf of
// the health assistant.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/feelwell/feelwell/internal/platform/apperr"
)

// Message is one chat turn. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Gateway produces assistant text from a single prompt or a message history.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, messages []Message) (string, error)
}

// chatCompleter is the part of *openai.Client the gateway uses.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string
	Timeout       time.Duration
	SystemPrompt  string
}

const DefaultSystemPrompt = `You are FeelWell's health assistant. Answer the patient's questions about
symptoms, wellbeing and appointments in plain, friendly language. You are not a
doctor: do not diagnose, and advise contacting a doctor or emergency services
when symptoms sound serious. Reply with the answer only.`

var ErrEmptyCompletion = errors.New("model returned no choices")

// OpenAIGateway calls the chat completion API with a primary model and, when
// that fails, one retry on the fallback model.
type OpenAIGateway struct {
	client       chatCompleter
	model        string
	fallback     string
	timeout      time.Duration
	systemPrompt string
	logger       zerolog.Logger
}

func NewOpenAIGateway(cfg Config, logger zerolog.Logger) *OpenAIGateway {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newGateway(openai.NewClientWithConfig(oc), cfg, logger)
}

func newGateway(client chatCompleter, cfg Config, logger zerolog.Logger) *OpenAIGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &OpenAIGateway{
		client:       client,
		model:        cfg.Model,
		fallback:     cfg.FallbackModel,
		timeout:      cfg.Timeout,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger.With().Str("component", "llm").Logger(),
	}
}

func (g *OpenAIGateway) Complete(ctx context.Context, prompt string) (string, error) {
	return g.Chat(ctx, []Message{{Role: openai.ChatMessageRoleUser, Content: prompt}})
}

// Chat sends the system prompt followed by messages. Unknown roles are sent
// as user turns.
func (g *OpenAIGateway) Chat(ctx context.Context, messages []Message) (string, error) {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: g.systemPrompt})
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	text, err := g.call(ctx, g.model, oaMsgs)
	if err == nil {
		return text, nil
	}
	if g.fallback == "" || g.fallback == g.model || ctx.Err() != nil {
		return "", apperr.Upstream(err, "assistant unavailable")
	}

	g.logger.Warn().Err(err).Str("model", g.model).Str("fallback", g.fallback).Msg("primary model failed, trying fallback")
	text, err = g.call(ctx, g.fallback, oaMsgs)
	if err != nil {
		return "", apperr.Upstream(err, "assistant unavailable")
	}
	return text, nil
}

func (g *OpenAIGateway) call(ctx context.Context, model string, msgs []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", model, ErrEmptyCompletion)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: %w", model, ErrEmptyCompletion)
	}
	return text, nil
}
