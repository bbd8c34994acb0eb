package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/feelwell/feelwell/internal/platform/apperr"
)

type scriptedCompleter struct {
	replies map[string]string // model -> content
	errs    map[string]error
	calls   []openai.ChatCompletionRequest
}

func (s *scriptedCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.calls = append(s.calls, req)
	if err := s.errs[req.Model]; err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	content, ok := s.replies[req.Model]
	if !ok {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}, nil
}

func testGateway(c chatCompleter) *OpenAIGateway {
	return newGateway(c, Config{Model: "primary", FallbackModel: "backup", Timeout: time.Second}, zerolog.Nop())
}

func TestGateway_PrimarySucceeds(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{"primary": "  Drink water.  "}}
	got, err := testGateway(c).Complete(context.Background(), "I have a headache")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Drink water." {
		t.Errorf("expected trimmed reply, got %q", got)
	}
	if len(c.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(c.calls))
	}
	msgs := c.calls[0].Messages
	if len(msgs) != 2 || msgs[0].Role != openai.ChatMessageRoleSystem || msgs[1].Content != "I have a headache" {
		t.Errorf("unexpected request messages %+v", msgs)
	}
}

func TestGateway_FallsBackOnce(t *testing.T) {
	c := &scriptedCompleter{
		errs:    map[string]error{"primary": errors.New("503")},
		replies: map[string]string{"backup": "Rest and hydrate."},
	}
	got, err := testGateway(c).Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Rest and hydrate." {
		t.Errorf("expected fallback reply, got %q", got)
	}
	if len(c.calls) != 2 || c.calls[1].Model != "backup" {
		t.Errorf("expected second call on backup model, got %+v", c.calls)
	}
}

func TestGateway_EmptyChoicesTriggerFallback(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{"backup": "ok"}}
	got, err := testGateway(c).Complete(context.Background(), "hi")
	if err != nil || got != "ok" {
		t.Errorf("expected fallback after empty completion, got %q %v", got, err)
	}
}

func TestGateway_BothFail(t *testing.T) {
	c := &scriptedCompleter{errs: map[string]error{"primary": errors.New("a"), "backup": errors.New("b")}}
	_, err := testGateway(c).Complete(context.Background(), "hi")
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(c.calls) != 2 {
		t.Errorf("expected exactly one retry, got %d calls", len(c.calls))
	}
}

func TestGateway_NoFallbackConfigured(t *testing.T) {
	c := &scriptedCompleter{errs: map[string]error{"primary": errors.New("a")}}
	gw := newGateway(c, Config{Model: "primary"}, zerolog.Nop())
	if _, err := gw.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
	if len(c.calls) != 1 {
		t.Errorf("expected no retry, got %d calls", len(c.calls))
	}
}

func TestGateway_ChatCoercesUnknownRoles(t *testing.T) {
	c := &scriptedCompleter{replies: map[string]string{"primary": "ok"}}
	_, err := testGateway(c).Chat(context.Background(), []Message{
		{Role: "assistant", Content: "Welcome"},
		{Role: "doctor", Content: "odd"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgs := c.calls[0].Messages
	if msgs[1].Role != "assistant" || msgs[2].Role != "user" || msgs[3].Role != "user" {
		t.Errorf("unexpected roles %+v", msgs)
	}
}
