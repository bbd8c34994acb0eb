package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// Apology is returned in place of an answer when the assistant is unavailable.
const Apology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment, or contact your doctor directly if this is urgent."

// Reply is a sanitized assistant answer.
type Reply struct {
	Content  string `json:"response"`
	Thinking string `json:"thinking,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Responder turns gateway output into a Reply and never fails: any gateway
// error yields the apology.
type Responder struct {
	gw     Gateway
	logger zerolog.Logger
}

func NewResponder(gw Gateway, logger zerolog.Logger) *Responder {
	return &Responder{gw: gw, logger: logger}
}

func (r *Responder) Prompt(ctx context.Context, prompt string) Reply {
	return r.finish(r.gw.Complete(ctx, prompt))
}

func (r *Responder) Respond(ctx context.Context, history []Message) Reply {
	return r.finish(r.gw.Chat(ctx, history))
}

func (r *Responder) finish(text string, err error) Reply {
	if err != nil {
		r.logger.Warn().Err(err).Msg("assistant reply failed, using fallback")
		return Reply{Content: Apology, Fallback: true}
	}
	content, thinking := Sanitize(text)
	if content == "" {
		r.logger.Warn().Msg("assistant reply empty after sanitizing, using fallback")
		return Reply{Content: Apology, Thinking: thinking, Fallback: true}
	}
	return Reply{Content: content, Thinking: thinking}
}
