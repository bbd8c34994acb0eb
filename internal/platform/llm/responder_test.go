package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/feelwell/feelwell/internal/platform/apperr"
	"github.com/feelwell/feelwell/internal/platform/auth"
)

type stubGateway struct {
	text    string
	err     error
	prompts []string
	history []Message
}

func (s *stubGateway) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.text, s.err
}

func (s *stubGateway) Chat(_ context.Context, messages []Message) (string, error) {
	s.history = messages
	return s.text, s.err
}

func TestResponder_Sanitizes(t *testing.T) {
	gw := &stubGateway{text: "<think>hmm</think>Stay hydrated."}
	reply := NewResponder(gw, zerolog.Nop()).Respond(context.Background(), []Message{{Role: "user", Content: "tired"}})

	if reply.Content != "Stay hydrated." || reply.Thinking != "hmm" || reply.Fallback {
		t.Errorf("unexpected reply %+v", reply)
	}
	if len(gw.history) != 1 {
		t.Errorf("expected history forwarded, got %v", gw.history)
	}
}

func TestResponder_FallbackOnError(t *testing.T) {
	gw := &stubGateway{err: apperr.Upstream(errors.New("timeout"), "assistant unavailable")}
	reply := NewResponder(gw, zerolog.Nop()).Prompt(context.Background(), "hello")

	if reply.Content != Apology || !reply.Fallback {
		t.Errorf("expected apology fallback, got %+v", reply)
	}
}

func TestResponder_FallbackOnEmptyContent(t *testing.T) {
	gw := &stubGateway{text: "<think>only reasoning</think>"}
	reply := NewResponder(gw, zerolog.Nop()).Prompt(context.Background(), "hello")

	if reply.Content != Apology || !reply.Fallback {
		t.Errorf("expected apology fallback, got %+v", reply)
	}
}

func TestHandler_Chat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		gw         *stubGateway
		wantStatus int
		wantReply  string
	}{
		{"message field", `{"message":"hi"}`, &stubGateway{text: "Hello!"}, http.StatusOK, "Hello!"},
		{"prompt field", `{"prompt":"hi"}`, &stubGateway{text: "Hello!"}, http.StatusOK, "Hello!"},
		{"upstream failure", `{"message":"hi"}`, &stubGateway{err: errors.New("down")}, http.StatusOK, Apology},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := NewHandler(NewResponder(tt.gw, zerolog.Nop()), nil)
			if err := h.Chat(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var reply Reply
			json.Unmarshal(rec.Body.Bytes(), &reply)
			if reply.Content != tt.wantReply {
				t.Errorf("expected %q, got %q", tt.wantReply, reply.Content)
			}
		})
	}
}

func TestHandler_Chat_MissingMessage(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := NewHandler(NewResponder(&stubGateway{}, zerolog.Nop()), nil).Chat(c)
	if apperr.Status(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Chat_ThinkingVisibility(t *testing.T) {
	doctorsOnly := func(role string) bool { return role == auth.RoleDoctor }
	tests := []struct {
		name         string
		showThinking func(string) bool
		roles        []string
		wantThinking string
	}{
		{"hidden by default", nil, []string{auth.RoleDoctor}, ""},
		{"anonymous caller", doctorsOnly, nil, ""},
		{"role not permitted", doctorsOnly, []string{auth.RolePatient}, ""},
		{"permitted role", doctorsOnly, []string{auth.RoleDoctor}, "private reasoning"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{text: "<think>private reasoning</think>Drink water."}
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"thirsty"}`))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			if tt.roles != nil {
				req = req.WithContext(auth.WithUser(req.Context(), "u1", tt.roles))
			}
			rec := httptest.NewRecorder()

			h := NewHandler(NewResponder(gw, zerolog.Nop()), tt.showThinking)
			if err := h.Chat(e.NewContext(req, rec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var reply Reply
			json.Unmarshal(rec.Body.Bytes(), &reply)
			if reply.Content != "Drink water." {
				t.Errorf("unexpected content %q", reply.Content)
			}
			if reply.Thinking != tt.wantThinking {
				t.Errorf("thinking = %q, want %q", reply.Thinking, tt.wantThinking)
			}
			if tt.wantThinking == "" && strings.Contains(rec.Body.String(), "private reasoning") {
				t.Errorf("reasoning leaked: %s", rec.Body.String())
			}
		})
	}
}
