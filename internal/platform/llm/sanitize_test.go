package llm

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name         string
		in           string
		wantContent  string
		wantThinking string
	}{
		{
			name:        "plain answer",
			in:          "Try to rest and drink plenty of water.",
			wantContent: "Try to rest and drink plenty of water.",
		},
		{
			name:         "think block",
			in:           "<think>The patient has a mild headache.</think>\n\nTry to rest.",
			wantContent:  "Try to rest.",
			wantThinking: "The patient has a mild headache.",
		},
		{
			name:         "multiple blocks and case",
			in:           "<THINK>one</THINK>Answer.<think>two</think>",
			wantContent:  "Answer.",
			wantThinking: "one\n\ntwo",
		},
		{
			name:         "unclosed block",
			in:           "Answer first.\n<think>trailing reasoning",
			wantContent:  "Answer first.",
			wantThinking: "trailing reasoning",
		},
		{
			name:         "meta paragraph",
			in:           "Okay, so the user is asking about sleep.\n\nAim for seven to nine hours of sleep.",
			wantContent:  "Aim for seven to nine hours of sleep.",
			wantThinking: "Okay, so the user is asking about sleep.",
		},
		{
			name:        "only meta is kept",
			in:          "Let me think about this.",
			wantContent: "Let me think about this.",
		},
		{
			name:        "collapses blank lines",
			in:          "First.\n\n\n\nSecond.",
			wantContent: "First.\n\nSecond.",
		},
		{
			name:        "answer starting with so is kept",
			in:          "So, headaches are common.\n\nRest helps.",
			wantContent: "So, headaches are common.\n\nRest helps.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, thinking := Sanitize(tt.in)
			if content != tt.wantContent {
				t.Errorf("content = %q, want %q", content, tt.wantContent)
			}
			if thinking != tt.wantThinking {
				t.Errorf("thinking = %q, want %q", thinking, tt.wantThinking)
			}
		})
	}
}

func TestSanitize_NoTagsLeak(t *testing.T) {
	content, _ := Sanitize("</think>Hello<thinking>x</thinking>")
	if strings.Contains(strings.ToLower(content), "think") {
		t.Errorf("expected tags removed, got %q", content)
	}
}
