package chat

import (
	"strings"
	"testing"
	"time"
)

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "hello", "hello"},
		{"exactly limit", strings.Repeat("a", 100), strings.Repeat("a", 100)},
		{"over limit", strings.Repeat("a", 101), strings.Repeat("a", 100) + "..."},
		{"multibyte", strings.Repeat("ü", 120), strings.Repeat("ü", 100) + "..."},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.in); got != tt.want {
				t.Errorf("Preview = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConversation_Append(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Conversation{Status: StatusOpen}

	c.Append(NewUserMessage("hi", at))
	if c.Status != StatusOpen || c.MessageCount != 1 || c.LastMessage != "hi" {
		t.Fatalf("unexpected state after user message: %+v", c)
	}

	c.Append(NewDoctorMessage("doc-1", "hello there", at), NewSystemMessage("note", at))
	if c.Status != StatusInProgress {
		t.Errorf("expected in-progress, got %s", c.Status)
	}
	if c.MessageCount != 3 || c.LastMessage != "note" {
		t.Errorf("unexpected counters: count=%d last=%q", c.MessageCount, c.LastMessage)
	}
}

func TestConversation_AppendKeepsOtherStatuses(t *testing.T) {
	c := &Conversation{Status: StatusArchived}
	c.Append(NewAssistantMessage("x", "", time.Now()))
	if c.Status != StatusArchived {
		t.Errorf("append must only promote open conversations, got %s", c.Status)
	}
}

func TestConversation_IsWritable(t *testing.T) {
	for status, want := range map[string]bool{
		StatusOpen: true, StatusInProgress: true, StatusClosed: false, StatusArchived: false,
	} {
		c := &Conversation{Status: status}
		if got := c.IsWritable(); got != want {
			t.Errorf("IsWritable(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestNewDoctorMessage(t *testing.T) {
	m := NewDoctorMessage("doc-1", "take rest", time.Now())
	if m.Role != RoleAssistant || !m.FromDoctor || m.DoctorID != "doc-1" {
		t.Errorf("unexpected doctor message: %+v", m)
	}
}
