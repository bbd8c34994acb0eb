package chat

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ThinkingConfig controls whether model reasoning is stored and who may see it.
type ThinkingConfig struct {
	ShowThinking        bool            `mapstructure:"showThinking"`
	SaveThinkingHistory bool            `mapstructure:"saveThinkingHistory"`
	UserPermissions     map[string]bool `mapstructure:"userPermissions"`
}

// LoadThinkingConfig reads the JSON or YAML file at path. An empty path yields
// the defaults, which hide and discard all thinking text.
func LoadThinkingConfig(path string) (ThinkingConfig, error) {
	cfg := ThinkingConfig{UserPermissions: map[string]bool{}}
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read chat config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse chat config %s: %w", path, err)
	}
	if cfg.UserPermissions == nil {
		cfg.UserPermissions = map[string]bool{}
	}
	return cfg, nil
}

// CanView reports whether a viewer with role may see thinking text.
func (c ThinkingConfig) CanView(role string) bool {
	return c.ShowThinking && c.UserPermissions[strings.ToLower(role)]
}

// ForViewer returns conv as role should see it. Thinking text is removed
// unless the role may view it; conv itself is never modified.
func (c ThinkingConfig) ForViewer(conv *Conversation, role string) *Conversation {
	if conv == nil || c.CanView(role) {
		return conv
	}
	out := *conv
	out.Messages = withoutThinking(conv.Messages)
	return &out
}

func withoutThinking(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		m.Thinking = ""
		out[i] = m
	}
	return out
}
