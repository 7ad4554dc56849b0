package llm

import (
	"testing"

	"github.com/edustack-labs/edustack/internal/config"
)

func TestNewProvider(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		cfg      config.LLMConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "default is groq",
			cfg:      config.LLMConfig{Model: "mistral-saba-24b", APIKey: "k"},
			wantName: "groq",
		},
		{
			name:     "openai",
			cfg:      config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k"},
			wantName: "openai",
		},
		{
			name:     "anthropic",
			cfg:      config.LLMConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", APIKey: "k"},
			wantName: "anthropic",
		},
		{
			name:    "missing model",
			cfg:     config.LLMConfig{Provider: "groq"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     config.LLMConfig{Provider: "bard", Model: "m"},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewProvider(tc.cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewProvider: want error, got %v", p)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}
			if p.Name() != tc.wantName {
				t.Fatalf("Name = %q, want %q", p.Name(), tc.wantName)
			}
			if p.Model() != tc.cfg.Model {
				t.Fatalf("Model = %q, want %q", p.Model(), tc.cfg.Model)
			}
		})
	}
}
