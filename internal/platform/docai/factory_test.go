package docai

import "testing"

func TestNewExtractorDisabled(t *testing.T) {
	for _, provider := range []string{"", "none"} {
		ext, err := NewExtractor(Config{Provider: provider})
		if err != nil {
			t.Errorf("provider %q: expected nil error, got %v", provider, err)
		}
		if ext != nil {
			t.Errorf("provider %q: expected nil extractor when disabled", provider)
		}
	}
}

func TestNewExtractorUnknownProvider(t *testing.T) {
	if _, err := NewExtractor(Config{Provider: "gemini"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewExtractorRequiresAPIKey(t *testing.T) {
	if _, err := NewExtractor(Config{Provider: "openai"}); err == nil {
		t.Error("expected error for openai without API key")
	}
	if _, err := NewExtractor(Config{Provider: "anthropic"}); err == nil {
		t.Error("expected error for anthropic without API key")
	}
}

func TestNewExtractorProviderNames(t *testing.T) {
	openaiExt, err := NewExtractor(Config{Provider: "OpenAI", APIKey: "test-key"})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if openaiExt.Name() != "openai" {
		t.Errorf("expected openai, got %s", openaiExt.Name())
	}

	claudeExt, err := NewExtractor(Config{Provider: "claude", APIKey: "test-key"})
	if err != nil {
		t.Fatalf("claude alias: %v", err)
	}
	if claudeExt.Name() != "anthropic" {
		t.Errorf("expected anthropic for claude alias, got %s", claudeExt.Name())
	}
}
