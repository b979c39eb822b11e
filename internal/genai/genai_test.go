package genai

import (
	"strings"
	"testing"

	"github.com/emoseum/journey/internal/models"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key not set")
	}
}

func TestNewClientWithKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != DefaultModel {
		t.Errorf("expected default model, got %v", c.model)
	}
}

func TestBuildDocentPrompt(t *testing.T) {
	rec := &models.JourneyRecord{
		RecordKey:       "u1-20250601_120000-abcd",
		DiaryText:       "today was calm by the sea",
		EmotionKeywords: []string{"calm", "tired"},
		Title:           "Quiet Morning",
		GuidedQuestion:  "What made this moment calm?",
		CopingStyle:     models.DefaultCopingStyle,
	}

	system, user := buildDocentPrompt(rec)
	if !strings.Contains(system, "docent") {
		t.Error("system prompt should establish the docent voice")
	}
	for _, want := range []string{"today was calm by the sea", "calm, tired", "Quiet Morning", "What made this moment calm?", "balanced"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}
}

func TestBuildDocentPromptOmitsEmptyFields(t *testing.T) {
	rec := &models.JourneyRecord{DiaryText: "a hard day"}
	_, user := buildDocentPrompt(rec)
	if strings.Contains(user, "titled their artwork") {
		t.Error("prompt should omit title section when title is empty")
	}
	if strings.Contains(user, "Guided question") {
		t.Error("prompt should omit question section when question is empty")
	}
}
