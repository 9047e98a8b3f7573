package gemini

import (
	"context"
	"testing"

	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/platform/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), config.LLMConfig{Provider: "gemini"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestContentsMapsRoles(t *testing.T) {
	t.Parallel()
	got := contents(llm.Request{
		System: "system",
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "first"},
			{Role: llm.RoleAssistant, Content: "reply"},
		},
		Prompt: "again",
	})

	require.Len(t, got, 3)
	assert.Equal(t, "user", got[0].Role)
	assert.Equal(t, "model", got[1].Role)
	assert.Equal(t, "user", got[2].Role)
	assert.Equal(t, "again", got[2].Parts[0].Text)
}

func TestCompletion(t *testing.T) {
	t.Parallel()

	t.Run("joins parts and reads usage", func(t *testing.T) {
		c, err := completion(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "Ana"}}},
			}},
			UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 42},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello Ana", c.Text)
		assert.Equal(t, 42, c.Tokens)
	})

	t.Run("safety block", func(t *testing.T) {
		_, err := completion(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
		})
		assert.ErrorIs(t, err, generation.ErrContentBlocked)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := completion(&genai.GenerateContentResponse{})
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})

	t.Run("nil response", func(t *testing.T) {
		_, err := completion(nil)
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
	})
}
