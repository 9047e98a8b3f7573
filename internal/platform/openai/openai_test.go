package openai

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/generation"
	"github.com/phrazzld/mailroom/internal/platform/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(config.LLMConfig{Provider: "openai"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	c, err := New(config.LLMConfig{Provider: "openai", APIKey: "sk-test", BaseURL: "http://localhost:8080/v1"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, c.model)
}

func TestMessagesOrder(t *testing.T) {
	t.Parallel()
	msgs := messages(llm.Request{
		System: "system",
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "first"},
			{Role: llm.RoleAssistant, Content: "reply"},
		},
		Prompt: "again",
	})

	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	assert.NotNil(t, msgs[2].OfAssistant)
	assert.NotNil(t, msgs[3].OfUser)
}

func apiError(status int) *openai.Error {
	return &openai.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	unauthorized := apiError(http.StatusUnauthorized)
	assert.ErrorIs(t, classify(unauthorized), llm.ErrPermanent)

	limited := apiError(http.StatusTooManyRequests)
	assert.NotErrorIs(t, classify(limited), llm.ErrPermanent)

	unavailable := apiError(http.StatusServiceUnavailable)
	assert.NotErrorIs(t, classify(unavailable), llm.ErrPermanent)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, classify(plain))
}
