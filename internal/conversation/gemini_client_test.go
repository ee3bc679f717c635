package conversation

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureGeminiModel_Defaults(t *testing.T) {
	model := &genai.GenerativeModel{}

	configureGeminiModel(model, LLMRequest{System: []string{"be kind", "answer briefly"}})

	require.NotNil(t, model.Temperature)
	require.NotNil(t, model.TopP)
	require.NotNil(t, model.TopK)
	require.NotNil(t, model.MaxOutputTokens)
	assert.Equal(t, float32(1), *model.Temperature)
	assert.Equal(t, float32(0.95), *model.TopP)
	assert.Equal(t, int32(40), *model.TopK)
	assert.Equal(t, int32(8192), *model.MaxOutputTokens)
	assert.Equal(t, "text/plain", model.ResponseMIMEType)

	require.NotNil(t, model.SystemInstruction)
	require.Len(t, model.SystemInstruction.Parts, 1)
	assert.Equal(t, genai.Text("be kind\n\nanswer briefly"), model.SystemInstruction.Parts[0])
}

func TestConfigureGeminiModel_RequestOverrides(t *testing.T) {
	model := &genai.GenerativeModel{}

	configureGeminiModel(model, LLMRequest{Temperature: 0.2, TopP: 0.5, MaxTokens: 256})

	assert.Equal(t, float32(0.2), *model.Temperature)
	assert.Equal(t, float32(0.5), *model.TopP)
	assert.Equal(t, int32(256), *model.MaxOutputTokens)
	assert.Nil(t, model.SystemInstruction)
}

func TestGeminiHistory(t *testing.T) {
	history, last, err := geminiHistory([]ChatMessage{
		{Role: ChatRoleSystem, Content: "primer"},
		{Role: ChatRoleUser, Content: " Hello "},
		{Role: ChatRoleAssistant, Content: "Hi John"},
		{Role: ChatRoleUser, Content: "   "},
		{Role: ChatRoleUser, Content: "How are you?"},
	})
	require.NoError(t, err)

	assert.Equal(t, genai.Text("How are you?"), last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Hello")}, history[0].Parts)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("Hi John")}, history[1].Parts)
}

func TestGeminiHistory_RequiresMessage(t *testing.T) {
	_, _, err := geminiHistory(nil)
	assert.ErrorContains(t, err, "at least one message")
}

func TestGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(" Hello "), genai.Text("there ")}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 4, TotalTokenCount: 14},
	}

	out, err := geminiResponse(resp)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", out.Text)
	assert.Equal(t, TokenUsage{InputTokens: 10, OutputTokens: 4, TotalTokens: 14}, out.Usage)
	assert.NotEmpty(t, out.StopReason)
}

func TestGeminiResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		wantErr string
	}{
		{"nil response", nil, "no candidates"},
		{"no candidates", &genai.GenerateContentResponse{}, "no candidates"},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, "empty content"},
		{"no parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model"}}}}, "empty content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := geminiResponse(tt.resp)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
