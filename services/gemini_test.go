package services

import (
	"context"
	"errors"
	"testing"

	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp     *genai.GenerateContentResponse
	err      error
	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, &genai.Part{Text: t})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: genai.RoleModel, Parts: parts}}},
	}
}

func TestGeminiGateway_GenerateNextQuestion(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Tell me about ", "your last project.")}
	gw := newGeminiGateway(gen, DefaultModelName, nil)

	messages := []interview.PromptMessage{
		{Role: models.RoleSystem, Content: "be an interviewer"},
		{Role: models.RoleAssistant, Content: "Q1"},
		{Role: models.RoleUser, Content: "A1"},
	}
	text, err := gw.GenerateNextQuestion(context.Background(), &models.Interview{ID: "iv-1"}, messages)

	require.NoError(t, err)
	assert.Equal(t, "Tell me about your last project.", text)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, DefaultModelName, gen.model)

	require.Len(t, gen.contents, 2)
	assert.Equal(t, genai.Role(genai.RoleModel), genai.Role(gen.contents[0].Role))
	assert.Equal(t, genai.Role(genai.RoleUser), genai.Role(gen.contents[1].Role))
	require.NotNil(t, gen.config.SystemInstruction)
	assert.Equal(t, "be an interviewer", gen.config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(questionMaxTokens), gen.config.MaxOutputTokens)
	require.NotNil(t, gen.config.Temperature)
	assert.InDelta(t, questionTemperature, *gen.config.Temperature, 0.0001)
}

func TestGeminiGateway_GenerateFeedbackText(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("Job Fit Score: 90")}
	gw := newGeminiGateway(gen, "test-model", nil)

	text, err := gw.GenerateFeedbackText(context.Background(), "evaluate")

	require.NoError(t, err)
	assert.Equal(t, "Job Fit Score: 90", text)
	require.Len(t, gen.contents, 1)
	assert.Equal(t, interview.FeedbackRequest(), gen.contents[0].Parts[0].Text)
	assert.Equal(t, "evaluate", gen.config.SystemInstruction.Parts[0].Text)
	assert.Equal(t, int32(feedbackMaxTokens), gen.config.MaxOutputTokens)
	assert.InDelta(t, feedbackTemperature, *gen.config.Temperature, 0.0001)
}

func TestGeminiGateway_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		want interview.ModelErrorKind
	}{
		{name: "rate limited", gen: &fakeGenerator{err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}}, want: interview.ModelErrorRateLimited},
		{name: "bad key", gen: &fakeGenerator{err: genai.APIError{Code: 403}}, want: interview.ModelErrorAuth},
		{name: "invalid key reported as bad request", gen: &fakeGenerator{err: genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "API key not valid. Please pass a valid API key."}}, want: interview.ModelErrorAuth},
		{name: "oversized prompt", gen: &fakeGenerator{err: genai.APIError{Code: 400}}, want: interview.ModelErrorRejected},
		{name: "server error", gen: &fakeGenerator{err: genai.APIError{Code: 503}}, want: interview.ModelErrorUnavailable},
		{name: "deadline", gen: &fakeGenerator{err: context.DeadlineExceeded}, want: interview.ModelErrorTimeout},
		{name: "network", gen: &fakeGenerator{err: errors.New("connection reset")}, want: interview.ModelErrorTransport},
		{name: "nil response", gen: &fakeGenerator{}, want: interview.ModelErrorMalformed},
		{name: "no candidates", gen: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, want: interview.ModelErrorMalformed},
		{name: "blank text", gen: &fakeGenerator{resp: textResponse("  ")}, want: interview.ModelErrorMalformed},
		{
			name: "blocked prompt",
			gen: &fakeGenerator{resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			}},
			want: interview.ModelErrorRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newGeminiGateway(tt.gen, DefaultModelName, nil)

			_, err := gw.GenerateFeedbackText(context.Background(), "evaluate")

			var me *interview.ModelCallError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tt.want, me.Kind)
			assert.Equal(t, 1, tt.gen.calls)
		})
	}
}

func TestNewGeminiGateway_RequiresKey(t *testing.T) {
	_, err := NewGeminiGateway(context.Background(), " ", "", nil)
	assert.Error(t, err)
}

func TestKeyFingerprint(t *testing.T) {
	fp := keyFingerprint("super-secret-key")

	assert.Len(t, fp, 8)
	assert.NotContains(t, "super-secret-key", fp)
	assert.Equal(t, fp, keyFingerprint("super-secret-key"))
}
