package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/models"

	"google.golang.org/genai"
)

const (
	DefaultModelName = "gemini-2.5-flash"

	questionMaxTokens   = 1000
	questionTemperature = 0.7
	feedbackMaxTokens   = 2500
	feedbackTemperature = 0.5
)

// contentGenerator is the subset of the genai models service used by the gateway
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGateway implements interview.ModelGateway on the Gemini API. Each call is a single
// request without retries.
type GeminiGateway struct {
	models contentGenerator
	model  string
	logger *slog.Logger
}

func NewGeminiGateway(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger.Info("Gemini gateway ready", "model", model, "key_fingerprint", keyFingerprint(apiKey))
	return newGeminiGateway(client.Models, model, logger), nil
}

func newGeminiGateway(gen contentGenerator, model string, logger *slog.Logger) *GeminiGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiGateway{models: gen, model: model, logger: logger}
}

// GenerateNextQuestion asks the model for the next interview question
func (g *GeminiGateway) GenerateNextQuestion(ctx context.Context, iv *models.Interview, messages []interview.PromptMessage) (string, error) {
	system, contents := toContents(messages)
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](questionTemperature),
		MaxOutputTokens: questionMaxTokens,
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	g.logger.Debug("Requesting next question", "interview_id", iv.ID, "messages", len(messages))
	return g.generate(ctx, "next_question", contents, config)
}

// GenerateFeedbackText asks the model for a free-text evaluation
func (g *GeminiGateway) GenerateFeedbackText(ctx context.Context, systemPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](feedbackTemperature),
		MaxOutputTokens:   feedbackMaxTokens,
	}
	contents := []*genai.Content{genai.NewContentFromText(interview.FeedbackRequest(), genai.RoleUser)}
	return g.generate(ctx, "feedback", contents, config)
}

func (g *GeminiGateway) generate(ctx context.Context, op string, contents []*genai.Content, config *genai.GenerateContentConfig) (text string, err error) {
	started := time.Now()
	defer func() { observeModelCall(op, started, err) }()

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		mErr := classifyModelError(ctx, op, err)
		g.logger.Error("Gemini call failed", "op", op, "kind", mErr.Kind, "error", err)
		return "", mErr
	}
	if resp == nil {
		return "", &interview.ModelCallError{Op: op, Kind: interview.ModelErrorMalformed, Err: errors.New("nil response")}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", &interview.ModelCallError{
			Op:   op,
			Kind: interview.ModelErrorRejected,
			Err:  fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason),
		}
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || strings.TrimSpace(part.Text) == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
		// only the first candidate carrying content is used
		if builder.Len() > 0 {
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", &interview.ModelCallError{Op: op, Kind: interview.ModelErrorMalformed, Err: errors.New("gemini api returned empty response")}
	}
	return output, nil
}

// toContents maps prompt messages to genai contents. System messages become the system
// instruction; assistant turns are sent with the model role.
func toContents(messages []interview.PromptMessage) (string, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, m.Content)
		case models.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}

func classifyModelError(ctx context.Context, op string, err error) *interview.ModelCallError {
	kind := interview.ModelErrorTransport

	var apiErr genai.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = interview.ModelErrorTimeout
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			kind = interview.ModelErrorRateLimited
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden || isKeyRejection(apiErr):
			kind = interview.ModelErrorAuth
		case apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusRequestEntityTooLarge:
			kind = interview.ModelErrorRejected
		case apiErr.Code == http.StatusGatewayTimeout || apiErr.Status == "DEADLINE_EXCEEDED":
			kind = interview.ModelErrorTimeout
		case apiErr.Code >= http.StatusInternalServerError:
			kind = interview.ModelErrorUnavailable
		}
	}
	return &interview.ModelCallError{Op: op, Kind: kind, Err: err}
}

// isKeyRejection reports a 400 caused by the API key rather than the request content
func isKeyRejection(apiErr genai.APIError) bool {
	if apiErr.Code != http.StatusBadRequest {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "api key") || strings.Contains(msg, "api_key")
}

// keyFingerprint returns a short non-reversible identifier of an API key for diagnostics
func keyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
