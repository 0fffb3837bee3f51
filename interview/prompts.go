package interview

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/krshsl/nora/models"
	"gopkg.in/yaml.v3"
)

//go:embed templates/prompts.yaml
var promptsYAML []byte

// PromptMessage is one entry of the ordered message sequence sent to the model
type PromptMessage struct {
	Role    models.MessageRole
	Content string
}

type promptTemplates struct {
	Interviewer         string `yaml:"interviewer"`
	OpeningInstruction  string `yaml:"opening_instruction"`
	FollowupInstruction string `yaml:"followup_instruction"`
	Evaluator           string `yaml:"evaluator"`
	FeedbackRequest     string `yaml:"feedback_request"`
}

var prompts = mustLoadPrompts(promptsYAML)

func mustLoadPrompts(data []byte) promptTemplates {
	p, err := loadPrompts(data)
	if err != nil {
		panic(err)
	}
	return p
}

func loadPrompts(data []byte) (promptTemplates, error) {
	var p promptTemplates
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	for name, v := range map[string]string{
		"interviewer":          p.Interviewer,
		"opening_instruction":  p.OpeningInstruction,
		"followup_instruction": p.FollowupInstruction,
		"evaluator":            p.Evaluator,
		"feedback_request":     p.FeedbackRequest,
	} {
		if strings.TrimSpace(v) == "" {
			return p, fmt.Errorf("prompt template %q is empty", name)
		}
	}
	return p, nil
}

// BuildInterviewPrompt returns the interviewer system prompt for a resume and job description.
// Both texts are embedded verbatim.
func BuildInterviewPrompt(resumeText, jobDescription string) string {
	// a single replacer pass keeps placeholders inside the candidate's texts untouched
	return strings.NewReplacer(
		"{{resume}}", resumeText,
		"{{job_description}}", jobDescription,
	).Replace(prompts.Interviewer)
}

// BuildNextQuestionMessages orders the system prompt, the prior conversational turns and the
// trailing instruction asking for the next question. System turns are never replayed.
func BuildNextQuestionMessages(systemPrompt string, prior []models.TranscriptMessage) []PromptMessage {
	msgs := make([]PromptMessage, 0, len(prior)+2)
	msgs = append(msgs, PromptMessage{Role: models.RoleSystem, Content: systemPrompt})
	for _, m := range prior {
		if m.Role == models.RoleSystem {
			continue
		}
		msgs = append(msgs, PromptMessage{Role: m.Role, Content: m.Content})
	}

	instruction := prompts.FollowupInstruction
	if len(prior) == 0 {
		instruction = prompts.OpeningInstruction
	}
	return append(msgs, PromptMessage{Role: models.RoleUser, Content: instruction})
}

// BuildFeedbackPrompt returns the evaluator system prompt with the full transcript rendered
// as ROLE: content blocks.
func BuildFeedbackPrompt(resumeText, jobDescription string, transcript []models.TranscriptMessage) string {
	lines := make([]string, 0, len(transcript))
	for _, m := range transcript {
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+m.Content)
	}
	return strings.NewReplacer(
		"{{resume}}", resumeText,
		"{{job_description}}", jobDescription,
		"{{transcript}}", strings.Join(lines, "\n\n"),
	).Replace(prompts.Evaluator)
}

// FeedbackRequest is the user turn sent alongside the evaluator prompt
func FeedbackRequest() string {
	return prompts.FeedbackRequest
}
