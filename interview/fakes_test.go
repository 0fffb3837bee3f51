package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/krshsl/nora/models"
)

var errDuplicateFeedback = errors.New("feedback already exists")

// memStore is an in-memory Store. Reads return copies so callers cannot mutate stored state.
type memStore struct {
	mu          sync.Mutex
	interviews  map[string]models.Interview
	transcripts map[string]models.Transcript
	feedback    map[string]models.Feedback
}

func newMemStore() *memStore {
	return &memStore{
		interviews:  make(map[string]models.Interview),
		transcripts: make(map[string]models.Transcript),
		feedback:    make(map[string]models.Feedback),
	}
}

func (s *memStore) CreateInterview(_ context.Context, iv *models.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	s.interviews[iv.ID] = *iv
	return nil
}

func (s *memStore) GetInterview(_ context.Context, id string) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, nil
	}
	return &iv, nil
}

func (s *memStore) GetTranscript(_ context.Context, interviewID string) (*models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transcripts[interviewID]
	if !ok {
		return nil, nil
	}
	tr.Messages = append([]models.TranscriptMessage{}, tr.Messages...)
	return &tr, nil
}

func (s *memStore) GetFeedback(_ context.Context, interviewID string) (*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb, ok := s.feedback[interviewID]
	if !ok {
		return nil, nil
	}
	return &fb, nil
}

func (s *memStore) BeginInterview(_ context.Context, iv *models.Interview, tr *models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr.ID = uuid.NewString()
	tr.InterviewID = iv.ID
	iv.TranscriptID = &tr.ID
	s.transcripts[iv.ID] = models.Transcript{ID: tr.ID, InterviewID: iv.ID}
	s.interviews[iv.ID] = *iv
	return nil
}

func (s *memStore) AppendTurn(_ context.Context, iv *models.Interview, transcriptID string, msgs ...*models.TranscriptMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(iv.ID, transcriptID, msgs); err != nil {
		return err
	}
	s.interviews[iv.ID] = *iv
	return nil
}

func (s *memStore) CompleteInterview(_ context.Context, iv *models.Interview, transcriptID string, msgs ...*models.TranscriptMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(iv.ID, transcriptID, msgs); err != nil {
		return err
	}
	tr := s.transcripts[iv.ID]
	tr.IsComplete = true
	s.transcripts[iv.ID] = tr
	s.interviews[iv.ID] = *iv
	return nil
}

func (s *memStore) appendLocked(interviewID, transcriptID string, msgs []*models.TranscriptMessage) error {
	tr, ok := s.transcripts[interviewID]
	if !ok || tr.ID != transcriptID {
		return fmt.Errorf("transcript %s not found", transcriptID)
	}
	for _, m := range msgs {
		m.ID = uuid.NewString()
		m.TranscriptID = transcriptID
		m.Position = len(tr.Messages)
		tr.Messages = append(tr.Messages, *m)
	}
	s.transcripts[interviewID] = tr
	return nil
}

func (s *memStore) SaveInterviewState(_ context.Context, iv *models.Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interviews[iv.ID] = *iv
	return nil
}

func (s *memStore) SaveFeedback(_ context.Context, iv *models.Interview, fb *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feedback[iv.ID]; ok {
		return errDuplicateFeedback
	}
	fb.ID = uuid.NewString()
	fb.InterviewID = iv.ID
	iv.FeedbackID = &fb.ID
	s.feedback[iv.ID] = *fb
	s.interviews[iv.ID] = *iv
	return nil
}

// fakeGateway answers with numbered questions and a fixed evaluation unless overridden
type fakeGateway struct {
	mu            sync.Mutex
	questionCalls int
	feedbackCalls int
	lastMessages  []PromptMessage
	lastPrompt    string

	questionFn   func(ctx context.Context, call int) (string, error)
	feedbackText string
	feedbackErr  error
}

func (g *fakeGateway) GenerateNextQuestion(ctx context.Context, _ *models.Interview, messages []PromptMessage) (string, error) {
	g.mu.Lock()
	g.questionCalls++
	call := g.questionCalls
	g.lastMessages = messages
	fn := g.questionFn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return fmt.Sprintf("Question %d?", call), nil
}

func (g *fakeGateway) GenerateFeedbackText(_ context.Context, systemPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feedbackCalls++
	g.lastPrompt = systemPrompt
	if g.feedbackErr != nil {
		return "", g.feedbackErr
	}
	if g.feedbackText != "" {
		return g.feedbackText, nil
	}
	return sampleEvaluation, nil
}

func (g *fakeGateway) calls() (questions, feedback int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.questionCalls, g.feedbackCalls
}

const sampleEvaluation = `1. Overall Assessment
The candidate showed solid backend experience and explained trade-offs clearly.

2. Strengths:
- Strong Go knowledge
- Clear communication

3. Areas for improvement:
- Limited Kubernetes exposure

4. Skill Assessments:
- Go: 5/5
- Communication: 4/5
- Leadership - 3.0
- Teamwork is good

5. Job Fit Score: 85

6. Recommended next steps:
- Schedule a system design round
`
