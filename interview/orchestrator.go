package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/krshsl/nora/models"
)

// Store persists interviews, transcripts and feedback. Lookups return nil, nil when the
// record does not exist.
type Store interface {
	CreateInterview(ctx context.Context, interview *models.Interview) error
	GetInterview(ctx context.Context, id string) (*models.Interview, error)
	GetTranscript(ctx context.Context, interviewID string) (*models.Transcript, error)
	GetFeedback(ctx context.Context, interviewID string) (*models.Feedback, error)
	BeginInterview(ctx context.Context, interview *models.Interview, transcript *models.Transcript) error
	AppendTurn(ctx context.Context, interview *models.Interview, transcriptID string, messages ...*models.TranscriptMessage) error
	CompleteInterview(ctx context.Context, interview *models.Interview, transcriptID string, messages ...*models.TranscriptMessage) error
	SaveInterviewState(ctx context.Context, interview *models.Interview) error
	SaveFeedback(ctx context.Context, interview *models.Interview, feedback *models.Feedback) error
}

// ModelGateway executes exactly one model call per invocation
type ModelGateway interface {
	GenerateNextQuestion(ctx context.Context, interview *models.Interview, messages []PromptMessage) (string, error)
	GenerateFeedbackText(ctx context.Context, systemPrompt string) (string, error)
}

type Options struct {
	// ModelTimeout bounds every model call
	ModelTimeout     time.Duration
	DefaultQuestions int
	MaxQuestions     int
	FeedbackWorkers  int
	FeedbackQueue    int
}

func (o Options) withDefaults() Options {
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = 60 * time.Second
	}
	if o.DefaultQuestions <= 0 {
		o.DefaultQuestions = models.DefaultQuestionsCount
	}
	if o.MaxQuestions <= 0 {
		o.MaxQuestions = 20
	}
	if o.MaxQuestions < o.DefaultQuestions {
		o.MaxQuestions = o.DefaultQuestions
	}
	return o
}

// TurnResult is returned by Start and SubmitAnswer
type TurnResult struct {
	Interview       *models.Interview  `json:"interview"`
	Transcript      *models.Transcript `json:"transcript"`
	CurrentQuestion *string            `json:"current_question"`
	IsComplete      bool               `json:"is_complete"`
}

// CreateParams describes a new interview
type CreateParams struct {
	UserID         string
	JobTitle       string
	JobDescription string
	ResumeText     string
	QuestionsCount int
}

// Orchestrator owns every interview state transition. Mutating operations on the same
// interview are serialized by a per-interview lock.
type Orchestrator struct {
	store   Store
	gateway ModelGateway
	logger  *slog.Logger
	opts    Options
	locks   *KeyedLock
	queue   *FeedbackQueue
}

func NewOrchestrator(store Store, gateway ModelGateway, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	o := &Orchestrator{
		store:   store,
		gateway: gateway,
		logger:  logger,
		opts:    opts,
		locks:   NewKeyedLock(),
	}
	o.queue = newFeedbackQueue(o.GenerateFeedback, logger, opts.FeedbackWorkers, opts.FeedbackQueue, 2*opts.ModelTimeout)
	return o
}

// StartWorkers launches the background feedback workers
func (o *Orchestrator) StartWorkers() { o.queue.Start() }

// Close stops the background feedback workers
func (o *Orchestrator) Close() { o.queue.Stop() }

// OnFeedback registers a listener for background feedback outcomes
func (o *Orchestrator) OnFeedback(l FeedbackListener) { o.queue.Subscribe(l) }

// PendingFeedback returns the number of queued or running feedback jobs
func (o *Orchestrator) PendingFeedback() int { return o.queue.Pending() }

// ScheduleFeedback hands feedback generation for a completed interview to the queue
func (o *Orchestrator) ScheduleFeedback(interview *models.Interview) bool {
	return o.queue.Enqueue(interview.ID, interview.UserID)
}

// Create stores a new pending interview
func (o *Orchestrator) Create(ctx context.Context, p CreateParams) (*models.Interview, error) {
	switch {
	case strings.TrimSpace(p.UserID) == "":
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case strings.TrimSpace(p.JobTitle) == "":
		return nil, fmt.Errorf("%w: job title is required", ErrInvalidInput)
	case strings.TrimSpace(p.JobDescription) == "":
		return nil, fmt.Errorf("%w: job description is required", ErrInvalidInput)
	case strings.TrimSpace(p.ResumeText) == "":
		return nil, fmt.Errorf("%w: resume text is required", ErrInvalidInput)
	case p.QuestionsCount < 0 || p.QuestionsCount > o.opts.MaxQuestions:
		return nil, fmt.Errorf("%w: questions count must be between 1 and %d", ErrInvalidInput, o.opts.MaxQuestions)
	}

	count := p.QuestionsCount
	if count == 0 {
		count = o.opts.DefaultQuestions
	}
	iv := &models.Interview{
		UserID:         p.UserID,
		JobTitle:       strings.TrimSpace(p.JobTitle),
		JobDescription: p.JobDescription,
		ResumeText:     p.ResumeText,
		Status:         models.StatusPending,
		QuestionsCount: count,
	}
	if err := o.store.CreateInterview(ctx, iv); err != nil {
		return nil, err
	}
	return iv, nil
}

// Get returns an interview with its transcript and feedback, if any
func (o *Orchestrator) Get(ctx context.Context, interviewID string) (*models.InterviewDetails, error) {
	iv, err := o.load(ctx, "get", interviewID)
	if err != nil {
		return nil, err
	}
	tr, err := o.store.GetTranscript(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	fb, err := o.store.GetFeedback(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	return &models.InterviewDetails{Interview: iv, Transcript: tr, Feedback: fb}, nil
}

// GetFeedback returns the stored feedback of an interview, or ErrFeedbackNotReady
func (o *Orchestrator) GetFeedback(ctx context.Context, interviewID string) (*models.Feedback, error) {
	if _, err := o.load(ctx, "get feedback", interviewID); err != nil {
		return nil, err
	}
	fb, err := o.store.GetFeedback(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if fb == nil {
		return nil, ErrFeedbackNotReady
	}
	return fb, nil
}

// Start moves a pending interview to in-progress and asks the model for the opening question.
// An in-progress interview whose transcript is still empty may be started again.
func (o *Orchestrator) Start(ctx context.Context, interviewID string) (*TurnResult, error) {
	unlock, err := o.locks.Lock(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	iv, err := o.load(ctx, "start", interviewID)
	if err != nil {
		return nil, err
	}

	var tr *models.Transcript
	switch iv.Status {
	case models.StatusPending:
		now := time.Now()
		iv.Status = models.StatusInProgress
		iv.StartTime = &now
		iv.CurrentQuestionIndex = 0
		tr = &models.Transcript{Messages: []models.TranscriptMessage{}}
		if err := o.store.BeginInterview(ctx, iv, tr); err != nil {
			return nil, err
		}
	case models.StatusInProgress:
		tr, err = o.store.GetTranscript(ctx, interviewID)
		if err != nil {
			return nil, err
		}
		if tr == nil || len(tr.Messages) > 0 {
			return nil, wrongStatus("start", iv, models.StatusPending)
		}
		o.logger.Info("Retrying interrupted start", "interview_id", interviewID)
	default:
		return nil, wrongStatus("start", iv, models.StatusPending)
	}

	question, err := o.nextQuestion(ctx, iv, nil)
	if err != nil {
		o.logModelFailure(iv, err)
		return nil, err
	}

	msg := models.NewMessage(models.RoleAssistant, question)
	if err := o.store.AppendTurn(ctx, iv, tr.ID, msg); err != nil {
		return nil, err
	}
	tr.Messages = append(tr.Messages, *msg)

	o.logger.Info("Interview started", "interview_id", iv.ID, "questions", iv.QuestionsCount)
	return &TurnResult{Interview: iv, Transcript: tr, CurrentQuestion: &question}, nil
}

// SubmitAnswer records the candidate's answer. The answer to the last question completes the
// interview and schedules feedback; any other answer is stored together with the next question.
// When the model call fails nothing is stored, so the same answer can be submitted again.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, interviewID, answer string) (*TurnResult, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: answer is required", ErrInvalidInput)
	}

	unlock, err := o.locks.Lock(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	iv, tr, err := o.loadActive(ctx, "submit answer", interviewID)
	if err != nil {
		return nil, err
	}

	answerMsg := models.NewMessage(models.RoleUser, answer)
	if iv.CurrentQuestionIndex >= iv.QuestionsCount-1 {
		if err := o.complete(ctx, iv, tr, answerMsg); err != nil {
			return nil, err
		}
		return &TurnResult{Interview: iv, Transcript: tr, IsComplete: true}, nil
	}

	prior := make([]models.TranscriptMessage, 0, len(tr.Messages)+1)
	prior = append(prior, tr.Messages...)
	prior = append(prior, *answerMsg)

	question, err := o.nextQuestion(ctx, iv, prior)
	if err != nil {
		o.logModelFailure(iv, err)
		return nil, err
	}

	questionMsg := models.NewMessage(models.RoleAssistant, question)
	iv.CurrentQuestionIndex++
	if err := o.store.AppendTurn(ctx, iv, tr.ID, answerMsg, questionMsg); err != nil {
		iv.CurrentQuestionIndex--
		return nil, err
	}
	tr.Messages = append(tr.Messages, *answerMsg, *questionMsg)

	return &TurnResult{Interview: iv, Transcript: tr, CurrentQuestion: &question}, nil
}

// End completes an in-progress interview regardless of how many questions were answered
func (o *Orchestrator) End(ctx context.Context, interviewID string) (*models.Interview, error) {
	unlock, err := o.locks.Lock(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	iv, tr, err := o.loadActive(ctx, "end", interviewID)
	if err != nil {
		return nil, err
	}
	if err := o.complete(ctx, iv, tr); err != nil {
		return nil, err
	}
	return iv, nil
}

// GenerateFeedback returns the feedback of a completed interview, generating and storing it
// on first use. Later calls return the stored record without calling the model.
func (o *Orchestrator) GenerateFeedback(ctx context.Context, interviewID string) (*models.Feedback, error) {
	if fb, err := o.store.GetFeedback(ctx, interviewID); err != nil || fb != nil {
		return fb, err
	}

	unlock, err := o.locks.Lock(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	iv, err := o.load(ctx, "generate feedback", interviewID)
	if err != nil {
		return nil, err
	}
	if fb, err := o.store.GetFeedback(ctx, interviewID); err != nil || fb != nil {
		return fb, err
	}
	if iv.Status != models.StatusCompleted {
		return nil, wrongStatus("generate feedback", iv, models.StatusCompleted)
	}
	tr, err := o.store.GetTranscript(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, notFound("generate feedback", interviewID, "transcript")
	}

	prompt := BuildFeedbackPrompt(iv.ResumeText, iv.JobDescription, tr.Messages)
	text, err := o.callModel(ctx, "generate feedback", func(ctx context.Context) (string, error) {
		return o.gateway.GenerateFeedbackText(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}

	fb := ExtractFeedback(text).ToFeedback(time.Now())
	if err := o.store.SaveFeedback(ctx, iv, fb); err != nil {
		if existing, gerr := o.store.GetFeedback(ctx, interviewID); gerr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	o.logger.Info("Feedback generated", "interview_id", interviewID, "fit_score", fb.FitScore, "skills", len(fb.SkillAssessments))
	saved, err := o.store.GetFeedback(ctx, interviewID)
	if err != nil || saved == nil {
		return fb, nil
	}
	return saved, nil
}

func (o *Orchestrator) load(ctx context.Context, op, interviewID string) (*models.Interview, error) {
	iv, err := o.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv == nil {
		return nil, notFound(op, interviewID, "interview")
	}
	return iv, nil
}

func (o *Orchestrator) loadActive(ctx context.Context, op, interviewID string) (*models.Interview, *models.Transcript, error) {
	iv, err := o.load(ctx, op, interviewID)
	if err != nil {
		return nil, nil, err
	}
	if iv.Status != models.StatusInProgress {
		return nil, nil, wrongStatus(op, iv, models.StatusInProgress)
	}
	tr, err := o.store.GetTranscript(ctx, interviewID)
	if err != nil {
		return nil, nil, err
	}
	if tr == nil {
		return nil, nil, notFound(op, interviewID, "transcript")
	}
	return iv, tr, nil
}

func (o *Orchestrator) complete(ctx context.Context, iv *models.Interview, tr *models.Transcript, msgs ...*models.TranscriptMessage) error {
	now := time.Now()
	prevStatus, prevEnd := iv.Status, iv.EndTime
	iv.Status = models.StatusCompleted
	iv.EndTime = &now
	if err := o.store.CompleteInterview(ctx, iv, tr.ID, msgs...); err != nil {
		iv.Status, iv.EndTime = prevStatus, prevEnd
		return err
	}
	for _, m := range msgs {
		tr.Messages = append(tr.Messages, *m)
	}
	tr.IsComplete = true

	if !o.ScheduleFeedback(iv) {
		o.logger.Warn("Feedback not scheduled, left for retry sweep", "interview_id", iv.ID)
	}
	return nil
}

func (o *Orchestrator) nextQuestion(ctx context.Context, iv *models.Interview, prior []models.TranscriptMessage) (string, error) {
	messages := BuildNextQuestionMessages(BuildInterviewPrompt(iv.ResumeText, iv.JobDescription), prior)
	return o.callModel(ctx, "next question", func(ctx context.Context) (string, error) {
		return o.gateway.GenerateNextQuestion(ctx, iv, messages)
	})
}

type modelResult struct {
	text string
	err  error
}

// callModel runs fn under the model timeout. A gateway that ignores its context is abandoned
// once the deadline passes and its late result is discarded.
func (o *Orchestrator) callModel(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.ModelTimeout)
	defer cancel()

	done := make(chan modelResult, 1)
	go func() {
		text, err := fn(callCtx)
		done <- modelResult{text: text, err: err}
	}()

	var res modelResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}

	if res.err != nil {
		var mErr *ModelCallError
		switch {
		case ctx.Err() != nil:
			return "", fmt.Errorf("%s: %w", op, ctx.Err())
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return "", &ModelCallError{Op: op, Kind: ModelErrorTimeout, Err: res.err}
		case errors.As(res.err, &mErr):
			return "", res.err
		default:
			return "", &ModelCallError{Op: op, Kind: ModelErrorTransport, Err: res.err}
		}
	}
	if strings.TrimSpace(res.text) == "" {
		return "", &ModelCallError{Op: op, Kind: ModelErrorMalformed, Err: errors.New("empty response")}
	}
	return res.text, nil
}

// logModelFailure records a failed model call. The interview keeps its state so the
// caller can retry the same operation.
func (o *Orchestrator) logModelFailure(iv *models.Interview, err error) {
	var mErr *ModelCallError
	if errors.As(err, &mErr) && !mErr.Temporary() {
		o.logger.Error("Model call failed", "interview_id", iv.ID, "kind", mErr.Kind, "error", err)
		return
	}
	o.logger.Warn("Model call failed", "interview_id", iv.ID, "error", err)
}
