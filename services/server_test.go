package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/models"
	"github.com/krshsl/nora/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testEvaluation = `1. Overall Assessment
Solid candidate.

2. Strengths:
- Go

3. Areas for improvement:
- Testing

4. Skill Assessments:
- Go: 4/5

5. Job Fit Score: 85

6. Recommendations:
- Pair on testing
`

type stubGateway struct {
	mu            sync.Mutex
	questions     int
	feedbackCalls int
	block         bool
}

func (g *stubGateway) GenerateNextQuestion(ctx context.Context, _ *models.Interview, _ []interview.PromptMessage) (string, error) {
	g.mu.Lock()
	g.questions++
	n, block := g.questions, g.block
	g.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return fmt.Sprintf("Question %d?", n), nil
}

func (g *stubGateway) GenerateFeedbackText(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feedbackCalls++
	return testEvaluation, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.NewGORMRepository(db).AutoMigrate())
	return db
}

func newTestServer(t *testing.T, gateway interview.ModelGateway, modelTimeout time.Duration) (*Server, http.Handler) {
	t.Helper()
	cfg := &Config{
		JWT: JWTConfig{Secret: "test-secret"},
		AI:  AIConfig{Timeout: modelTimeout},
		Interview: InterviewConfig{
			DefaultQuestions: 2,
			MaxQuestions:     10,
		},
	}
	s := NewServer(cfg, newTestDB(t), gateway, nil)
	require.NoError(t, s.InitializeServices())
	t.Cleanup(s.orchestrator.Close)
	return s, s.SetupRoutes()
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func signup(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/api/v1/auth/signup", "", SignupRequest{Email: email, Password: "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AuthResponse](t, rec).AccessToken
}

func createTestInterview(t *testing.T, h http.Handler, token string, questions int) models.Interview {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/api/v1/interviews", token, CreateInterviewRequest{
		JobTitle:       "Backend Engineer",
		JobDescription: "Go services",
		ResumeText:     "Five years of Go",
		QuestionsCount: questions,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Interview](t, rec)
}

type turnResponse struct {
	Interview       models.Interview  `json:"interview"`
	Transcript      models.Transcript `json:"transcript"`
	CurrentQuestion *string           `json:"current_question"`
	IsComplete      bool              `json:"is_complete"`
}

func TestInterviewFlowOverHTTP(t *testing.T) {
	gateway := &stubGateway{}
	_, h := newTestServer(t, gateway, time.Second)
	token := signup(t, h, "candidate@example.com")
	iv := createTestInterview(t, h, token, 2)
	assert.Equal(t, models.StatusPending, iv.Status)
	base := "/api/v1/interviews/" + iv.ID

	rec := call(t, h, http.MethodPost, base+"/answer", token, SubmitAnswerRequest{Answer: "too early"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, h, http.MethodGet, "/api/v1/feedback/"+iv.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Feedback not yet generated")

	rec = call(t, h, http.MethodPost, "/api/v1/feedback/"+iv.ID, token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, base+"/start", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	turn := decode[turnResponse](t, rec)
	require.NotNil(t, turn.CurrentQuestion)
	assert.Equal(t, "Question 1?", *turn.CurrentQuestion)
	assert.Equal(t, models.StatusInProgress, turn.Interview.Status)

	rec = call(t, h, http.MethodPost, base+"/answer", token, SubmitAnswerRequest{Answer: "I built X"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	turn = decode[turnResponse](t, rec)
	assert.False(t, turn.IsComplete)
	assert.Len(t, turn.Transcript.Messages, 3)

	rec = call(t, h, http.MethodPost, base+"/answer", token, SubmitAnswerRequest{Answer: "I built Y"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	turn = decode[turnResponse](t, rec)
	assert.True(t, turn.IsComplete)
	assert.Nil(t, turn.CurrentQuestion)
	assert.Equal(t, models.StatusCompleted, turn.Interview.Status)

	rec = call(t, h, http.MethodGet, base+"/transcript", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tr := decode[models.Transcript](t, rec)
	assert.True(t, tr.IsComplete)
	require.Len(t, tr.Messages, 4)
	assert.Equal(t, "I built Y", tr.Messages[3].Content)

	rec = call(t, h, http.MethodPost, "/api/v1/feedback/"+iv.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[models.Feedback](t, rec)
	assert.Equal(t, 85, first.FitScore)
	assert.Equal(t, []string{"Go"}, first.Strengths)

	rec = call(t, h, http.MethodPost, "/api/v1/feedback/"+iv.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[models.Feedback](t, rec).ID)
	assert.Equal(t, 1, gateway.feedbackCalls)

	rec = call(t, h, http.MethodGet, "/api/v1/feedback", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listFeedbackResponse](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Backend Engineer", list.Feedback[0].JobTitle)

	rec = call(t, h, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode[models.InterviewDetails](t, rec)
	require.NotNil(t, details.Feedback)
	assert.Equal(t, first.ID, details.Feedback.ID)

	rec = call(t, h, http.MethodGet, "/api/v1/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.InterviewStats](t, rec)
	assert.Equal(t, int64(1), stats.TotalInterviews)
	assert.Equal(t, int64(1), stats.CompletedInterviews)
	assert.InDelta(t, 85.0, stats.AverageFitScore, 0.001)
}

func TestInterviewOwnership(t *testing.T) {
	_, h := newTestServer(t, &stubGateway{}, time.Second)
	owner := signup(t, h, "owner@example.com")
	intruder := signup(t, h, "intruder@example.com")
	iv := createTestInterview(t, h, owner, 0)
	assert.Equal(t, 2, iv.QuestionsCount)

	rec := call(t, h, http.MethodGet, "/api/v1/interviews/"+iv.ID, intruder, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, http.MethodPost, "/api/v1/interviews/"+iv.ID+"/start", intruder, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, http.MethodGet, "/api/v1/interviews/does-not-exist", owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodGet, "/api/v1/interviews", intruder, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[listInterviewsResponse](t, rec).Count)

	rec = call(t, h, http.MethodGet, "/api/v1/interviews", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[listInterviewsResponse](t, rec).Count)

	rec = call(t, h, http.MethodGet, "/api/v1/interviews", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateInterviewValidation(t *testing.T) {
	_, h := newTestServer(t, &stubGateway{}, time.Second)
	token := signup(t, h, "validate@example.com")

	rec := call(t, h, http.MethodPost, "/api/v1/interviews", token, CreateInterviewRequest{JobDescription: "d", ResumeText: "r"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobtitle failed required")

	rec = call(t, h, http.MethodPost, "/api/v1/interviews", token, CreateInterviewRequest{JobTitle: "t", JobDescription: "d", ResumeText: "r", QuestionsCount: 50})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h, http.MethodPost, "/api/v1/auth/signup", "", SignupRequest{Email: "validate@example.com", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestModelTimeoutMapsToGatewayTimeout(t *testing.T) {
	gateway := &stubGateway{block: true}
	_, h := newTestServer(t, gateway, 20*time.Millisecond)
	token := signup(t, h, "slow@example.com")
	iv := createTestInterview(t, h, token, 2)

	rec := call(t, h, http.MethodPost, "/api/v1/interviews/"+iv.ID+"/start", token, nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = call(t, h, http.MethodGet, "/api/v1/interviews/"+iv.ID+"/transcript", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.Transcript](t, rec).Messages)
}

func TestHealthAndMetrics(t *testing.T) {
	_, h := newTestServer(t, &stubGateway{}, time.Second)

	rec := call(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, healthResponse{Status: "ok", Database: "up"}, decode[healthResponse](t, rec))

	rec = call(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nora_http_requests_total")
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name           string
		allowedOrigins string
		requestOrigin  string
		expected       bool
	}{
		{name: "Allowed origin - exact match", allowedOrigins: "http://localhost,http://example.com", requestOrigin: "http://localhost", expected: true},
		{name: "Allowed origin - second in list", allowedOrigins: "http://localhost,http://example.com", requestOrigin: "http://example.com", expected: true},
		{name: "Disallowed origin", allowedOrigins: "http://localhost,http://example.com", requestOrigin: "http://malicious.com", expected: false},
		{name: "Empty allowed origins - deny all", allowedOrigins: "", requestOrigin: "http://localhost", expected: false},
		{name: "Origin with whitespace in config", allowedOrigins: "http://localhost, http://example.com", requestOrigin: "http://example.com", expected: true},
		{name: "Port mismatch - deny", allowedOrigins: "http://localhost:5173", requestOrigin: "http://localhost:8080", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
			req.Header.Set("Origin", tt.requestOrigin)

			assert.Equal(t, tt.expected, checkOrigin(req, tt.allowedOrigins))
		})
	}
}
