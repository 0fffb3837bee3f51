package services

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/models"
	"github.com/krshsl/nora/repository"
)

type InterviewEndpoints struct {
	repo         *repository.GORMRepository
	orchestrator *interview.Orchestrator
}

func NewInterviewEndpoints(repo *repository.GORMRepository, orchestrator *interview.Orchestrator) *InterviewEndpoints {
	return &InterviewEndpoints{repo: repo, orchestrator: orchestrator}
}

type listInterviewsResponse struct {
	Interviews []models.Interview `json:"interviews"`
	Count      int                `json:"count"`
}

func (e *InterviewEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/", e.CreateInterviewHandler)
		r.Get("/", e.ListInterviewsHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", e.GetInterviewHandler)
			r.Post("/start", e.StartInterviewHandler)
			r.Post("/answer", e.SubmitAnswerHandler)
			r.Post("/end", e.EndInterviewHandler)
			r.Get("/transcript", e.GetTranscriptHandler)
		})
	})
	r.Get("/stats", e.StatsHandler)
}

func (e *InterviewEndpoints) CreateInterviewHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	var req CreateInterviewRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	iv, err := e.orchestrator.Create(r.Context(), interview.CreateParams{
		UserID:         user.ID,
		JobTitle:       req.JobTitle,
		JobDescription: req.JobDescription,
		ResumeText:     req.ResumeText,
		QuestionsCount: req.QuestionsCount,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

func (e *InterviewEndpoints) ListInterviewsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	interviews, err := e.repo.ListInterviews(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listInterviewsResponse{Interviews: interviews, Count: len(interviews)})
}

func (e *InterviewEndpoints) GetInterviewHandler(w http.ResponseWriter, r *http.Request) {
	iv, ok := ownedInterview(w, r, e.repo, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	details, err := e.orchestrator.Get(r.Context(), iv.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	details.Transcript = visibleTranscript(details.Transcript)
	writeJSON(w, http.StatusOK, details)
}

func (e *InterviewEndpoints) StartInterviewHandler(w http.ResponseWriter, r *http.Request) {
	iv, ok := ownedInterview(w, r, e.repo, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	res, err := e.orchestrator.Start(r.Context(), iv.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res.Transcript = visibleTranscript(res.Transcript)
	writeJSON(w, http.StatusOK, res)
}

func (e *InterviewEndpoints) SubmitAnswerHandler(w http.ResponseWriter, r *http.Request) {
	iv, ok := ownedInterview(w, r, e.repo, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := e.orchestrator.SubmitAnswer(r.Context(), iv.ID, req.Answer)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res.Transcript = visibleTranscript(res.Transcript)
	writeJSON(w, http.StatusOK, res)
}

func (e *InterviewEndpoints) EndInterviewHandler(w http.ResponseWriter, r *http.Request) {
	iv, ok := ownedInterview(w, r, e.repo, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	ended, err := e.orchestrator.End(r.Context(), iv.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ended)
}

func (e *InterviewEndpoints) GetTranscriptHandler(w http.ResponseWriter, r *http.Request) {
	iv, ok := ownedInterview(w, r, e.repo, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	tr, err := e.repo.GetTranscript(r.Context(), iv.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tr == nil {
		writeError(w, http.StatusNotFound, "Transcript not found")
		return
	}
	writeJSON(w, http.StatusOK, visibleTranscript(tr))
}

func (e *InterviewEndpoints) StatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	stats, err := e.repo.GetUserStats(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ownedInterview loads an interview and checks it belongs to the authenticated user.
// It writes the error response itself and reports false when the request cannot proceed.
func ownedInterview(w http.ResponseWriter, r *http.Request, repo *repository.GORMRepository, id string) (*models.Interview, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}

	iv, err := repo.GetInterview(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if iv == nil {
		writeError(w, http.StatusNotFound, "Interview not found")
		return nil, false
	}
	if iv.UserID != user.ID {
		slog.Warn("Interview access denied", "interview_id", id, "user_id", user.ID)
		writeError(w, http.StatusForbidden, "Not authorized to access this interview")
		return nil, false
	}
	return iv, true
}

// visibleTranscript returns a copy of tr without system messages
func visibleTranscript(tr *models.Transcript) *models.Transcript {
	if tr == nil {
		return nil
	}
	out := *tr
	out.Messages = tr.VisibleMessages()
	return &out
}
