package services

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/models"
	"github.com/krshsl/nora/repository"
)

type FeedbackEndpoints struct {
	repo         *repository.GORMRepository
	orchestrator *interview.Orchestrator
}

func NewFeedbackEndpoints(repo *repository.GORMRepository, orchestrator *interview.Orchestrator) *FeedbackEndpoints {
	return &FeedbackEndpoints{repo: repo, orchestrator: orchestrator}
}

type listFeedbackResponse struct {
	Feedback []models.FeedbackSummary `json:"feedback"`
	Count    int                      `json:"count"`
}

func (e *FeedbackEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/feedback", func(r chi.Router) {
		r.Get("/", e.ListFeedbackHandler)
		r.Get("/{interviewId}", e.GetFeedbackHandler)
		r.Post("/{interviewId}", e.GenerateFeedbackHandler)
	})
}

func (e *FeedbackEndpoints) ListFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	feedback, err := e.repo.ListFeedback(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listFeedbackResponse{Feedback: feedback, Count: len(feedback)})
}

func (e *FeedbackEndpoints) GetFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	iv, ok := ownedInterview(w, r, e.repo, chi.URLParam(r, "interviewId"))
	if !ok {
		return
	}

	fb, err := e.orchestrator.GetFeedback(r.Context(), iv.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}

// GenerateFeedbackHandler generates feedback on demand; an existing record is returned as is
func (e *FeedbackEndpoints) GenerateFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	iv, ok := ownedInterview(w, r, e.repo, chi.URLParam(r, "interviewId"))
	if !ok {
		return
	}
	if iv.Status != models.StatusCompleted {
		writeError(w, http.StatusBadRequest, "Cannot generate feedback for an incomplete interview")
		return
	}

	fb, err := e.orchestrator.GenerateFeedback(r.Context(), iv.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
