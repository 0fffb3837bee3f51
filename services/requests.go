package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/krshsl/nora/interview"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=255"`
}

type CreateInterviewRequest struct {
	JobTitle       string `json:"job_title" validate:"required,max=255"`
	JobDescription string `json:"job_description" validate:"required"`
	ResumeText     string `json:"resume_text" validate:"required"`
	QuestionsCount int    `json:"questions_count" validate:"gte=0"`
}

type SubmitAnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// decodeRequest decodes a JSON body into dst and validates it
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", interview.ErrInvalidInput)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", interview.ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", interview.ErrInvalidInput, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps core errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var pre *interview.PreconditionError
	var mErr *interview.ModelCallError

	switch {
	case errors.Is(err, interview.ErrFeedbackNotReady):
		writeError(w, http.StatusNotFound, "Feedback not yet generated")
	case errors.Is(err, interview.ErrNotFound):
		writeError(w, http.StatusNotFound, "Interview not found")
	case errors.As(err, &pre):
		writeError(w, http.StatusConflict, pre.Error())
	case errors.Is(err, interview.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, interview.ErrModelTimeout):
		writeError(w, http.StatusGatewayTimeout, "The interviewer took too long to respond, please try again")
	case errors.As(err, &mErr):
		if mErr.Temporary() {
			writeError(w, http.StatusBadGateway, "The interviewer is unavailable, please try again")
		} else {
			writeError(w, http.StatusBadGateway, "The interviewer rejected the request")
		}
	default:
		slog.Error("Request failed", "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
