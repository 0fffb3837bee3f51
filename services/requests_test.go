package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/krshsl/nora/interview"
	"github.com/krshsl/nora/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"feedback not ready", interview.ErrFeedbackNotReady, http.StatusNotFound, "Feedback not yet generated"},
		{"not found", fmt.Errorf("get: %w", interview.ErrNotFound), http.StatusNotFound, "Interview not found"},
		{"precondition", &interview.PreconditionError{Op: "answer", InterviewID: "x", Status: models.StatusPending}, http.StatusConflict, ""},
		{"invalid input", fmt.Errorf("%w: bad", interview.ErrInvalidInput), http.StatusBadRequest, "bad"},
		{"timeout", &interview.ModelCallError{Op: "next question", Kind: interview.ModelErrorTimeout, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "too long"},
		{"rate limited", &interview.ModelCallError{Op: "next question", Kind: interview.ModelErrorRateLimited, Err: errors.New("429")}, http.StatusBadGateway, "unavailable"},
		{"rejected", &interview.ModelCallError{Op: "next question", Kind: interview.ModelErrorRejected, Err: errors.New("blocked")}, http.StatusBadGateway, "rejected"},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	var req SubmitAnswerRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"answer":"hello"}`))
	require.NoError(t, decodeRequest(httptest.NewRecorder(), r, &req))
	assert.Equal(t, "hello", req.Answer)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"answer":`))
	assert.ErrorIs(t, decodeRequest(httptest.NewRecorder(), r, &req), interview.ErrInvalidInput)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	err := decodeRequest(httptest.NewRecorder(), r, &SubmitAnswerRequest{})
	assert.ErrorIs(t, err, interview.ErrInvalidInput)
	assert.Contains(t, err.Error(), "answer failed required")
}
