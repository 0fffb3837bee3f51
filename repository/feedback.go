package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/krshsl/nora/models"
	"gorm.io/gorm"
)

func (r *GORMRepository) GetFeedback(ctx context.Context, interviewID string) (*models.Feedback, error) {
	var feedback models.Feedback
	err := r.db.WithContext(ctx).
		Where("interview_id = ?", interviewID).
		Preload("SkillAssessments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&feedback).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get feedback", "error", err, "interview_id", interviewID)
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return &feedback, nil
}

// SaveFeedback stores a feedback record and links it to its interview as a single update.
// A second feedback for the same interview fails with ErrConflict.
func (r *GORMRepository) SaveFeedback(ctx context.Context, interview *models.Interview, feedback *models.Feedback) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		feedback.InterviewID = interview.ID
		for i := range feedback.SkillAssessments {
			feedback.SkillAssessments[i].Position = i
		}
		if err := tx.Create(feedback).Error; err != nil {
			return err
		}
		return tx.Model(interview).Update("feedback_id", feedback.ID).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("feedback for interview %s: %w", interview.ID, ErrConflict)
		}
		slog.Error("Failed to save feedback", "error", err, "interview_id", interview.ID)
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	interview.FeedbackID = &feedback.ID
	slog.Info("Feedback saved", "interview_id", interview.ID, "feedback_id", feedback.ID, "fit_score", feedback.FitScore)
	return nil
}

// ListFeedback returns every feedback of a user's interviews, newest first, with the job title attached
func (r *GORMRepository) ListFeedback(ctx context.Context, userID string) ([]models.FeedbackSummary, error) {
	var interviews []models.Interview
	if err := r.db.WithContext(ctx).
		Select("id", "job_title").
		Where("user_id = ? AND feedback_id IS NOT NULL", userID).
		Find(&interviews).Error; err != nil {
		slog.Error("Failed to list interviews with feedback", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to list interviews with feedback: %w", err)
	}
	if len(interviews) == 0 {
		return []models.FeedbackSummary{}, nil
	}

	titles := make(map[string]string, len(interviews))
	ids := make([]string, 0, len(interviews))
	for _, i := range interviews {
		titles[i.ID] = i.JobTitle
		ids = append(ids, i.ID)
	}

	var feedbacks []models.Feedback
	if err := r.db.WithContext(ctx).
		Where("interview_id IN ?", ids).
		Preload("SkillAssessments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("generated_at DESC").
		Find(&feedbacks).Error; err != nil {
		slog.Error("Failed to list feedback", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}

	summaries := make([]models.FeedbackSummary, 0, len(feedbacks))
	for _, f := range feedbacks {
		summaries = append(summaries, models.FeedbackSummary{Feedback: f, JobTitle: titles[f.InterviewID]})
	}
	return summaries, nil
}
