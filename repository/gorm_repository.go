package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/krshsl/nora/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(models.All()...)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
		}
		slog.Error("Failed to create user", "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Interview operations
func (r *GORMRepository) CreateInterview(ctx context.Context, interview *models.Interview) error {
	if err := r.db.WithContext(ctx).Create(interview).Error; err != nil {
		slog.Error("Failed to create interview", "error", err, "user_id", interview.UserID)
		return fmt.Errorf("failed to create interview: %w", err)
	}
	slog.Info("Interview created", "interview_id", interview.ID, "user_id", interview.UserID)
	return nil
}

func (r *GORMRepository) GetInterview(ctx context.Context, id string) (*models.Interview, error) {
	var interview models.Interview
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&interview).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get interview", "error", err, "interview_id", id)
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	return &interview, nil
}

// ListInterviews returns a user's interviews, newest first
func (r *GORMRepository) ListInterviews(ctx context.Context, userID string) ([]models.Interview, error) {
	var interviews []models.Interview
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&interviews).Error
	if err != nil {
		slog.Error("Failed to list interviews", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to list interviews: %w", err)
	}
	return interviews, nil
}

// SaveInterviewState persists the mutable lifecycle columns of an interview
func (r *GORMRepository) SaveInterviewState(ctx context.Context, interview *models.Interview) error {
	if err := saveState(r.db.WithContext(ctx), interview); err != nil {
		slog.Error("Failed to save interview state", "error", err, "interview_id", interview.ID)
		return fmt.Errorf("failed to save interview state: %w", err)
	}
	return nil
}

// ListAwaitingFeedback returns completed interviews that have no linked feedback.
// Interviews never re-queued come first, then the least recently attempted.
func (r *GORMRepository) ListAwaitingFeedback(ctx context.Context, limit int) ([]models.Interview, error) {
	var interviews []models.Interview
	err := r.db.WithContext(ctx).
		Where("status = ? AND feedback_id IS NULL", models.StatusCompleted).
		Order("feedback_attempted_at IS NOT NULL, feedback_attempted_at ASC, end_time ASC").
		Limit(limit).
		Find(&interviews).Error
	if err != nil {
		slog.Error("Failed to list interviews awaiting feedback", "error", err)
		return nil, fmt.Errorf("failed to list interviews awaiting feedback: %w", err)
	}
	return interviews, nil
}

// MarkFeedbackAttempt records that feedback generation was re-queued for an interview
func (r *GORMRepository) MarkFeedbackAttempt(ctx context.Context, interviewID string, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ?", interviewID).
		UpdateColumn("feedback_attempted_at", at).Error
	if err != nil {
		slog.Error("Failed to mark feedback attempt", "interview_id", interviewID, "error", err)
		return fmt.Errorf("failed to mark feedback attempt: %w", err)
	}
	return nil
}

// ListStaleInProgress returns in-progress interviews started before cutoff
func (r *GORMRepository) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Interview, error) {
	var interviews []models.Interview
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time < ?", models.StatusInProgress, cutoff).
		Find(&interviews).Error
	if err != nil {
		slog.Error("Failed to list stale interviews", "error", err, "cutoff", cutoff)
		return nil, fmt.Errorf("failed to list stale interviews: %w", err)
	}
	return interviews, nil
}

// GetUserStats aggregates interview counts and the average fit score of a user
func (r *GORMRepository) GetUserStats(ctx context.Context, userID string) (*models.InterviewStats, error) {
	var stats models.InterviewStats
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Interview{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalInterviews).Error; err != nil {
		slog.Error("Failed to count interviews", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to count interviews: %w", err)
	}

	if err := db.Model(&models.Interview{}).
		Where("user_id = ? AND status = ?", userID, models.StatusCompleted).
		Count(&stats.CompletedInterviews).Error; err != nil {
		slog.Error("Failed to count completed interviews", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to count completed interviews: %w", err)
	}

	var avg sql.NullFloat64
	row := db.Model(&models.Feedback{}).
		Select("AVG(feedbacks.fit_score)").
		Joins("JOIN interviews ON interviews.id = feedbacks.interview_id").
		Where("interviews.user_id = ? AND interviews.deleted_at IS NULL", userID).
		Row()
	if err := row.Scan(&avg); err != nil {
		slog.Error("Failed to average fit score", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to average fit score: %w", err)
	}
	if avg.Valid {
		stats.AverageFitScore = avg.Float64
	}

	var last models.Interview
	err := db.Where("user_id = ?", userID).Order("updated_at DESC").First(&last).Error
	switch {
	case err == nil:
		stats.LastActivity = &last.UpdatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		slog.Error("Failed to get last activity", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to get last activity: %w", err)
	}

	return &stats, nil
}

func saveState(tx *gorm.DB, interview *models.Interview) error {
	return tx.Model(interview).
		Select("status", "start_time", "end_time", "current_question_index", "transcript_id", "feedback_id", "updated_at").
		Updates(interview).Error
}
