package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/krshsl/nora/models"
	"gorm.io/gorm"
)

// GetTranscript loads the transcript of an interview with its messages in order
func (r *GORMRepository) GetTranscript(ctx context.Context, interviewID string) (*models.Transcript, error) {
	var transcript models.Transcript
	err := r.db.WithContext(ctx).
		Where("interview_id = ?", interviewID).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&transcript).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("Failed to get transcript", "error", err, "interview_id", interviewID)
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &transcript, nil
}

// BeginInterview creates the transcript of an interview and saves its started state in one transaction
func (r *GORMRepository) BeginInterview(ctx context.Context, interview *models.Interview, transcript *models.Transcript) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transcript.InterviewID = interview.ID
		if err := tx.Omit("Messages").Create(transcript).Error; err != nil {
			return fmt.Errorf("failed to create transcript: %w", err)
		}
		interview.TranscriptID = &transcript.ID
		return saveState(tx, interview)
	})
	if err != nil {
		slog.Error("Failed to begin interview", "error", err, "interview_id", interview.ID)
		return err
	}
	slog.Info("Interview started", "interview_id", interview.ID, "transcript_id", transcript.ID)
	return nil
}

// AppendTurn appends messages to a transcript and saves the interview progress atomically
func (r *GORMRepository) AppendTurn(ctx context.Context, interview *models.Interview, transcriptID string, messages ...*models.TranscriptMessage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := appendMessages(tx, transcriptID, messages); err != nil {
			return err
		}
		return saveState(tx, interview)
	})
	if err != nil {
		slog.Error("Failed to append turn", "error", err, "interview_id", interview.ID)
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// CompleteInterview appends any final messages, marks the transcript complete and saves
// the completed interview in one transaction
func (r *GORMRepository) CompleteInterview(ctx context.Context, interview *models.Interview, transcriptID string, messages ...*models.TranscriptMessage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := appendMessages(tx, transcriptID, messages); err != nil {
			return err
		}
		res := tx.Model(&models.Transcript{}).
			Where("id = ? AND is_complete = ?", transcriptID, false).
			Updates(map[string]any{"is_complete": true, "updated_at": time.Now()})
		if res.Error != nil {
			return fmt.Errorf("failed to mark transcript complete: %w", res.Error)
		}
		return saveState(tx, interview)
	})
	if err != nil {
		slog.Error("Failed to complete interview", "error", err, "interview_id", interview.ID)
		return fmt.Errorf("failed to complete interview: %w", err)
	}
	slog.Info("Interview completed", "interview_id", interview.ID)
	return nil
}

func appendMessages(tx *gorm.DB, transcriptID string, messages []*models.TranscriptMessage) error {
	if len(messages) == 0 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.TranscriptMessage{}).Where("transcript_id = ?", transcriptID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count transcript messages: %w", err)
	}

	for i, m := range messages {
		m.TranscriptID = transcriptID
		m.Position = int(count) + i
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
	}
	if err := tx.Create(messages).Error; err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return tx.Model(&models.Transcript{}).Where("id = ?", transcriptID).Update("updated_at", time.Now()).Error
}
