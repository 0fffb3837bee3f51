package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/krshsl/nora/models"
	"github.com/krshsl/nora/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	DemoUserEmail    = "test@example.com"
	demoUserPassword = "password123"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo *repository.GORMRepository
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo}
}

// SeedDatabase creates the demo user and, when the user has no interviews yet, a sample
// pending interview. Running it again is a no-op.
func (s *DatabaseSeeder) SeedDatabase(ctx context.Context) error {
	user, err := s.seedUser(ctx)
	if err != nil {
		return err
	}

	existing, err := s.repo.ListInterviews(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to check interviews of %s: %w", user.Email, err)
	}
	if len(existing) > 0 {
		slog.Info("Sample interview already exists, skipping", "email", user.Email)
		return nil
	}

	iv := &models.Interview{
		UserID:         user.ID,
		JobTitle:       "Software Engineer",
		JobDescription: "We are looking for a skilled software engineer to join our team. The ideal candidate has experience with JavaScript, React, and Node.js.",
		ResumeText:     "Experienced software developer with 5 years of experience in web development using JavaScript, React, and Node.js.",
		Status:         models.StatusPending,
		QuestionsCount: models.DefaultQuestionsCount,
	}
	if err := s.repo.CreateInterview(ctx, iv); err != nil {
		return fmt.Errorf("failed to create sample interview: %w", err)
	}

	slog.Info("Created sample interview", "interview_id", iv.ID, "email", user.Email)
	return nil
}

// seedUser returns the demo user, creating it when missing
func (s *DatabaseSeeder) seedUser(ctx context.Context) (*models.User, error) {
	existing, err := s.repo.GetUserByEmail(ctx, DemoUserEmail)
	if err != nil {
		return nil, fmt.Errorf("error checking user %s: %w", DemoUserEmail, err)
	}
	if existing != nil {
		slog.Info("User already exists, skipping", "email", DemoUserEmail)
		return existing, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(demoUserPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:    DemoUserEmail,
		Password: string(hashed),
		FullName: "Test User",
		Role:     "user",
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", DemoUserEmail, err)
	}

	slog.Info("Created user", "email", user.Email)
	return user, nil
}
