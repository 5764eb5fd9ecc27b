package database

import (
	"context"
	"runtime"
	"time"

	"gorm.io/gorm"
)

// inserts multiple bug records into the database
func AddBugs(ctx context.Context, db *gorm.DB, bugs []*Bug) error {
	if len(bugs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(bugs).Error
}

// NewBug creates a new Bug object with the provided parameters
func NewBug(
	projectID string,
	verdictID string,
	poc string,
	harnessName string,
	sanitizer string,
	exitCode int,
	labels []string,
) *Bug {
	return &Bug{
		ProjectID:    projectID,
		VerdictID:    verdictID,
		CreatedAt:    time.Now(),
		Architecture: runtime.GOARCH,
		POC:          poc,
		HarnessName:  harnessName,
		Sanitizer:    sanitizer,
		ExitCode:     exitCode,
		Labels:       labels,
	}
}
