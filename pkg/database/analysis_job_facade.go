// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gweizero/engine/pkg/database/model"
)

// ErrJobNotFound is returned when a job row is not found.
var ErrJobNotFound = errors.New("job not found")

// AnalysisJobFacadeInterface defines the database operation interface for
// worker jobs. Every caller-visible status transition goes through Upsert.
type AnalysisJobFacadeInterface interface {
	// EnsureSchema creates the analysis_jobs table and its status index if
	// missing.
	EnsureSchema(ctx context.Context) error

	// Upsert inserts the job or updates every column of the existing row.
	Upsert(ctx context.Context, job *model.AnalysisJob) error

	// Get retrieves a job by ID. Returns nil when absent.
	Get(ctx context.Context, id string) (*model.AnalysisJob, error)

	// LoadAll returns every persisted job.
	LoadAll(ctx context.Context) ([]*model.AnalysisJob, error)

	// WithDB binds the facade to a specific connection.
	WithDB(db *gorm.DB) AnalysisJobFacadeInterface
}

// AnalysisJobFacade implements AnalysisJobFacadeInterface
type AnalysisJobFacade struct {
	BaseFacade
}

// NewAnalysisJobFacade creates a new AnalysisJobFacade instance
func NewAnalysisJobFacade() AnalysisJobFacadeInterface {
	return &AnalysisJobFacade{}
}

func (f *AnalysisJobFacade) WithDB(db *gorm.DB) AnalysisJobFacadeInterface {
	return &AnalysisJobFacade{
		BaseFacade: f.withDB(db),
	}
}

// EnsureSchema creates the table and the status index when missing.
func (f *AnalysisJobFacade) EnsureSchema(ctx context.Context) error {
	db := f.getDB().WithContext(ctx)
	return db.AutoMigrate(&model.AnalysisJob{})
}

// Upsert inserts or fully updates the row by primary key.
func (f *AnalysisJobFacade) Upsert(ctx context.Context, job *model.AnalysisJob) error {
	db := f.getDB().WithContext(ctx)
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(job).Error
}

// Get retrieves a job by ID
func (f *AnalysisJobFacade) Get(ctx context.Context, id string) (*model.AnalysisJob, error) {
	db := f.getDB().WithContext(ctx)
	var job model.AnalysisJob
	err := db.Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// LoadAll returns every persisted job, oldest first.
func (f *AnalysisJobFacade) LoadAll(ctx context.Context) ([]*model.AnalysisJob, error) {
	db := f.getDB().WithContext(ctx)
	var jobs []model.AnalysisJob
	if err := db.Order("created_at ASC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	result := make([]*model.AnalysisJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}
