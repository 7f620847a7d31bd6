// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mockFacade(t *testing.T) (AnalysisJobFacadeInterface, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return NewAnalysisJobFacade().WithDB(gdb), mock
}

func jobColumns() []string {
	return []string{"id", "source_code", "status", "attempts", "cancel_requested",
		"created_at", "updated_at", "error", "result", "retry_of"}
}

func TestGetReturnsJob(t *testing.T) {
	facade, mock := mockFacade(t)

	created := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT (.+) FROM "analysis_jobs" WHERE id =`).
		WithArgs("wj-1", 1).
		WillReturnRows(sqlmock.NewRows(jobColumns()).
			AddRow("wj-1", "contract Demo {}", "completed", 1, false,
				created, created, "", []byte(`{"deploymentGas": 400000}`), nil))

	job, err := facade.Get(context.Background(), "wj-1")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "wj-1", job.ID)
	assert.Equal(t, "completed", job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.JSONEq(t, `{"deploymentGas": 400000}`, string(job.Result))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAbsentReturnsNil(t *testing.T) {
	facade, mock := mockFacade(t)

	mock.ExpectQuery(`SELECT (.+) FROM "analysis_jobs" WHERE id =`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows(jobColumns()))

	job, err := facade.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, job)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadAllOldestFirst(t *testing.T) {
	facade, mock := mockFacade(t)

	early := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	retryOf := "wj-1"
	mock.ExpectQuery(`SELECT (.+) FROM "analysis_jobs" ORDER BY created_at ASC`).
		WillReturnRows(sqlmock.NewRows(jobColumns()).
			AddRow("wj-1", "contract A {}", "failed", 1, false, early, early,
				"estimator compile failed", nil, nil).
			AddRow("wj-2", "contract A {}", "queued", 2, false, late, late,
				"", nil, &retryOf))

	jobs, err := facade.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "wj-1", jobs[0].ID)
	assert.Equal(t, "wj-2", jobs[1].ID)
	require.NotNil(t, jobs[1].RetryOf)
	assert.Equal(t, "wj-1", *jobs[1].RetryOf)
	assert.Equal(t, 2, jobs[1].Attempts)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPropagatesQueryError(t *testing.T) {
	facade, mock := mockFacade(t)

	mock.ExpectQuery(`SELECT (.+) FROM "analysis_jobs" WHERE id =`).
		WillReturnError(assert.AnError)

	_, err := facade.Get(context.Background(), "wj-1")
	assert.Error(t, err)
}
