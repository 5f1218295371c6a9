package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return New(db), mock
}

func mockSnapshot() (lifecycle.Document, lifecycle.StatusChange) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	from := lifecycle.StatusReview
	doc := lifecycle.Document{
		ID: "doc-1", DocumentCode: "QA-001", Department: "quality",
		Status: lifecycle.StatusReview, Version: "01.00", Revision: 4,
	}
	next := doc.Clone()
	next.Status = lifecycle.StatusPublished
	next.UpdatedAt = now
	return doc, lifecycle.StatusChange{
		Document: next,
		Transition: lifecycle.TransitionRecord{
			ID: "tr-1", DocumentID: "doc-1", FromStatus: &from, ToStatus: lifecycle.StatusPublished,
			ActorID: "bob", Timestamp: now,
		},
	}
}

func TestStore_CommitStatusChange_LostSwap(t *testing.T) {
	s, mock := newMockStore(t)
	expected, change := mockSnapshot()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "documents" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.CommitStatusChange(context.Background(), expected, change)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitStatusChange_WonSwap(t *testing.T) {
	s, mock := newMockStore(t)
	expected, change := mockSnapshot()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "documents" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "document_transitions"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := s.CommitStatusChange(context.Background(), expected, change)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Revision)
	assert.Equal(t, lifecycle.StatusPublished, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CommitStatusChange_DriverError(t *testing.T) {
	s, mock := newMockStore(t)
	expected, change := mockSnapshot()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "documents" SET`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.CommitStatusChange(context.Background(), expected, change)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConcurrentModification)
	assert.Contains(t, err.Error(), "update document head")
	assert.NoError(t, mock.ExpectationsWereMet())
}
