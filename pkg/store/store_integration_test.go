//go:build integration

package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("edms"),
		tcpostgres.WithUsername("edms"),
		tcpostgres.WithPassword("edms"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return db
}

func openMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	ctr, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithDatabase("edms"),
		tcmysql.WithUsername("edms"),
		tcmysql.WithPassword("edms"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err)
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return db
}

func TestStoreIntegration(t *testing.T) {
	for name, open := range map[string]func(*testing.T) *gorm.DB{
		"postgres": openPostgres,
		"mysql":    openMySQL,
	} {
		t.Run(name, func(t *testing.T) {
			s := New(open(t))
			require.NoError(t, s.AutoMigrate())
			runConcurrentTransitions(t, s)
		})
	}
}

// runConcurrentTransitions races several managers on the same review
// document; exactly one commit may win.
func runConcurrentTransitions(t *testing.T, s *Store) {
	ctx := context.Background()
	e := tickingEngine()
	doc := seedDocument(t, s, e, "QA-900")

	change, err := e.RequestStatusChange(doc, qaAuthor, lifecycle.StatusReview, "ready for review", lifecycle.ClientInfo{})
	require.NoError(t, err)
	doc, err = s.CommitStatusChange(ctx, doc, change)
	require.NoError(t, err)

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		to := lifecycle.StatusPublished
		if i%2 == 1 {
			to = lifecycle.StatusDraft
		}
		c, err := e.RequestStatusChange(doc, qaManager, to, "decision from the review board", lifecycle.ClientInfo{})
		require.NoError(t, err)

		wg.Add(1)
		go func(c lifecycle.StatusChange) {
			defer wg.Done()
			_, err := s.CommitStatusChange(ctx, doc, c)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConcurrentModification):
				conflicts++
			default:
				t.Errorf("unexpected commit error: %v", err)
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, conflicts)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	transitions, err := s.ListTransitions(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, transitions, 3)
	assert.NoError(t, lifecycle.ValidateHistory(got, transitions, nil))
}
