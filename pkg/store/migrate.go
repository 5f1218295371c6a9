package store

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

const migrationLockName = "edms-migration"

// Migrator is implemented by every component that owns tables.
type Migrator interface {
	AutoMigrate() error
}

// MigrationLocker serializes schema migrations across replicas that share a
// database.
type MigrationLocker interface {
	// WithLock runs fn while holding the lock and always releases it.
	WithLock(ctx context.Context, fn func() error) error
}

// Migrate runs every migrator under the lock, stopping at the first error.
func Migrate(ctx context.Context, locker MigrationLocker, migrators ...Migrator) error {
	return locker.WithLock(ctx, func() error {
		for _, m := range migrators {
			if err := m.AutoMigrate(); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewMigrationLocker picks a lock for the dialect: advisory locks on
// PostgreSQL, named locks on MySQL and a lock row everywhere else.
func NewMigrationLocker(db *gorm.DB) MigrationLocker {
	if db == nil {
		return noopLock{}
	}
	switch db.Dialector.Name() {
	case "postgres":
		return &advisoryLock{db: db, key: int64(crc32.ChecksumIEEE([]byte(migrationLockName)))}
	case "mysql":
		return &namedLock{db: db, name: migrationLockName, timeout: 60 * time.Second}
	}
	// The table exists before the first WithLock so racing callers never
	// see "no such table".
	_ = db.AutoMigrate(&migrationLockRow{})
	return &rowLock{db: db, attempts: 30, interval: time.Second, staleAfter: 5 * time.Minute}
}

type noopLock struct{}

func (noopLock) WithLock(_ context.Context, fn func() error) error { return fn() }

// advisoryLock holds a session-level pg advisory lock. Lock and unlock run
// on one pinned connection, since the lock belongs to the session.
type advisoryLock struct {
	db  *gorm.DB
	key int64
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.key).Error; err != nil {
			return fmt.Errorf("acquire migration advisory lock: %w", err)
		}
		defer conn.Exec("SELECT pg_advisory_unlock(?)", l.key)
		return fn()
	})
}

// namedLock uses MySQL GET_LOCK, which is also session scoped.
type namedLock struct {
	db      *gorm.DB
	name    string
	timeout time.Duration
}

func (l *namedLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var got *int
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", l.name, int(l.timeout.Seconds())).Scan(&got).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if got == nil || *got != 1 {
			return fmt.Errorf("migration lock %q not acquired within %s", l.name, l.timeout)
		}
		defer conn.Exec("SELECT RELEASE_LOCK(?)", l.name)
		return fn()
	})
}

type migrationLockRow struct {
	Name     string    `gorm:"primaryKey;column:name"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRow) TableName() string { return "schema_migration_lock" }

// rowLock claims the lock by inserting a row with a fixed primary key. Rows
// older than staleAfter belong to a crashed holder and are cleared.
type rowLock struct {
	db         *gorm.DB
	attempts   int
	interval   time.Duration
	staleAfter time.Duration
}

func (l *rowLock) WithLock(ctx context.Context, fn func() error) error {
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}

	var lastErr error
	for i := 0; i < l.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.db.WithContext(ctx).
			Where("name = ? AND locked_at < ?", migrationLockName, time.Now().Add(-l.staleAfter)).
			Delete(&migrationLockRow{})

		row := migrationLockRow{Name: migrationLockName, LockedAt: time.Now(), LockedBy: holder}
		lastErr = l.db.WithContext(ctx).Create(&row).Error
		if lastErr == nil {
			defer l.db.Where("name = ?", migrationLockName).Delete(&migrationLockRow{})
			return fn()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
	return errors.Join(fmt.Errorf("migration lock not acquired after %d attempts", l.attempts), lastErr)
}
