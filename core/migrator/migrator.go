// Package migrator runs one-shot storage migrations, keeping a completion
// marker per migration so each runs exactly once per database.
package migrator

import (
	"fmt"
	"sync"
	"time"

	"github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/zephyrpay/relayer/core/backup"
	"github.com/zephyrpay/relayer/storage"
)

// MigrationFunc performs one migration and returns the number of records it
// updated.
type MigrationFunc func(db storage.Storage) (int, error)

type Migration struct {
	Name     string
	Function MigrationFunc
}

type Migrator struct {
	logger     logging.Logger
	db         storage.Storage
	backup     *backup.Service
	migrations []Migration
	mu         sync.Mutex
}

func NewMigrator(logger logging.Logger, db storage.Storage, backup *backup.Service, migrations []Migration) *Migrator {
	return &Migrator{
		logger:     logger,
		db:         db,
		backup:     backup,
		migrations: migrations,
	}
}

func (m *Migrator) Register(name string, fn MigrationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrations = append(m.migrations, Migration{Name: name, Function: fn})
}

func migrationKey(name string) []byte {
	return []byte(fmt.Sprintf("migration:%s", name))
}

// Run executes every registered migration that has no completion marker yet.
// When anything is pending, a backup is taken first so a bad migration can be
// rolled back.
func (m *Migrator) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hasPending := false
	for _, migration := range m.migrations {
		exists, err := m.db.Exist(migrationKey(migration.Name))
		if err != nil || !exists {
			hasPending = true
			break
		}
	}

	if hasPending && m.backup != nil {
		backupFile, err := m.backup.PerformBackup()
		if err != nil {
			return fmt.Errorf("failed to create backup before migrations: %w", err)
		}
		m.logger.Infof("Database backup created at %s before running migrations", backupFile)
	}

	for _, migration := range m.migrations {
		key := migrationKey(migration.Name)

		exists, err := m.db.Exist(key)
		if exists && err == nil {
			continue
		}

		m.logger.Infof("Running migration: %s", migration.Name)
		recordsUpdated, err := migration.Function(m.db)
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}
		m.logger.Infof("Migration %s completed, %d records updated", migration.Name, recordsUpdated)

		marker := fmt.Sprintf("records=%d,ts=%d", recordsUpdated, time.Now().UnixMilli())
		if err := m.db.Set(key, []byte(marker)); err != nil {
			return fmt.Errorf("failed to mark migration %s as complete: %w", migration.Name, err)
		}
	}

	return nil
}
