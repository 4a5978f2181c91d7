// Package migrator evolves the attribute value storage layout through named,
// ordered, independently reversible steps. Each step runs in exactly one
// transaction: a failure rolls the whole step back and halts the run, so a
// step is never left half-applied. Steps are re-runnable; every CREATE and
// ALTER checks for prior existence first.
package migrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// Result carries per-step outcome counters. Steps without data movement
// return the zero Result.
type Result struct {
	Copied       int64
	Orphans      int64
	OrphanOwners []uuid.UUID
}

// Step is one reversible unit of the storage evolution.
type Step interface {
	Name() string
	Apply(ctx context.Context, tx pgx.Tx) (Result, error)
	Revert(ctx context.Context, tx pgx.Tx) error
}

// AppliedStep is one journal row.
type AppliedStep struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// Migrator executes a fixed, ordered step sequence against one database.
// It is meant to run from a single instance, never concurrently.
type Migrator struct {
	conn  *db.Connection
	log   *zap.Logger
	steps []Step
}

// New creates a migrator for the given step sequence.
func New(conn *db.Connection, log *zap.Logger, steps ...Step) *Migrator {
	return &Migrator{conn: conn, log: log, steps: steps}
}

const journalTable = "eav_schema_migrations"

func (m *Migrator) ensureJournal(ctx context.Context) error {
	_, err := m.conn.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+journalTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration journal: %w", err)
	}
	return nil
}

// Status returns the journal in version order.
func (m *Migrator) Status(ctx context.Context) ([]AppliedStep, error) {
	if err := m.ensureJournal(ctx); err != nil {
		return nil, err
	}

	rows, err := m.conn.Pool.Query(ctx, `
		SELECT version, name, applied_at FROM `+journalTable+` ORDER BY version`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration journal: %w", err)
	}
	defer rows.Close()

	var applied []AppliedStep
	for rows.Next() {
		var step AppliedStep
		if err := rows.Scan(&step.Version, &step.Name, &step.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		applied = append(applied, step)
	}
	return applied, rows.Err()
}

// Up applies every pending step in order, halting on the first failure.
func (m *Migrator) Up(ctx context.Context) error {
	applied, err := m.Status(ctx)
	if err != nil {
		return err
	}

	next, err := verifyJournal(m.steps, applied)
	if err != nil {
		return err
	}

	for i := next; i < len(m.steps); i++ {
		step := m.steps[i]
		version := i + 1

		var result Result
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			var applyErr error
			result, applyErr = step.Apply(ctx, tx)
			if applyErr != nil {
				return applyErr
			}
			_, applyErr = tx.Exec(ctx,
				`INSERT INTO `+journalTable+` (version, name) VALUES ($1, $2)`,
				version, step.Name(),
			)
			return applyErr
		})
		if err != nil {
			return fmt.Errorf("%w: step %q (version %d): %v", domain.ErrMigrationStep, step.Name(), version, err)
		}

		m.log.Info("applied migration step",
			zap.Int("version", version),
			zap.String("step", step.Name()),
			zap.Int64("rows_copied", result.Copied),
			zap.Int64("orphans", result.Orphans),
		)
		for _, owner := range result.OrphanOwners {
			// Orphans are reported for manual cleanup, never migrated.
			m.log.Warn("orphaned attribute values left in generic table",
				zap.String("step", step.Name()),
				zap.String("owner_id", owner.String()),
			)
		}
	}
	return nil
}

// Down reverts the most recently applied step.
func (m *Migrator) Down(ctx context.Context) error {
	applied, err := m.Status(ctx)
	if err != nil {
		return err
	}

	next, err := verifyJournal(m.steps, applied)
	if err != nil {
		return err
	}
	if next == 0 {
		m.log.Info("no migration steps to revert")
		return nil
	}

	step := m.steps[next-1]
	version := next

	err = m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := step.Revert(ctx, tx); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM `+journalTable+` WHERE version = $1`, version)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: revert of step %q (version %d): %v", domain.ErrMigrationStep, step.Name(), version, err)
	}

	m.log.Info("reverted migration step",
		zap.Int("version", version),
		zap.String("step", step.Name()),
	)
	return nil
}

// verifyJournal checks that the journal is exactly a prefix of the configured
// step sequence and returns the index of the first pending step.
func verifyJournal(steps []Step, applied []AppliedStep) (int, error) {
	if len(applied) > len(steps) {
		return 0, fmt.Errorf("journal has %d entries but only %d steps are configured", len(applied), len(steps))
	}
	for i, row := range applied {
		if row.Version != i+1 {
			return 0, fmt.Errorf("journal gap: expected version %d, found %d", i+1, row.Version)
		}
		if row.Name != steps[i].Name() {
			return 0, fmt.Errorf("journal mismatch at version %d: applied %q, configured %q", row.Version, row.Name, steps[i].Name())
		}
	}
	return len(applied), nil
}
