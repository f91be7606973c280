// File: internal/recorder/sqlite.go

// Package recorder persists the application ledger: which offering was
// applied for, with which account, and what came of it.
package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Application is one row of the application ledger.
type Application struct {
	ID           int64
	OfferingName string
	Account      string
	AppliedUnits int
	Status       string
	AppliedAt    time.Time
	ResultStatus string
	AllottedUnit int
	ResultAt     *time.Time
}

// Ledger statuses.
const (
	StatusApplied   = "applied"
	StatusCompleted = "completed"
)

// SQLiteRecorder persists the application ledger to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger.Named("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info("Application ledger opened.", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ipo_applications (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			offering_name  TEXT NOT NULL,
			account        TEXT NOT NULL,
			applied_units  INTEGER NOT NULL,
			status         TEXT NOT NULL DEFAULT 'applied',
			applied_at     INTEGER NOT NULL,
			result_status  TEXT,
			allotted_units INTEGER NOT NULL DEFAULT 0,
			result_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_offering ON ipo_applications(offering_name)`,
		`CREATE INDEX IF NOT EXISTS idx_applications_applied_at ON ipo_applications(applied_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// AddApplication appends one submitted application to the ledger.
func (r *SQLiteRecorder) AddApplication(offeringName, account string, appliedUnits int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO ipo_applications
		(offering_name, account, applied_units, status, applied_at)
		VALUES (?,?,?,?,?)`,
		offeringName, account, appliedUnits, StatusApplied, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// PendingResults lists applications that have been submitted but whose
// allotment result has not been recorded yet.
func (r *SQLiteRecorder) PendingResults() ([]Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT id, offering_name, account, applied_units, status, applied_at
		FROM ipo_applications
		WHERE status = ? AND result_status IS NULL
		ORDER BY applied_at DESC`, StatusApplied)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var app Application
		var appliedAt int64
		if err := rows.Scan(&app.ID, &app.OfferingName, &app.Account,
			&app.AppliedUnits, &app.Status, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		app.AppliedAt = time.Unix(appliedAt, 0)
		out = append(out, app)
	}
	return out, rows.Err()
}

// UpdateResult records the allotment outcome for the most recent application
// to the named offering and marks it completed.
func (r *SQLiteRecorder) UpdateResult(offeringName, resultStatus string, allottedUnits int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.Exec(`UPDATE ipo_applications
		SET result_status = ?, allotted_units = ?, result_at = ?, status = ?
		WHERE id = (
			SELECT id FROM ipo_applications
			WHERE offering_name = ?
			ORDER BY applied_at DESC LIMIT 1
		)`,
		resultStatus, allottedUnits, time.Now().Unix(), StatusCompleted, offeringName,
	)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no application on record for %q", offeringName)
	}
	return nil
}

// Close releases the database handle.
func (r *SQLiteRecorder) Close() error {
	r.logger.Debug("Closing application ledger.")
	return r.db.Close()
}
