// Package audit persists the outcome of operator control submissions. The
// panel keeps no spectral readings; this store exists so an operator can
// answer "who set the integration time to what, and did it take".
package audit

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/lumen-optics/spectra.panel/internal/monitoring"
	"github.com/lumen-optics/spectra.panel/internal/spectro"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the audit database at path. The
// baseline schema is applied inline so a fresh database works without the
// migrations directory; MigrateUp layers any later revisions on top.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS control_changes (
			batch_id          TEXT NOT NULL,
			control_id        TEXT NOT NULL,
			applied_value     TEXT,
			ok                BOOLEAN NOT NULL,
			error             TEXT,
			timestamp         INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_control_changes_batch
			ON control_changes(batch_id);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// ControlChange is one row of the audit log.
type ControlChange struct {
	BatchID   string    `json:"batch_id"`
	ControlID string    `json:"control_id"`
	Value     string    `json:"value,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordControlBatch writes one row per submitted control id, succeeded and
// failed alike, inside a single transaction.
func (db *DB) RecordControlBatch(batchID string, res *spectro.BatchResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO control_changes (batch_id, control_id, applied_value, ok, error)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for id, value := range res.Succeeded {
		if _, err := stmt.Exec(batchID, string(id), value, true, nil); err != nil {
			return fmt.Errorf("failed to record succeeded control %s: %w", id, err)
		}
	}
	for id, reason := range res.Failed {
		if _, err := stmt.Exec(batchID, string(id), nil, false, reason); err != nil {
			return fmt.Errorf("failed to record failed control %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// RecentChanges returns up to limit rows, newest first.
func (db *DB) RecentChanges(limit int) ([]ControlChange, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(
		`SELECT batch_id, control_id, COALESCE(applied_value, ''), ok, COALESCE(error, ''), timestamp
		 FROM control_changes ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []ControlChange
	for rows.Next() {
		var c ControlChange
		var ts int64
		if err := rows.Scan(&c.BatchID, &c.ControlID, &c.Value, &c.OK, &c.Error, &ts); err != nil {
			return nil, err
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// AttachAdminRoutes mounts tailsql live SQL debugging and a gzip backup
// download under /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://panel_audit.db", db.DB, &tailsql.DBOptions{
		Label: "Panel audit DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the audit database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
