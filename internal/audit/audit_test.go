package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lumen-optics/spectra.panel/internal/spectro"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordControlBatch(t *testing.T) {
	db := newTestDB(t)

	res := spectro.NewBatchResult()
	res.Succeeded[spectro.ControlIntegrationTime] = "1000"
	res.Failed[spectro.ControlID("laser-power")] = "unknown control: laser-power"

	if err := db.RecordControlBatch("batch-1", res); err != nil {
		t.Fatalf("RecordControlBatch failed: %v", err)
	}

	changes, err := db.RecentChanges(10)
	if err != nil {
		t.Fatalf("RecentChanges failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d rows, want 2", len(changes))
	}

	byControl := make(map[string]ControlChange)
	for _, c := range changes {
		if c.BatchID != "batch-1" {
			t.Errorf("row batch id = %q", c.BatchID)
		}
		byControl[c.ControlID] = c
	}

	ok := byControl["integration-time"]
	if !ok.OK || ok.Value != "1000" || ok.Error != "" {
		t.Errorf("succeeded row = %+v", ok)
	}
	failed := byControl["laser-power"]
	if failed.OK || failed.Error == "" || failed.Value != "" {
		t.Errorf("failed row = %+v", failed)
	}
}

func TestRecordControlBatchEmptyResultWritesNothing(t *testing.T) {
	db := newTestDB(t)

	if err := db.RecordControlBatch("batch-empty", spectro.NewBatchResult()); err != nil {
		t.Fatalf("RecordControlBatch failed: %v", err)
	}
	changes, err := db.RecentChanges(10)
	if err != nil {
		t.Fatalf("RecentChanges failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("got %d rows, want 0", len(changes))
	}
}

func TestRecentChangesNewestFirstAndLimited(t *testing.T) {
	db := newTestDB(t)

	for i, batch := range []string{"batch-1", "batch-2", "batch-3"} {
		res := spectro.NewBatchResult()
		res.Succeeded[spectro.ControlIntegrationTime] = "1000"
		if err := db.RecordControlBatch(batch, res); err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}

	changes, err := db.RecentChanges(2)
	if err != nil {
		t.Fatalf("RecentChanges failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d rows, want limit of 2", len(changes))
	}
	if changes[0].BatchID != "batch-3" || changes[1].BatchID != "batch-2" {
		t.Errorf("order = [%s, %s], want newest first", changes[0].BatchID, changes[1].BatchID)
	}
}

func TestRecentChangesDefaultLimit(t *testing.T) {
	db := newTestDB(t)

	res := spectro.NewBatchResult()
	res.Succeeded[spectro.ControlIntegrationTime] = "1000"
	if err := db.RecordControlBatch("batch-1", res); err != nil {
		t.Fatalf("RecordControlBatch failed: %v", err)
	}

	changes, err := db.RecentChanges(0)
	if err != nil {
		t.Fatalf("RecentChanges with zero limit failed: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("got %d rows, want 1", len(changes))
	}
	if changes[0].Timestamp.IsZero() || changes[0].Timestamp.After(time.Now().Add(time.Minute)) {
		t.Errorf("timestamp = %v, want a recent time", changes[0].Timestamp)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")

	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	res := spectro.NewBatchResult()
	res.Succeeded[spectro.ControlIntegrationTime] = "2000"
	if err := db.RecordControlBatch("batch-1", res); err != nil {
		t.Fatalf("RecordControlBatch failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewDB(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	changes, err := reopened.RecentChanges(10)
	if err != nil {
		t.Fatalf("RecentChanges failed: %v", err)
	}
	if len(changes) != 1 || changes[0].Value != "2000" {
		t.Errorf("rows after reopen = %+v", changes)
	}
}
