package db

import (
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	run := &Run{
		RunID:   "0b8e6c7e-run-1",
		LogPath: "/tmp/logs/tachyon-setup.log",
	}
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	if run.ID == 0 {
		t.Errorf("expected id to be assigned")
	}
	if run.Status != StatusRunning {
		t.Errorf("default status: got %s, want %s", run.Status, StatusRunning)
	}

	retrieved, err := repo.Get("0b8e6c7e-run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.RunID != run.RunID || retrieved.LogPath != run.LogPath || retrieved.Finished() {
		t.Errorf("retrieved run mismatch: got %+v, want %+v", retrieved, run)
	}
}

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepo(t)

	run, err := repo.Get("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Errorf("expected nil run, got %+v", run)
	}
}

func TestRepository_UpdateStepAndStatus(t *testing.T) {
	repo := newTestRepo(t)

	run := &Run{RunID: "run-2"}
	repo.Create(run)

	if err := repo.UpdateStep("run-2", 7); err != nil {
		t.Fatalf("failed to update step: %v", err)
	}
	if err := repo.UpdateStatus("run-2", StatusFlashFailed, "Flashing failed"); err != nil {
		t.Fatalf("failed to update status: %v", err)
	}

	updated, _ := repo.Get("run-2")
	if updated.Step != 7 {
		t.Errorf("step not updated: got %d, want 7", updated.Step)
	}
	if updated.Status != StatusFlashFailed || updated.ErrorMessage != "Flashing failed" {
		t.Errorf("status not updated: got %s (%q)", updated.Status, updated.ErrorMessage)
	}
	if !updated.Finished() {
		t.Errorf("flash_failed should be terminal")
	}
}

func TestRepository_Update(t *testing.T) {
	repo := newTestRepo(t)

	run := &Run{RunID: "run-3"}
	repo.Create(run)

	run.DeviceID = "3a1b2c3d"
	run.PackagePath = "/cache/abc/tachyon.zip"
	run.BlobPath = "/tmp/tachyon-config123/3a1b2c3d_misc.backup"
	run.Status = StatusCompleted
	if err := repo.Update(run); err != nil {
		t.Fatalf("failed to update run: %v", err)
	}

	got, _ := repo.Get("run-3")
	if got.DeviceID != run.DeviceID || got.PackagePath != run.PackagePath || got.BlobPath != run.BlobPath {
		t.Errorf("update mismatch: got %+v", got)
	}

	if err := repo.Update(&Run{RunID: "missing", Status: StatusFailed}); err == nil {
		t.Errorf("expected error updating a missing run")
	}
}

func TestRepository_InvalidStatus(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.Create(&Run{RunID: "run-4", Status: "exploded"}); err == nil {
		t.Errorf("expected check constraint to reject status")
	}
}

func TestRepository_List(t *testing.T) {
	repo := newTestRepo(t)

	repo.Create(&Run{RunID: "first", Status: StatusCompleted})
	repo.Create(&Run{RunID: "second", Status: StatusFailed})

	runs, err := repo.List()
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "second" {
		t.Errorf("expected newest run first, got %s", runs[0].RunID)
	}
}

func TestRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)

	repo.Create(&Run{RunID: "doomed"})
	if err := repo.Delete("doomed"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	run, _ := repo.Get("doomed")
	if run != nil {
		t.Errorf("run still present after delete")
	}
}
