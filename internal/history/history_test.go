package history_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/entity"
	"audiograb/internal/errs"
	"audiograb/internal/history"
	"audiograb/pkg/logger"
)

func openMemory(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.Open(t.Context(), logger.Discard(), config.History{DSN: ":memory:", Limit: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { store.Close() })

	return store
}

func TestRecordListStats(t *testing.T) {
	ctx := t.Context()
	store := openMemory(t)
	base := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)

	entries := []history.Entry{
		{JobUUID: "j1", VideoID: "a", URL: "https://youtu.be/a", Title: "A", Format: "mp3", Quality: 192,
			Filename: "A.mp3", SizeBytes: 100, Status: entity.FileStatusFinished, CreatedAt: base},
		{JobUUID: "j1", VideoID: "b", URL: "https://youtu.be/b", Title: "B", Format: "mp3", Quality: 192,
			Status: entity.FileStatusError, Error: "download failed", CreatedAt: base.Add(time.Minute)},
		{JobUUID: "j2", VideoID: "c", URL: "https://youtu.be/c", Title: "C", Format: "flac",
			Filename: "C.flac", SizeBytes: 300, Status: entity.FileStatusFinished, CreatedAt: base.Add(2 * time.Minute)},
	}

	for _, e := range entries {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("List with default limit = %d entries, want 2", len(got))
	}

	if got[0].VideoID != "c" || got[1].VideoID != "b" {
		t.Errorf("order = %s, %s, want newest first", got[0].VideoID, got[1].VideoID)
	}

	if got[1].Error != "download failed" || got[1].Status != entity.FileStatusError {
		t.Errorf("failed entry = %+v", got[1])
	}

	if !got[0].CreatedAt.Equal(base.Add(2*time.Minute)) || got[0].ID == 0 {
		t.Errorf("entry = %+v", got[0])
	}

	all, err := store.List(ctx, 10)
	if err != nil || len(all) != 3 {
		t.Fatalf("List(10) = %d, %v", len(all), err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if want := (history.Stats{Total: 3, Successful: 2, Failed: 1, Bytes: 400}); stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}
}

func TestEmptyStats(t *testing.T) {
	stats, err := openMemory(t).Stats(t.Context())
	if err != nil || stats != (history.Stats{}) {
		t.Errorf("Stats = %+v, %v", stats, err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sub", "history.db")
	cfg := config.History{DSN: dsn, Limit: 10}

	first, err := history.Open(t.Context(), logger.Discard(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := first.Record(t.Context(), history.Entry{VideoID: "a", URL: "u", Format: "mp3", Status: entity.FileStatusFinished}); err != nil {
		t.Fatal(err)
	}

	first.Close()

	second, err := history.Open(t.Context(), logger.Discard(), cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	if err := second.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}

	got, err := second.List(t.Context(), 0)
	if err != nil || len(got) != 1 {
		t.Errorf("entries after reopen = %d, %v", len(got), err)
	}
}

func TestDisabled(t *testing.T) {
	store, err := history.Open(t.Context(), logger.Discard(), config.History{})
	if err != nil || store != nil {
		t.Fatalf("Open with empty DSN = %v, %v", store, err)
	}

	if err := store.Record(t.Context(), history.Entry{}); err != nil {
		t.Errorf("Record on disabled history = %v", err)
	}

	if _, err := store.List(t.Context(), 1); !errors.Is(err, errs.ErrHistoryDisabled) {
		t.Errorf("List = %v, want ErrHistoryDisabled", err)
	}

	if _, err := store.Stats(t.Context()); !errors.Is(err, errs.ErrHistoryDisabled) {
		t.Errorf("Stats = %v, want ErrHistoryDisabled", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
