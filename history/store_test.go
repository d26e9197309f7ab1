package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lightning_backend/predictor"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"), "file://migrations")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord(id string, createdAt time.Time) predictor.Record {
	return predictor.Record{
		ID:            id,
		Prompt:        "a watercolor fox",
		Scheduler:     "K_EULER",
		Seed:          42,
		Width:         1024,
		Height:        1024,
		NumOutputs:    2,
		Steps:         4,
		Guidance:      0,
		OutputCount:   1,
		FilteredCount: 1,
		DurationMS:    3500,
		CreatedAt:     createdAt,
	}
}

func TestStore_RecordAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := sampleRecord("pred-1", time.Now().UTC().Truncate(time.Second))
	if err := store.Record(ctx, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.Get(ctx, "pred-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Prompt != want.Prompt || got.Seed != want.Seed || got.FilteredCount != want.FilteredCount {
		t.Errorf("record mismatch: got %+v, want %+v", got, want)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestStore_Recent_NewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		rec := sampleRecord("pred-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := store.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].ID != "pred-e" || records[2].ID != "pred-c" {
		t.Errorf("records not newest first: %s, %s, %s",
			records[0].ID, records[1].ID, records[2].ID)
	}
}

func TestStore_Recent_DefaultLimit(t *testing.T) {
	store := openTestStore(t)

	records, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("empty store should return no records, got %d", len(records))
	}
}

func TestStore_Count(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("fresh store count = %d, want 0", count)
	}

	if err := store.Record(ctx, sampleRecord("pred-1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, sampleRecord("pred-2", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	count, err = store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("pred-1", time.Now().UTC())
	if err := store.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, rec); err == nil {
		t.Error("duplicate prediction ID should be rejected")
	}
}
