package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tjfontaine/assetd/internal/core/domain"
	"github.com/tjfontaine/assetd/internal/core/ports"
)

func record(asset string) *domain.CompilationRecord {
	return &domain.CompilationRecord{
		Asset:  asset,
		Route:  "/assets/" + asset,
		Source: "www/assets/" + asset + ".tmpl",
		Stages: []domain.StageOutcome{{Stage: "template", Status: domain.StatusOK}},
	}
}

func TestMemoryStore_SaveAndGet(t *testing.T) {
	store := New(10)
	ctx := context.Background()

	rec := record("script")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Save() did not assign an ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("Save() did not assign CreatedAt")
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Route != rec.Route || got.Asset != rec.Asset {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}

	// Stored records are copies.
	got.Stages[0].Status = domain.StatusDegraded
	again, _ := store.Get(ctx, rec.ID)
	if again.Stages[0].Status != domain.StatusOK {
		t.Error("mutating a returned record changed the stored one")
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	_, err := New(1).Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("Get() error = %v, want ErrRecordNotFound", err)
	}
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := New(3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		rec := record("script")
		rec.ID = fmt.Sprintf("rec-%d", i)
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		ids = append(ids, rec.ID)
	}

	if store.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", store.Len())
	}
	for _, id := range ids[:2] {
		if _, err := store.Get(ctx, id); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Errorf("Get(%s) error = %v, want evicted", id, err)
		}
	}

	list, err := store.List(ctx, ports.JournalListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"rec-4", "rec-3", "rec-2"}
	if len(list) != len(want) {
		t.Fatalf("List() returned %d records, want %d", len(list), len(want))
	}
	for i, rec := range list {
		if rec.ID != want[i] {
			t.Errorf("List()[%d].ID = %s, want %s", i, rec.ID, want[i])
		}
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	for _, asset := range []string{"script", "style", "script", "style", "script"} {
		if err := store.Save(ctx, record(asset)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	tests := []struct {
		name string
		opts ports.JournalListOptions
		want int
	}{
		{"all", ports.JournalListOptions{}, 5},
		{"scripts", ports.JournalListOptions{Asset: "script"}, 3},
		{"styles", ports.JournalListOptions{Asset: "style"}, 2},
		{"limited", ports.JournalListOptions{Limit: 2}, 2},
		{"limited by asset", ports.JournalListOptions{Asset: "script", Limit: 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.List(ctx, tt.opts)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("List() returned %d records, want %d", len(list), tt.want)
			}
			for _, rec := range list {
				if tt.opts.Asset != "" && rec.Asset != tt.opts.Asset {
					t.Errorf("List() returned asset %s, want %s", rec.Asset, tt.opts.Asset)
				}
			}
		})
	}
}
