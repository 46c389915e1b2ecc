package registry_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"framesel/internal/kra"
	"framesel/internal/registry"
	"framesel/internal/testsupport"
)

func TestAddIsIdempotentPerPosition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()

	added, err := store.Add(ctx, registry.Frame{Document: "walk.kra", Layer: "ink", LayerName: "Ink", Time: 5, Ref: "layer5.f3"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !added {
		t.Fatal("expected first Add to report added")
	}
	added, err = store.Add(ctx, registry.Frame{Document: "walk.kra", Layer: "ink", Time: 5, Ref: "layer5.f9"})
	if err != nil {
		t.Fatalf("second Add failed: %v", err)
	}
	if added {
		t.Fatal("expected duplicate Add to report not added")
	}

	frame, err := store.Lookup(ctx, "walk.kra", "ink", 5)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if frame == nil || frame.Ref != "layer5.f3" || frame.LayerName != "Ink" {
		t.Fatalf("expected original row kept, got %#v", frame)
	}
	if frame.RegisteredAt.IsZero() {
		t.Fatal("expected registration timestamp")
	}
	if _, err := store.Add(ctx, registry.Frame{Document: "walk.kra", Layer: "ink", Time: -1}); err == nil {
		t.Fatal("expected negative time to be rejected")
	}
}

func TestFramesOrderedAndScopedByLayer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()

	for _, tm := range []int{24, 0, 12} {
		testsupport.RegisterFrame(t, store, "walk.kra", "ink", tm, "ref")
	}
	testsupport.RegisterFrame(t, store, "walk.kra", "color", 3, "ref")
	testsupport.RegisterFrame(t, store, "run.kra", "ink", 1, "ref")

	frames, err := store.Frames(ctx, "walk.kra", "ink")
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 3 || frames[0].Time != 0 || frames[1].Time != 12 || frames[2].Time != 24 {
		t.Fatalf("unexpected frames: %#v", frames)
	}

	has, err := store.Has(ctx, "walk.kra", "color", 3)
	if err != nil || !has {
		t.Fatalf("expected color frame registered, got %v %v", has, err)
	}
	removed, err := store.Remove(ctx, "walk.kra", "color", 3)
	if err != nil || !removed {
		t.Fatalf("expected Remove to succeed, got %v %v", removed, err)
	}
	removed, err = store.Remove(ctx, "walk.kra", "color", 3)
	if err != nil || removed {
		t.Fatalf("expected second Remove to report missing, got %v %v", removed, err)
	}

	n, err := store.ClearLayer(ctx, "walk.kra", "ink")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 rows cleared, got %d %v", n, err)
	}
	frames, err = store.Frames(ctx, "run.kra", "ink")
	if err != nil || len(frames) != 1 {
		t.Fatalf("expected other document untouched, got %#v %v", frames, err)
	}
	missing, err := store.Lookup(ctx, "walk.kra", "ink", 0)
	if err != nil || missing != nil {
		t.Fatalf("expected nil lookup after clear, got %#v %v", missing, err)
	}
}

func TestReplaceLayerSwapsRepresentatives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()

	testsupport.RegisterFrame(t, store, "walk.kra", "ink", 99, "stale")
	testsupport.RegisterFrame(t, store, "walk.kra", "color", 4, "keep")

	groups := []kra.KeyframeGroup{
		{Ref: "layer5.f7", Times: []int{2, 3}, Representative: 2, BlobSize: 2000},
		{Ref: "layer5.f3", Times: []int{0}, Representative: 0, BlobSize: 10, Empty: true},
		{Ref: "layer5.f9", Times: []int{8}, Representative: 8, BlobSize: 500},
	}
	if err := store.ReplaceLayer(ctx, "walk.kra", "ink", "Ink", groups); err != nil {
		t.Fatalf("ReplaceLayer failed: %v", err)
	}

	frames, err := store.Frames(ctx, "walk.kra", "ink")
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected two registered frames, got %#v", frames)
	}
	if frames[0].Time != 2 || frames[0].Ref != "layer5.f7" || frames[1].Time != 8 || frames[1].Ref != "layer5.f9" {
		t.Fatalf("unexpected frames: %#v", frames)
	}

	layers, err := store.Layers(ctx)
	if err != nil {
		t.Fatalf("Layers failed: %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("expected two layers, got %#v", layers)
	}
	if layers[0].Layer != "color" || layers[0].Frames != 1 {
		t.Fatalf("unexpected first layer: %#v", layers[0])
	}
	if layers[1].Layer != "ink" || layers[1].LayerName != "Ink" || layers[1].Frames != 2 {
		t.Fatalf("unexpected second layer: %#v", layers[1])
	}
}

func TestReplaceLayerRollsBackOnCancelledContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)

	testsupport.RegisterFrame(t, store, "walk.kra", "ink", 1, "layer5.f1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	groups := []kra.KeyframeGroup{{Ref: "layer5.f2", Times: []int{2}, Representative: 2, BlobSize: 900}}
	if err := store.ReplaceLayer(ctx, "walk.kra", "ink", "Ink", groups); err == nil {
		t.Fatal("expected cancelled context to fail")
	}

	frames, err := store.Frames(context.Background(), "walk.kra", "ink")
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 1 || frames[0].Time != 1 {
		t.Fatalf("expected previous frames intact, got %#v", frames)
	}
}

func TestReopenPersistsAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.RegisterFrame(t, store, "walk.kra", "ink", 6, "layer5.f6")
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenRegistry(t, cfg)
	ctx := context.Background()
	frame, err := reopened.Lookup(ctx, "walk.kra", "ink", 6)
	if err != nil || frame == nil || frame.Ref != "layer5.f6" {
		t.Fatalf("expected frame to survive reopen, got %#v %v", frame, err)
	}
	n, err := reopened.Clear(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one row cleared, got %d %v", n, err)
	}
}

func TestSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRegistry(t, cfg)
	path := store.Path()
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := registry.Open(cfg); !errors.Is(err, registry.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
