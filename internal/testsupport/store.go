package testsupport

import (
	"context"
	"testing"

	"framesel/internal/config"
	"framesel/internal/kra"
	"framesel/internal/registry"
)

// MustOpenRegistry opens a registry.Store for tests and registers cleanup.
func MustOpenRegistry(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RegisterFrame adds a frame for tests using the provided store.
func RegisterFrame(t testing.TB, store *registry.Store, doc, layer string, tm int, ref string) {
	t.Helper()

	if _, err := store.Add(context.Background(), registry.Frame{
		Document: doc,
		Layer:    layer,
		Time:     tm,
		Ref:      kra.ContentRef(ref),
	}); err != nil {
		t.Fatalf("store.Add: %v", err)
	}
}
