package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"framesel/internal/kra"
	"framesel/internal/registry"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRegistry opens the registry database and verifies its schema.
func CheckRegistry(ctx context.Context, path string) Result {
	const name = "Frame registry"

	store, err := registry.OpenPath(path)
	if err != nil {
		if errors.Is(err, registry.ErrSchemaMismatch) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (schema mismatch: run 'framesel registry clear --reset')", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer store.Close()

	layers, err := store.Layers(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d layers registered)", path, len(layers))}
}

// CheckDocument parses a document and reports how many animated layers it has.
func CheckDocument(path string, opts ...kra.Option) Result {
	const name = "Document"

	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	doc := kra.Parse(path, opts...)
	if len(doc) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (no animated layers found)", path)}
	}
	groups := 0
	for _, layer := range doc {
		groups += len(layer.Groups)
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d layers, %d unique frames)", path, len(doc), groups)}
}
