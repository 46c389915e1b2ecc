// Package docwatch notices when a document file is saved so its structure
// can be re-parsed. It watches the parent directory with fsnotify, which
// survives the host's write-to-temp-then-rename saves, and falls back to
// stat polling when fsnotify is unavailable or FRAMESEL_FORCE_POLL is set.
package docwatch
