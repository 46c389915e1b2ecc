package thumbcache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/draw"

	"framesel/internal/fileutil"
	"framesel/internal/kra"
	"framesel/internal/logging"
)

const fileExt = ".png"

// Cache is a two-tier content-addressed thumbnail store.
type Cache struct {
	root   string
	logger *slog.Logger
	mu     sync.RWMutex
	memory map[string]image.Image
}

// New creates a cache rooted at root. An empty root keeps the cache
// memory-only.
func New(root string, logger *slog.Logger) *Cache {
	return &Cache{
		root:   strings.TrimSpace(root),
		logger: logging.NewComponentLogger(logger, "thumbcache"),
		memory: make(map[string]image.Image),
	}
}

// Root returns the disk tier directory.
func (c *Cache) Root() string {
	return c.root
}

// BucketFor returns the stable directory name for a (document, layer) pair.
func BucketFor(doc, layer string) string {
	sum := md5.Sum([]byte(doc + "::" + layer))
	return hex.EncodeToString(sum[:])
}

func memoryKey(bucket string, ref kra.ContentRef) string {
	return bucket + "/" + string(ref)
}

func fileName(ref kra.ContentRef) string {
	return url.PathEscape(string(ref)) + fileExt
}

func refFromFileName(name string) (kra.ContentRef, bool) {
	if !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	ref, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
	if err != nil || ref == "" {
		return "", false
	}
	return kra.ContentRef(ref), true
}

// Path returns the tier-2 file for an entry, or "" for a memory-only cache.
func (c *Cache) Path(doc, layer string, ref kra.ContentRef) string {
	if c.root == "" {
		return ""
	}
	return filepath.Join(c.root, BucketFor(doc, layer), fileName(ref))
}

func (c *Cache) entryLogger(doc, layer string, ref kra.ContentRef) *slog.Logger {
	return c.logger.With(
		logging.String(logging.FieldDocument, doc),
		logging.String(logging.FieldLayer, layer),
		logging.String(logging.FieldContentRef, string(ref)),
	)
}

// Get returns the thumbnail for the entry. A disk hit warms the memory tier;
// an unreadable or undecodable file is a miss. The returned image is shared
// with the cache and must not be modified.
func (c *Cache) Get(doc, layer string, ref kra.ContentRef) (image.Image, bool) {
	key := memoryKey(BucketFor(doc, layer), ref)

	c.mu.RLock()
	img, ok := c.memory[key]
	c.mu.RUnlock()
	if ok {
		return img, true
	}

	path := c.Path(doc, layer, ref)
	if path == "" {
		return nil, false
	}
	img, err := decodeFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.entryLogger(doc, layer, ref).Debug("cached thumbnail unreadable; treating as miss",
				logging.String(logging.FieldEventType, "cache_decode_failed"),
				logging.String("cache_path", path),
				logging.Error(err),
			)
		}
		return nil, false
	}

	c.mu.Lock()
	c.memory[key] = img
	c.mu.Unlock()
	return img, true
}

// Has reports whether Get would succeed.
func (c *Cache) Has(doc, layer string, ref kra.ContentRef) bool {
	_, ok := c.Get(doc, layer, ref)
	return ok
}

// Put stores a private copy of img in both tiers, so the caller may reuse
// its buffer. A disk write failure is logged and the entry stays available
// from memory.
func (c *Cache) Put(doc, layer string, ref kra.ContentRef, img image.Image) {
	if img == nil {
		return
	}
	img = ownedCopy(img)
	key := memoryKey(BucketFor(doc, layer), ref)
	c.mu.Lock()
	c.memory[key] = img
	c.mu.Unlock()

	path := c.Path(doc, layer, ref)
	if path == "" {
		return
	}
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return png.Encode(w, img)
	})
	if err != nil {
		logging.WarnWithContext(c.entryLogger(doc, layer, ref), "thumbnail not persisted", "cache_write_failed",
			logging.String("cache_path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions on paths.cache_dir"),
			logging.String(logging.FieldImpact, "thumbnail will be re-rendered after restart"),
		)
	}
}

// InvalidateEntry drops one entry from both tiers. Missing entries are not an
// error.
func (c *Cache) InvalidateEntry(doc, layer string, ref kra.ContentRef) {
	c.mu.Lock()
	delete(c.memory, memoryKey(BucketFor(doc, layer), ref))
	c.mu.Unlock()

	path := c.Path(doc, layer, ref)
	if path == "" {
		return
	}
	if err := fileutil.RemoveIfExists(path); err != nil {
		c.warnRemove(c.entryLogger(doc, layer, ref), path, err)
	}
}

// InvalidateLayer drops every entry of a (document, layer) pair.
func (c *Cache) InvalidateLayer(doc, layer string) {
	bucket := BucketFor(doc, layer)
	c.dropMemory(func(key string) bool {
		return strings.HasPrefix(key, bucket+"/")
	})
	if c.root == "" {
		return
	}
	dir := filepath.Join(c.root, bucket)
	if err := os.RemoveAll(dir); err != nil {
		c.warnRemove(c.logger.With(logging.String(logging.FieldDocument, doc), logging.String(logging.FieldLayer, layer)), dir, err)
	}
}

// Retain drops every entry of the (document, layer) pair whose reference is
// not in keep, from both tiers, and returns how many distinct references were
// evicted.
func (c *Cache) Retain(doc, layer string, keep []kra.ContentRef) int {
	bucket := BucketFor(doc, layer)
	keepSet := make(map[kra.ContentRef]struct{}, len(keep))
	for _, ref := range keep {
		keepSet[ref] = struct{}{}
	}
	evicted := map[kra.ContentRef]struct{}{}

	prefix := bucket + "/"
	c.dropMemory(func(key string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		ref := kra.ContentRef(strings.TrimPrefix(key, prefix))
		if _, ok := keepSet[ref]; ok {
			return false
		}
		evicted[ref] = struct{}{}
		return true
	})

	if c.root != "" {
		dir := filepath.Join(c.root, bucket)
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.warnRemove(c.logger, dir, err)
		}
		for _, entry := range entries {
			ref, ok := refFromFileName(entry.Name())
			if !ok || entry.IsDir() {
				continue
			}
			if _, ok := keepSet[ref]; ok {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := fileutil.RemoveIfExists(path); err != nil {
				c.warnRemove(c.entryLogger(doc, layer, ref), path, err)
				continue
			}
			evicted[ref] = struct{}{}
		}
	}

	if len(evicted) > 0 {
		c.logger.Debug("evicted stale thumbnails",
			logging.String(logging.FieldDocument, doc),
			logging.String(logging.FieldLayer, layer),
			logging.Int("evicted", len(evicted)),
		)
	}
	return len(evicted)
}

// Clear drops everything from both tiers. Only bucket directories are removed
// from the disk tier; unrelated files under root are left alone.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.memory = make(map[string]image.Image)
	c.mu.Unlock()

	if c.root == "" {
		return
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.warnRemove(c.logger, c.root, err)
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() || !isBucketName(entry.Name()) {
			continue
		}
		dir := filepath.Join(c.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			c.warnRemove(c.logger, dir, err)
		}
	}
}

// Len returns the number of memory-tier entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.memory)
}

func (c *Cache) dropMemory(match func(key string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.memory {
		if match(key) {
			delete(c.memory, key)
		}
	}
}

func (c *Cache) warnRemove(logger *slog.Logger, path string, err error) {
	logging.WarnWithContext(logger, "cached thumbnail not removed", "cache_remove_failed",
		logging.String("cache_path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check permissions on paths.cache_dir"),
		logging.String(logging.FieldImpact, "a stale thumbnail may be shown after restart"),
	)
}

func ownedCopy(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func isBucketName(name string) bool {
	if len(name) != md5.Size*2 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}
