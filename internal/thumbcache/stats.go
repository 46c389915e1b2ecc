package thumbcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Stats describes current disk tier usage.
type Stats struct {
	Root          string          `json:"root"`
	Buckets       int             `json:"buckets"`
	Entries       int             `json:"entries"`
	TotalBytes    int64           `json:"total_bytes"`
	MemoryEntries int             `json:"memory_entries"`
	Summaries     []BucketSummary `json:"summaries"`
}

// BucketSummary describes one (document, layer) bucket on disk.
type BucketSummary struct {
	Bucket     string    `json:"bucket"`
	Entries    int       `json:"entries"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Stats walks the disk tier. Buckets are listed most recently modified first.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Root: c.root, MemoryEntries: c.Len()}
	if c.root == "" {
		return stats, nil
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("read cache root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !isBucketName(entry.Name()) {
			continue
		}
		summary, err := summarizeBucket(filepath.Join(c.root, entry.Name()))
		if err != nil {
			return stats, err
		}
		summary.Bucket = entry.Name()
		stats.Buckets++
		stats.Entries += summary.Entries
		stats.TotalBytes += summary.SizeBytes
		stats.Summaries = append(stats.Summaries, summary)
	}

	sort.Slice(stats.Summaries, func(i, j int) bool {
		return stats.Summaries[i].ModifiedAt.After(stats.Summaries[j].ModifiedAt)
	})
	return stats, nil
}

func summarizeBucket(dir string) (BucketSummary, error) {
	var summary BucketSummary
	files, err := os.ReadDir(dir)
	if err != nil {
		return summary, fmt.Errorf("read bucket %s: %w", filepath.Base(dir), err)
	}
	for _, file := range files {
		if _, ok := refFromFileName(file.Name()); !ok || file.IsDir() {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		summary.Entries++
		summary.SizeBytes += info.Size()
		if info.ModTime().After(summary.ModifiedAt) {
			summary.ModifiedAt = info.ModTime()
		}
	}
	return summary, nil
}
