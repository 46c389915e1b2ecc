package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"framesel/internal/kra"
	"framesel/internal/registry"
	"framesel/internal/session"
	"framesel/internal/thumbcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the thumbnail cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCacheInvalidateCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show thumbnail cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			stats, err := cache.Stats()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:    %s\n", stats.Root)
			fmt.Fprintf(out, "Layers:  %d\n", stats.Buckets)
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:    %s\n", humanize.Bytes(uint64(max(stats.TotalBytes, 0))))
			printCacheBuckets(out, stats.Summaries)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}

func printCacheBuckets(out io.Writer, buckets []thumbcache.BucketSummary) {
	if len(buckets) == 0 {
		fmt.Fprintln(out, "Cached layers: none")
		return
	}
	rows := make([][]string, 0, len(buckets))
	entries, size := 0, int64(0)
	for _, b := range buckets {
		entries += b.Entries
		size += b.SizeBytes
		updated := "unknown"
		if !b.ModifiedAt.IsZero() {
			updated = humanize.Time(b.ModifiedAt)
		}
		rows = append(rows, []string{
			b.Bucket,
			strconv.Itoa(b.Entries),
			humanize.Bytes(uint64(max(b.SizeBytes, 0))),
			updated,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Bucket", "Entries", "Size", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
		"Total", strconv.Itoa(entries), humanize.Bytes(uint64(max(size, 0))), "",
	))
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached thumbnail",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := ctx.acquireLock("clear the cache")
			if err != nil {
				return err
			}
			defer lock.Unlock()

			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			before, err := cache.Stats()
			if err != nil {
				return err
			}
			cache.Clear()
			if before.Entries == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Thumbnail cache already empty")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d thumbnails (%s)\n",
				before.Entries, humanize.Bytes(uint64(max(before.TotalBytes, 0))))
			return nil
		},
	}
}

func newCacheInvalidateCommand(ctx *commandContext) *cobra.Command {
	var layerFlag string
	var refFlag string

	cmd := &cobra.Command{
		Use:   "invalidate <document.kra>",
		Short: "Drop cached thumbnails for a document layer or one content reference",
		Long: "Drop cached thumbnails for one layer of a document, or a single content reference with --ref.\n" +
			"Without --layer, every layer registered for the document is dropped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := session.DocumentKey(args[0])
			layer := kra.NormalizeLayerID(layerFlag)
			ref := kra.ContentRef(strings.TrimSpace(refFlag))
			if ref != "" && layer == "" {
				return errors.New("--ref requires --layer")
			}

			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case ref != "":
				cache.InvalidateEntry(doc, layer, ref)
				fmt.Fprintf(out, "Invalidated %s on layer %s of %s\n", ref, shortLayerID(layer), doc)
				return nil
			case layer != "":
				cache.InvalidateLayer(doc, layer)
				fmt.Fprintf(out, "Invalidated layer %s of %s\n", shortLayerID(layer), doc)
				return nil
			}

			return ctx.withRegistry(func(store *registry.Store) error {
				layers, err := store.Layers(cmd.Context())
				if err != nil {
					return err
				}
				count := 0
				for _, l := range layers {
					if l.Document != doc {
						continue
					}
					cache.InvalidateLayer(doc, l.Layer)
					count++
				}
				fmt.Fprintf(out, "Invalidated %d registered layers of %s\n", count, doc)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&layerFlag, "layer", "", "Layer UUID (braces and case are ignored)")
	cmd.Flags().StringVar(&refFlag, "ref", "", "Content reference, e.g. layer5.f3")
	return cmd
}
