package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"framesel/internal/fileutil"
	"framesel/internal/registry"
	"framesel/internal/session"
)

func newRegistryCommand(ctx *commandContext) *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Manage registered frames",
	}

	registryCmd.AddCommand(newRegistryListCommand(ctx))
	registryCmd.AddCommand(newRegistrySyncCommand(ctx))
	registryCmd.AddCommand(newRegistryClearCommand(ctx))

	return registryCmd
}

func newRegistryListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list [document.kra]",
		Short: "List registered layers, or the frames of one document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRegistry(func(store *registry.Store) error {
				layers, err := store.Layers(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 0 {
					if jsonOutput {
						return writeJSON(cmd, layers)
					}
					printRegisteredLayers(cmd, layers)
					return nil
				}

				doc := session.DocumentKey(args[0])
				type frameView struct {
					Layer     string `json:"layer"`
					LayerName string `json:"layer_name"`
					Time      int    `json:"time"`
					Ref       string `json:"ref"`
				}
				views := []frameView{}
				for _, l := range layers {
					if l.Document != doc {
						continue
					}
					frames, err := store.Frames(cmd.Context(), doc, l.Layer)
					if err != nil {
						return err
					}
					for _, f := range frames {
						views = append(views, frameView{Layer: f.Layer, LayerName: f.LayerName, Time: f.Time, Ref: string(f.Ref)})
					}
				}
				if jsonOutput {
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintf(out, "No frames registered for %s\n", doc)
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{displayLayerName(v.LayerName, v.Layer), strconv.Itoa(v.Time), v.Ref})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Layer", "Frame", "Content"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func printRegisteredLayers(cmd *cobra.Command, layers []registry.LayerSummary) {
	out := cmd.OutOrStdout()
	if len(layers) == 0 {
		fmt.Fprintln(out, "No frames registered")
		return
	}
	rows := make([][]string, 0, len(layers))
	for _, l := range layers {
		rows = append(rows, []string{l.Document, displayLayerName(l.LayerName, l.Layer), shortLayerID(l.Layer), strconv.Itoa(l.Frames)})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Document", "Layer", "ID", "Frames"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
}

func newRegistrySyncCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sync <document.kra>...",
		Short: "Re-parse documents, register their unique frames and evict stale thumbnails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			cache, err := ctx.openCache()
			if err != nil {
				return err
			}
			return ctx.withRegistry(func(store *registry.Store) error {
				results := make([]session.RefreshResult, 0, len(args))
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", arg, err)
					}
					s := session.New(path, cache, nil,
						session.WithRegistry(store),
						session.WithParseOptions(ctx.parseOptions()...),
						session.WithLogger(logger),
					)
					result, err := s.Refresh(cmd.Context())
					s.Close()
					if err != nil {
						return err
					}
					results = append(results, result)
				}
				if jsonOutput {
					return writeJSON(cmd, results)
				}
				for _, r := range results {
					printRefreshResult(cmd, r)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")
	return cmd
}

func printRefreshResult(cmd *cobra.Command, r session.RefreshResult) {
	out := cmd.OutOrStdout()
	if r.Layers == 0 {
		fmt.Fprintf(out, "%s: no animated layers found; registry unchanged\n", r.Document)
		return
	}
	fmt.Fprintf(out, "%s: %d layers, %d unique frames registered", r.Document, r.Layers, r.Groups)
	if r.Evicted > 0 {
		fmt.Fprintf(out, ", %d stale thumbnails evicted", r.Evicted)
	}
	if r.DroppedLayers > 0 {
		fmt.Fprintf(out, ", %d deleted layers dropped", r.DroppedLayers)
	}
	fmt.Fprintln(out)
}

func newRegistryClearCommand(ctx *commandContext) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every registered frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if reset {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				removed, err := removeDatabase(cfg.Paths.RegistryPath)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintln(out, "Registry database did not exist")
					return nil
				}
				fmt.Fprintf(out, "Deleted registry database %s\n", cfg.Paths.RegistryPath)
				return nil
			}
			return ctx.withRegistry(func(store *registry.Store) error {
				n, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d registered frames\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete the database file instead of its rows (fixes schema mismatches)")
	return cmd
}

// removeDatabase deletes a SQLite database along with its WAL side files.
func removeDatabase(path string) (bool, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return false, fmt.Errorf("stat registry: %w", statErr)
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := fileutil.RemoveIfExists(p); err != nil {
			return false, fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return existed, nil
}
