package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"framesel/internal/kra"
	"framesel/internal/session"
)

type scanGroup struct {
	Ref            string `json:"ref"`
	Times          []int  `json:"times"`
	Representative int    `json:"representative"`
	BlobSize       int64  `json:"blob_size"`
}

type scanLayer struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	KeyframesFile string      `json:"keyframes_file"`
	Groups        []scanGroup `json:"groups"`
}

type scanReport struct {
	Document string      `json:"document"`
	Path     string      `json:"path"`
	Layers   []scanLayer `json:"layers"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var layerFilter string

	cmd := &cobra.Command{
		Use:   "scan <document.kra>...",
		Short: "Show which timeline frames share identical content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ctx.parseOptions()
			reports := make([]scanReport, len(args))

			g, _ := errgroup.WithContext(cmd.Context())
			g.SetLimit(runtime.GOMAXPROCS(0))
			for i, arg := range args {
				g.Go(func() error {
					path, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", arg, err)
					}
					reports[i] = buildScanReport(path, kra.Parse(path, opts...), layerFilter)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, reports)
			}
			out := cmd.OutOrStdout()
			for i, report := range reports {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printScanReport(cmd, report)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of tables")
	cmd.Flags().StringVar(&layerFilter, "layer", "", "Only show the layer with this UUID")
	return cmd
}

func buildScanReport(path string, doc kra.Document, layerFilter string) scanReport {
	report := scanReport{Document: session.DocumentKey(path), Path: path, Layers: []scanLayer{}}
	ids := doc.LayerIDs()
	if layerFilter != "" {
		ids = nil
		if layer, ok := doc.Lookup(layerFilter); ok {
			ids = []string{layer.ID}
		}
	}
	for _, id := range ids {
		layer := doc[id]
		entry := scanLayer{ID: layer.ID, Name: layer.Name, KeyframesFile: layer.KeyframesFile}
		for _, g := range layer.Groups {
			entry.Groups = append(entry.Groups, scanGroup{
				Ref:            string(g.Ref),
				Times:          g.Times,
				Representative: g.Representative,
				BlobSize:       g.BlobSize,
			})
		}
		report.Layers = append(report.Layers, entry)
	}
	return report
}

func printScanReport(cmd *cobra.Command, report scanReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", report.Path)
	if len(report.Layers) == 0 {
		fmt.Fprintln(out, "  No animated layers with content found")
		return
	}
	rows := make([][]string, 0)
	for _, layer := range report.Layers {
		name := displayLayerName(layer.Name, layer.ID)
		for _, g := range layer.Groups {
			rows = append(rows, []string{
				name,
				g.Ref,
				strconv.Itoa(g.Representative),
				strconv.Itoa(len(g.Times)),
				formatTimes(g.Times),
			})
			name = ""
		}
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Layer", "Content", "First", "Uses", "Times"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}
