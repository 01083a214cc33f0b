// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/report-resaver/internal/history"
	"github.com/pdiddy/report-resaver/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past resave runs recorded in a destination directory",
	Long: `History reads the run ledger (report_resaver.db) in the destination
directory. Without flags it lists recent runs; --run shows the per-file
outcomes of one run; --export writes report_history.yaml or .json.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("dest-dir", "", "destination directory holding the ledger (default: configured dest_dir)")
	historyCmd.Flags().String("run", "", "show file outcomes for this run ID")
	historyCmd.Flags().Int("limit", 0, "maximum runs to list (0 = default of 20)")
	historyCmd.Flags().String("export", "", "export runs to yaml or json")
	historyCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dest-dir")
	if dir == "" {
		dir = viper.GetString("dest_dir")
	}
	if dir == "" {
		return fmt.Errorf("destination directory required: use --dest-dir or set dest_dir")
	}

	store, err := history.OpenExisting(dir)
	if errors.Is(err, history.ErrNoHistory) {
		fmt.Fprintf(os.Stdout, "No history in %s.\n", dir)
		return nil
	}
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if format, _ := cmd.Flags().GetString("export"); format != "" {
		path, err := store.Export(ctx, format, limit)
		if err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", path)
		return nil
	}

	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		files, err := store.Files(ctx, runID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, files)
		}
		formatFiles(os.Stdout, files)
		return nil
	}

	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(os.Stdout, runs)
	}
	formatRuns(os.Stdout, runs)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatRuns(w io.Writer, runs []types.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-20s  %6s  %9s  %6s  %s\n",
		"Run", "Started", "Total", "Succeeded", "Failed", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %6d  %9d  %6d  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Total, r.Succeeded, r.Failed, r.SourceDir)
	}
	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}

func formatFiles(w io.Writer, files []history.FileEntry) {
	if len(files) == 0 {
		fmt.Fprintln(w, "No files in this run.")
		return
	}

	for _, f := range files {
		switch f.Status {
		case types.FileSucceeded:
			fmt.Fprintf(w, "ok      %s -> %s (version %s)\n", f.Source, f.Dest, f.Version)
		default:
			fmt.Fprintf(w, "failed  %s: %s\n", f.Source, f.Error)
		}
	}
}
