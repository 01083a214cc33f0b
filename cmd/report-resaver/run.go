// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/report-resaver/internal/engine"
	"github.com/pdiddy/report-resaver/internal/history"
	"github.com/pdiddy/report-resaver/internal/prompt"
	"github.com/pdiddy/report-resaver/internal/resave"
	"github.com/pdiddy/report-resaver/internal/secrets"
	"github.com/pdiddy/report-resaver/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resave every .rpt file under a source directory",
	Long: `Run scans the source directory recursively for .rpt files and resaves each
one into the destination directory with the given database login and data
embedded. A file that fails to load, log on, refresh, or save is recorded in
report_errors_log.txt and the run continues with the next file.

Any input not given by flag, REPORT_RESAVER_* environment variable, or config
file is asked for interactively. The password may also come from
.secrets/db-password.`,
	RunE: runResave,
}

func init() {
	runCmd.Flags().String("source-dir", "", "directory scanned recursively for .rpt files")
	runCmd.Flags().String("dest-dir", "", "directory for resaved reports and run logs")
	runCmd.Flags().String("server", "", "database server name")
	runCmd.Flags().String("database", "", "database name")
	runCmd.Flags().String("user-id", "", "database user ID")
	runCmd.Flags().String("password", "", "database password (prefer .secrets/db-password or the prompt)")
	runCmd.Flags().String("engine-backend", string(types.BackendContainer), "report engine backend: container or exec")
	runCmd.Flags().String("engine-image", engine.DefaultImage, "report engine image (container backend)")
	runCmd.Flags().String("engine-command", "", "report engine host binary (exec backend)")
	runCmd.Flags().Bool("fail-on-errors", false, "exit non-zero if any report failed")
	runCmd.Flags().Bool("no-history", false, "do not record the run in the history database")

	for key, flag := range map[string]string{
		"source_dir":     "source-dir",
		"dest_dir":       "dest-dir",
		"server":         "server",
		"database":       "database",
		"user_id":        "user-id",
		"password":       "password",
		"engine.backend": "engine-backend",
		"engine.image":   "engine-image",
		"engine.command": "engine-command",
	} {
		_ = viper.BindPFlag(key, runCmd.Flags().Lookup(flag))
	}

	rootCmd.AddCommand(runCmd)
}

func runResave(cmd *cobra.Command, args []string) error {
	cfg := resaveConfig(viper.GetViper())
	cfg.Connection.UserID = secretDefault(secrets.DBUserID, cfg.Connection.UserID)
	cfg.Connection.Password = secretDefault(secrets.DBPassword, cfg.Connection.Password)

	if err := prompt.Complete(prompt.New(os.Stdin, os.Stdout), &cfg); err != nil {
		return fmt.Errorf("reading run inputs: %w", err)
	}

	eng, err := engine.New(engineConfig(viper.GetViper()), cfg, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	run := types.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		SourceDir: cfg.SourceDir,
		DestDir:   cfg.DestDir,
	}

	result, err := resave.New(eng, cfg, os.Stdout, logger.With("run", run.ID)).Run(ctx)
	if err != nil {
		return err
	}

	noHistory, _ := cmd.Flags().GetBool("no-history")
	if !noHistory {
		run.FinishedAt = time.Now()
		run.Total = result.Total()
		run.Succeeded = result.Succeeded
		run.Failed = result.Failed
		if err := recordRun(ctx, cfg.DestDir, run, result.Files); err != nil {
			fmt.Fprintf(os.Stderr, "warning: run history not recorded: %v\n", err)
		}
	}

	failOnErrors, _ := cmd.Flags().GetBool("fail-on-errors")
	if failOnErrors && result.HasFailures() {
		return fmt.Errorf("%d report(s) failed processing", result.Failed)
	}
	return nil
}

func recordRun(ctx context.Context, dir string, run types.RunRecord, files []types.FileResult) error {
	store, err := history.Open(dir)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, run, files)
}

// resaveConfig reads the run inputs from v. Missing fields stay empty and
// are prompted for later.
func resaveConfig(v *viper.Viper) types.ResaveConfig {
	return types.ResaveConfig{
		SourceDir: v.GetString("source_dir"),
		DestDir:   v.GetString("dest_dir"),
		Connection: types.ConnectionInfo{
			ServerName:   v.GetString("server"),
			DatabaseName: v.GetString("database"),
			UserID:       v.GetString("user_id"),
			Password:     v.GetString("password"),
		},
	}
}

func engineConfig(v *viper.Viper) types.EngineConfig {
	return types.EngineConfig{
		Backend: types.EngineBackend(v.GetString("engine.backend")),
		Image:   v.GetString("engine.image"),
		Command: v.GetString("engine.command"),
	}
}
