// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the report-resaver CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/report-resaver/internal/logging"
	"github.com/pdiddy/report-resaver/internal/secrets"
	"github.com/pdiddy/report-resaver/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds credentials loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets

	// logger is the diagnostic logger configured from --log-* flags.
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	logCloser io.Closer
)

// secretDefault returns fallback if set, otherwise the secret value for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	return loadedSecrets.Get(key)
}

// rootCmd is the base command for the report-resaver CLI.
var rootCmd = &cobra.Command{
	Use:   "report-resaver",
	Short: "Batch-resave legacy report files with embedded data",
	Long: `report-resaver loads every .rpt file under a source directory through the
report engine, rebinds its database login (main report and all subreports),
refreshes its data, and saves it with the data embedded under a destination
directory. Outcomes are appended to version, error, and summary logs in the
destination directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/", os.Stderr)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := s.Keys()
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		l, closer, err := logging.New(types.LoggingConfig{
			Level:    viper.GetString("log.level"),
			Format:   viper.GetString("log.format"),
			FilePath: viper.GetString("log.file"),
		}, os.Stderr)
		if err != nil {
			return err
		}
		logger = l
		logCloser = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./report-resaver.yaml or ~/.config/report-resaver/report-resaver.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "diagnostic log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().String("log-format", "text", "diagnostic log format: text or json")
	rootCmd.PersistentFlags().String("log-file", "", "also write diagnostics to this file (rotated)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("report-resaver")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "report-resaver"))
		}
	}

	viper.SetEnvPrefix("REPORT_RESAVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
