package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"bumd-go/internal/app"
	"bumd-go/internal/bumd"
	"bumd-go/internal/config"
	"bumd-go/internal/model"
)

// Global flags.
var (
	verbose        bool
	mdbPath        string
	repositoryPath string
	node           string
	configPath     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the optional config file of storageRoot, applies the
// global flags and resolves every default.
func loadConfig(storageRoot string) (*config.Config, string, error) {
	root, err := filepath.Abs(storageRoot)
	if err != nil {
		return nil, "", fmt.Errorf("resolving storage root: %w", err)
	}

	defaults, err := app.GetDefaults(root)
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	path := defaults["config_path"]
	if configPath != "" {
		path = configPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}

	if node != "" {
		cfg.Host = node
	}
	if cfg.Host == "" {
		cfg.Host = defaults["host"]
	}
	if mdbPath != "" {
		cfg.Database.Path = mdbPath
	}
	if repositoryPath != "" {
		cfg.Repository.Path = repositoryPath
	}
	cfg.Resolve(root)
	return cfg, path, nil
}

// newApp loads the config of storageRoot and creates a BumdApp. The caller
// must defer app.Close().
func newApp(storageRoot, operation string, args []string) (*app.BumdApp, error) {
	cfg, _, err := loadConfig(storageRoot)
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(cfg, operation, args)
}

func newAppFromConfig(cfg *config.Config, operation string, args []string) (*app.BumdApp, error) {
	a, err := app.NewBumdApp(cfg, operation, strings.Join(args, " "), app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:          "bumd",
	Short:        "Deduplicating backup and restore",
	SilenceUsage: true,
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup STORAGE_ROOT SUBJECT...",
	Short: "Back up files and directories",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(args[0])
		if err != nil {
			return err
		}
		if sourceBase, _ := cmd.Flags().GetString("sourcebase"); sourceBase != "" {
			abs, err := filepath.Abs(sourceBase)
			if err != nil {
				return fmt.Errorf("resolving source base: %w", err)
			}
			cfg.SourceBase = abs
		}

		a, err := newAppFromConfig(cfg, "Backup", args[1:])
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext(cmd)
		defer stop()

		res, err := a.Backup(ctx, args[1:])
		if err != nil {
			if res != nil {
				return fmt.Errorf("backup run %d failed: %w", res.RunID, err)
			}
			return fmt.Errorf("backup failed: %w", err)
		}
		if res.Status == model.StatusAborted {
			fmt.Println("Backup aborted.")
			return nil
		}

		fmt.Printf("Run %d complete: %d director(ies), %d link(s), %d file(s)\n",
			res.RunID, res.Directories, res.Links, res.Files)
		fmt.Printf("Hashed %d, reused %d, sent %d (%s)",
			res.Hashed, res.Reused, res.Sent, humanize.Bytes(uint64(res.SentBytes)))
		if res.Skipped > 0 {
			fmt.Printf(", skipped %d", res.Skipped)
		}
		fmt.Println()
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore STORAGE_ROOT [FILTER...]",
	Short: "Restore a run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, _ := cmd.Flags().GetString("dest")
		runID, _ := cmd.Flags().GetInt64("runid")
		noOwner, _ := cmd.Flags().GetBool("no-owner")
		workers, _ := cmd.Flags().GetInt("workers")

		a, err := newApp(args[0], "Restore", args[1:])
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext(cmd)
		defer stop()

		res, err := a.Restore(ctx, bumd.RestoreOptions{
			RunID:         runID,
			Destination:   dest,
			Filters:       args[1:],
			SkipOwnership: noOwner,
			Workers:       workers,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("Restored run %d: %d director(ies), %d link(s), %d file(s) (%s)\n",
			res.RunID, res.Directories, res.Links, res.Files, humanize.Bytes(uint64(res.Bytes)))
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list STORAGE_ROOT [NOT_BEFORE] [NOT_AFTER]",
	Short: "List backup runs",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		allHosts, _ := cmd.Flags().GetBool("all-hosts")
		var notBefore, notAfter string
		if len(args) > 1 {
			notBefore = args[1]
		}
		if len(args) > 2 {
			notAfter = args[2]
		}

		a, err := newApp(args[0], "ListRuns", args[1:])
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.ListRuns(allHosts, notBefore, notAfter)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		fmt.Printf("%6s %12s %19s %19s %10s\n", "RUN", "HOST", "STARTED", "FINISHED", "STATUS")
		for _, r := range runs {
			fmt.Printf("%6d %12s %19s %19s %10s\n",
				r.ID, r.Host, app.FormatTime(&r.StartedAt), app.FormatTime(r.FinishedAt), r.Status)
		}
		return nil
	},
}

// search command
var searchCmd = &cobra.Command{
	Use:   "search STORAGE_ROOT SUBSTRING...",
	Short: "Search recorded paths across hosts and runs",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(args[0], "Search", args[1:])
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.Search(args[1:])
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}

		for _, r := range results {
			fmt.Printf("%4s %12s %19s %s\n", r.Type, r.Host, app.FormatTime(&r.Time), r.Path)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history STORAGE_ROOT LOGICAL_PATH",
	Short: "View the recorded versions of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(args[0], "History", args[1:])
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.History(args[1])
		if err != nil {
			return err
		}

		if len(versions) == 0 {
			fmt.Println("No backup history.")
			return nil
		}

		for _, v := range versions {
			fmt.Printf("#%d  %s  %-8s  %10s  mtime:%s  %s\n",
				v.RunID,
				app.FormatTime(&v.RunStartedAt),
				v.RunStatus,
				humanize.Bytes(uint64(v.Size)),
				app.FormatTime(&v.ModTime),
				string(v.Key)[:12],
			)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify STORAGE_ROOT",
	Short: "Check that a run's content is in the repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetInt64("runid")

		a, err := newApp(args[0], "Verify", nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext(cmd)
		defer stop()

		res, err := a.Verify(ctx, runID)
		if err != nil {
			return err
		}

		for _, m := range res.Missing {
			fmt.Printf("MISSING %s %s\n", m.Key, m.Path)
		}
		fmt.Printf("Run %d: %d file(s), %d object(s) checked, %d missing\n",
			res.RunID, res.Files, res.Keys, len(res.Missing))
		if len(res.Missing) > 0 {
			return fmt.Errorf("%d file(s) reference missing content", len(res.Missing))
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init STORAGE_ROOT",
	Short: "Write a config file with the current defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(args[0])
		if err != nil {
			return err
		}

		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Host: %s\n", cfg.Host)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show STORAGE_ROOT",
	Short: "Print the effective configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("# Effective configuration (file: %s)\n\n", path)
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print progress and debug logging")
	rootCmd.PersistentFlags().StringVarP(&mdbPath, "mdbpath", "m", "", "Metadata database path (default <storage root>/<host>.db)")
	rootCmd.PersistentFlags().StringVarP(&repositoryPath, "repository", "r", "", "Content repository path (default <storage root>/repository)")
	rootCmd.PersistentFlags().StringVarP(&node, "node", "n", "", "Host name recorded for runs (default hostname)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default <storage root>/bumd.toml)")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	// root commands
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().StringP("sourcebase", "s", "", "Path prefix recorded as /")
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringP("dest", "d", "", "Destination directory")
	restoreCmd.MarkFlagRequired("dest")
	restoreCmd.Flags().Int64P("runid", "i", 0, "Run to restore (default latest complete run of the host)")
	restoreCmd.Flags().Bool("no-owner", false, "Do not restore owner and group")
	restoreCmd.Flags().Int("workers", 0, "Files restored concurrently (default from config)")
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("all-hosts", false, "List runs of every host in the metadata database")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Int64P("runid", "i", 0, "Run to verify (default latest complete run of the host)")
	rootCmd.AddCommand(configCmd)
}
