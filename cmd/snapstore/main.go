package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"snapstore/internal/app"
	"snapstore/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer
// a.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.App, error) {
	defaults, err := config.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation, app.RealClock{})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "snapstore",
	Short: "Versioned, compressed point-in-time file backups",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := config.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID:   %s\n", hostID)
		fmt.Printf("App Dir:   %s\n", cfg.AppDir)
		fmt.Printf("Store Dir: %s\n", cfg.StoreDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := config.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:       %s\n", cfg.HostID)
		fmt.Printf("App Dir:       %s\n", cfg.AppDir)
		fmt.Printf("Store Dir:     %s\n", cfg.StoreDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Tracking List: %s\n", cfg.TrackingList)
		fmt.Printf("Delay:         %s\n", cfg.Delay())
		fmt.Printf("Codec:         %s\n", cfg.Codec)
		return nil
	},
}

// track command

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage tracked files",
}

var trackAddCmd = &cobra.Command{
	Use:   "add <path>",
	Short: "Track a file and take its initial backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("TrackAdd")
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.Track(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Tracking %s (backup version %s)\n", entry.Meta.Path(), entry.Meta.Version())
		return nil
	},
}

var trackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked files",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("TrackList")
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.Tracked()
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	},
}

// backup command

var backupCmd = &cobra.Command{
	Use:   "backup <path>",
	Short: "Back up a file now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.Backup(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Backed up %s as version %s (%d bytes)\n",
			entry.Meta.Path(), entry.Meta.Version(), entry.Header.FileSize)
		return nil
	},
}

// restore command

var restoreTo string

var restoreCmd = &cobra.Command{
	Use:   "restore <path>",
	Short: "Restore a file from its backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		dest, err := a.Restore(args[0], restoreTo)
		if err != nil {
			return err
		}
		fmt.Printf("Restored to %s\n", dest)
		return nil
	},
}

// list command

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		entries := a.List()
		if len(entries) == 0 {
			fmt.Println("No backups in store.")
			return nil
		}
		for _, e := range entries {
			created := time.Unix(e.Meta.BackupCreated(), 0).UTC().Format(time.RFC3339)
			fmt.Printf("%s\tv%s\t%s\t%d bytes\t%s\n",
				e.Meta.Path(), e.Meta.Version(), created, e.Header.FileSize, e.Name)
		}
		return nil
	},
}

// watch command

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch tracked files and back them up on change",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Watching tracked files. Press Ctrl-C to stop.")
		return a.Watch(ctx)
	},
}

func init() {
	restoreCmd.Flags().StringVar(&restoreTo, "to", "", "restore to this path instead of the original location")

	configCmd.AddCommand(configInitCmd, configListCmd)
	trackCmd.AddCommand(trackAddCmd, trackListCmd)
	rootCmd.AddCommand(configCmd, trackCmd, backupCmd, restoreCmd, listCmd, watchCmd)
}
