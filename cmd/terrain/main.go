package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dori/terrain/internal/app"
	"github.com/dori/terrain/internal/config"
	"github.com/dori/terrain/internal/logging"
	"github.com/dori/terrain/internal/ui/theme"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"

	// Global flags
	verbose    bool
	configPath string
	technician string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "terrain",
	Short: "terrain - on-site intervention tracking for field technicians",
	Long: `terrain runs the on-site part of a field-service intervention:
the work timer, time sessions, materials, orders, travel and the billing
breakdown. The timer keeps running while terrain is closed and survives
a lost connection.

Start with "terrain open <id>" on site.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if technician != "" {
			cfg.Technician = technician
		}
		if t, ok := theme.ByName(cfg.Display.Theme); ok {
			theme.SetTheme(t)
		}

		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.File, verbose)
		if err != nil {
			return err
		}
		logger.Debug("configuration loaded",
			zap.String("config", configPath),
			zap.String("driver", cfg.Database.Driver),
			zap.String("technician", cfg.Technician))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("terrain v%s\n", version)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write the effective configuration to the config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists", configPath)
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().StringVarP(&technician, "technician", "t", "", "Technician whose pricing applies (or set TERRAIN_TECHNICIAN)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for one-shot commands")

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(invoiceCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withApp opens the application for one command and closes it after
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
