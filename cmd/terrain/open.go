package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dori/terrain/internal/app"
	"github.com/dori/terrain/internal/onsite"
	"github.com/dori/terrain/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var resyncEvery time.Duration

var openCmd = &cobra.Command{
	Use:   "open <id>",
	Short: "Open an intervention on site",
	Long: `Open the on-site screen for an intervention: run the work timer,
record materials and orders, count travel and watch the bill build up.

Changes that could not reach the database are retried every --resync
interval and whenever you press ctrl+s.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := resolveID(ctx, a, args[0])
		if err != nil {
			return err
		}

		ctrl, release, err := a.Open(ctx, id)
		if err != nil {
			return err
		}
		defer release()

		// Flush whatever a previous run left unsynced
		if _, err := ctrl.Resync(ctx); err != nil {
			logger.Warn("initial resync failed", zap.Error(err))
		}

		return runOnsite(ctx, a, ctrl)
	},
}

func init() {
	openCmd.Flags().DurationVar(&resyncEvery, "resync", 30*time.Second, "Retry interval for unsynced changes (0 disables)")
}

// runOnsite runs the terminal UI and the background resync loop until
// the UI exits or ctx is cancelled
func runOnsite(ctx context.Context, a *app.App, ctrl *onsite.Controller) error {
	root := ui.NewRootModel(ctx, ctrl,
		ui.WithNotifier(a.Notifier),
		ui.WithLogger(logger.Named("ui")),
		ui.WithTheme(cfg.Display.Theme),
	)
	defer root.Close()

	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx))

	eg, egCtx := errgroup.WithContext(ctx)
	uiDone := make(chan struct{})

	eg.Go(func() error {
		defer close(uiDone)
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("error running program: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		if resyncEvery <= 0 {
			return nil
		}
		ticker := time.NewTicker(resyncEvery)
		defer ticker.Stop()
		for {
			select {
			case <-uiDone:
				return nil
			case <-egCtx.Done():
				p.Quit()
				return nil
			case <-ticker.C:
				changed, err := ctrl.Resync(egCtx)
				if err != nil {
					logger.Debug("background resync failed", zap.Error(err))
					continue
				}
				if changed {
					logger.Info("unsynced changes written", zap.String("intervention", ctrl.ID()))
				}
			}
		}
	})

	return eg.Wait()
}
