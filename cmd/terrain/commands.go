package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dori/terrain/internal/app"
	"github.com/dori/terrain/internal/billing"
	"github.com/dori/terrain/internal/db"
	"github.com/dori/terrain/internal/invoice"
	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
	"github.com/dori/terrain/internal/onsite"
	"github.com/dori/terrain/internal/timer"
	"github.com/dori/terrain/internal/ui/views"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var listAll bool

var addCmd = &cobra.Command{
	Use:   "add <address...>",
	Short: "Create an intervention",
	Long: `Create an intervention from a one-line address.

  terrain add 12 Rue des Lilas, Nantes cp:44000 @alex

@name assigns a technician and cp: sets the postal code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := parseQuickAdd(strings.Join(args, " "))
		if in.Address.IsZero() {
			return errors.New("an address is required")
		}
		in.CreatedBy = cfg.Technician

		return withApp(func(ctx context.Context, a *app.App) error {
			inv, err := a.DB.CreateIntervention(ctx, in)
			if err != nil {
				return err
			}
			logger.Info("intervention created", zap.String("id", inv.ID))
			fmt.Printf("Created %s  %s\n", shortRef(inv.ID), inv.Address)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List interventions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			var statuses []model.Status
			if !listAll {
				statuses = lifecycle.ActiveStatuses()
			}
			invs, err := a.DB.List(ctx, statuses...)
			if err != nil {
				return err
			}
			if len(invs) == 0 {
				fmt.Println("No interventions")
				return nil
			}
			reconcileAll(a, invs)
			printList(os.Stdout, invs, time.Now())
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an intervention and its bill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			id, err := resolveID(ctx, a, args[0])
			if err != nil {
				return err
			}
			inv, err := loadIntervention(ctx, a, id)
			if err != nil {
				return err
			}
			profile, err := lookupProfile(ctx, a, inv)
			if err != nil {
				return err
			}
			printIntervention(os.Stdout, inv, profile, time.Now())
			return nil
		})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <id> <day> <HH:MM>",
	Short: "Plan the visit of an open intervention",
	Long: `Plan a visit. The day is today, tomorrow, a weekday name,
nextweek or a date (2026-03-02, 02/03/2026, 02/03, "Mar 2").`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		day, ok := parseVisitDay(args[1], now)
		if !ok {
			return fmt.Errorf("unrecognised day %q", args[1])
		}

		return withApp(func(ctx context.Context, a *app.App) error {
			id, err := resolveID(ctx, a, args[0])
			if err != nil {
				return err
			}
			planned, err := onsite.Schedule(ctx, a.DB, id, day, args[2])
			if err != nil {
				return err
			}
			if !planned {
				return errors.New("only open or waiting interventions can be scheduled")
			}

			inv, err := a.DB.Fetch(ctx, id)
			if err != nil {
				return err
			}
			at, _ := time.Parse("15:04", args[2])
			visit := time.Date(day.Year(), day.Month(), day.Day(), at.Hour(), at.Minute(), 0, 0, time.Local)
			if err := a.Notifier.SendVisitReminder(inv.Address.String(), visit); err != nil {
				logger.Debug("visit notification failed", zap.Error(err))
			}
			fmt.Printf("Planned %s for %s at %s\n", shortRef(id), formatVisitDay(day, now), args[2])
			return nil
		})
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage time sessions",
}

var sessionAddCmd = &cobra.Command{
	Use:   "add <id> <H:MM>",
	Short: "Record time worked without the timer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, minutes, err := views.ParseHoursMinutes(args[1])
		if err != nil {
			return err
		}

		return withApp(func(ctx context.Context, a *app.App) error {
			id, err := resolveID(ctx, a, args[0])
			if err != nil {
				return err
			}
			ctrl, release, err := a.Open(ctx, id)
			if err != nil {
				return err
			}
			defer release()

			s, ok, err := ctrl.AddManualSession(ctx, hours, minutes)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("nothing recorded: the duration is zero")
			}
			fmt.Printf("Recorded %s  %.2f €\n", s.WorkDuration, s.Price)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "Include finished, billed and paid interventions")
	sessionCmd.AddCommand(sessionAddCmd)
}

// resolveID accepts a full id or an unambiguous prefix of one
func resolveID(ctx context.Context, a *app.App, ref string) (string, error) {
	if _, err := a.DB.Fetch(ctx, ref); err == nil {
		return ref, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return "", err
	}

	invs, err := a.DB.List(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, inv := range invs {
		if !strings.HasPrefix(inv.ID, ref) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%q matches several interventions", ref)
		}
		match = inv.ID
	}
	if match == "" {
		return "", fmt.Errorf("%s: %w", ref, db.ErrNotFound)
	}
	return match, nil
}

// loadIntervention fetches an intervention and overlays timer state that
// so far only reached the local cache
func loadIntervention(ctx context.Context, a *app.App, id string) (*model.Intervention, error) {
	inv, err := a.DB.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	merged, local := a.Reconciler.Merge(inv)
	if local {
		logger.Debug("showing unsynced timer state", zap.String("intervention", id))
	}
	return merged, nil
}

// reconcileAll applies loadIntervention's overlay to a listing in place
func reconcileAll(a *app.App, invs []model.Intervention) {
	for i := range invs {
		merged, _ := a.Reconciler.Merge(&invs[i])
		invs[i] = *merged
	}
}

// lookupProfile returns the pricing that applies to inv
func lookupProfile(ctx context.Context, a *app.App, inv *model.Intervention) (model.TechnicianProfile, error) {
	name := cfg.Technician
	if name == "" {
		name = inv.Assigned
	}
	if name == "" {
		return cfg.Profile(), nil
	}
	p, ok, err := a.DB.Profile(ctx, name)
	if err != nil {
		return model.TechnicianProfile{}, err
	}
	if !ok {
		return cfg.Profile(), nil
	}
	return p, nil
}

func printList(w io.Writer, invs []model.Intervention, now time.Time) {
	t := newTable("ID", "STATUS", "VISIT", "ADDRESS", "ASSIGNED")
	for _, inv := range invs {
		visit := "-"
		if inv.PlannedAt != nil {
			visit = strings.TrimSpace(formatVisitDay(*inv.PlannedAt, now) + " " + inv.ScheduledTime)
		}
		t.Row(shortRef(inv.ID), inv.Status.Label(), visit, inv.Address.String(), inv.Assigned)
	}
	renderTable(w, t)
}

func printIntervention(w io.Writer, inv *model.Intervention, profile model.TechnicianProfile, now time.Time) {
	fmt.Fprintf(w, "%s  %s\n", inv.ID, inv.Status.Label())
	fmt.Fprintf(w, "%s\n", inv.Address)
	fmt.Fprintf(w, "%s\n", profile.NavigationURL(inv.Address))
	if inv.PlannedAt != nil {
		fmt.Fprintf(w, "Visit: %s %s\n", inv.PlannedAt.Format("Mon 2 Jan 2006"), inv.ScheduledTime)
	}
	if inv.IsRunning() {
		fmt.Fprintf(w, "Timer: running since %s\n", inv.StartTime.Local().Format("15:04"))
	}
	fmt.Fprintln(w)

	if len(inv.TimeSessions) > 0 {
		t := newTable("SESSION", "DATE", "WORK", "PAUSE", "PRICE")
		for _, s := range inv.TimeSessions {
			t.Row(shortRef(s.ID), s.Date.Local().Format("02/01 15:04"),
				s.WorkDuration, s.PauseDuration, formatEuros(s.Price))
		}
		renderTable(w, t)
	}
	if len(inv.Materials) > 0 {
		t := newTable("MATERIAL", "DESCRIPTION", "PRICE")
		for _, m := range inv.Materials {
			t.Row(shortRef(m.ID), m.Description, formatEuros(m.Price))
		}
		renderTable(w, t)
	}
	if len(inv.Orders) > 0 {
		t := newTable("ORDER", "NAME", "STATUS", "PRICE")
		for _, o := range inv.Orders {
			price := "-"
			if o.Price != nil {
				price = formatEuros(*o.Price)
			}
			t.Row(shortRef(o.ID), o.Name, string(o.Status), price)
		}
		renderTable(w, t)
	}

	if lifecycle.IsActive(inv.Status) {
		work, _ := timer.Elapsed(inv.Clock, now)
		b := billing.Compute(inv, profile, work, inv.IsRunning())
		t := newFieldTable().Rows(
			[]string{"Time", formatEuros(b.Time)},
			[]string{"Material", formatEuros(b.Material)},
			[]string{fmt.Sprintf("Travel (%d)", inv.TravelCount), formatEuros(b.Travel)},
			[]string{"Total", formatEuros(b.Total)},
		)
		renderTable(w, t)
		return
	}
	printTotals(w, invoice.Compute(inv), inv.TravelCount)
}

func printTotals(w io.Writer, totals invoice.Totals, travelCount int) {
	t := newFieldTable().Rows(
		[]string{"Time", formatEuros(totals.Time)},
		[]string{"Material", formatEuros(totals.Material)},
		[]string{fmt.Sprintf("Travel (%d)", travelCount), formatEuros(totals.Travel)},
	)
	if totals.Final != totals.Computed {
		t.Row("Lines", formatEuros(totals.Computed))
	}
	t.Row("Total", formatEuros(totals.Final))
	renderTable(w, t)
}

func formatEuros(v float64) string {
	return fmt.Sprintf("%.2f €", v)
}

func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
