package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dori/terrain/internal/app"
	"github.com/dori/terrain/internal/invoice"
	"github.com/dori/terrain/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Track materials that still have to be bought",
}

var orderPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List orders not yet purchased",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			pending, err := a.Procurement().Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("Nothing to order")
				return nil
			}
			t := newTable("ORDER", "NAME", "INTERVENTION", "ADDRESS")
			for _, p := range pending {
				t.Row(shortRef(p.Order.ID), p.Order.Name, shortRef(p.InterventionID), p.Address.String())
			}
			renderTable(os.Stdout, t)
			return nil
		})
	},
}

var orderMarkCmd = &cobra.Command{
	Use:   "mark <id> <order> <price>",
	Short: "Record the purchase of an order",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			inv, err := fetchRef(ctx, a, args[0])
			if err != nil {
				return err
			}
			orderID, err := matchLine(args[1], orderIDs(inv))
			if err != nil {
				return err
			}
			o, err := a.Procurement().MarkOrdered(ctx, inv.ID, orderID, price)
			if err != nil {
				return err
			}
			fmt.Printf("Ordered %s  %.2f €\n", o.Name, o.PriceOrZero())
			return nil
		})
	},
}

var orderTransferCmd = &cobra.Command{
	Use:   "transfer <id> <order>",
	Short: "Move a purchased order into the material list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			inv, err := fetchRef(ctx, a, args[0])
			if err != nil {
				return err
			}
			orderID, err := matchLine(args[1], orderIDs(inv))
			if err != nil {
				return err
			}
			m, err := a.Procurement().Transfer(ctx, inv.ID, orderID)
			if err != nil {
				return err
			}
			fmt.Printf("Added material %s  %.2f €\n", m.Description, m.Price)
			return nil
		})
	},
}

var (
	editSessions  map[string]string
	editMaterials map[string]string
	editTravel    float64
	editTotal     float64
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Review and settle the bill of a finished intervention",
}

var invoiceShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the stored invoice totals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			inv, err := fetchRef(ctx, a, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  %s\n\n", shortRef(inv.ID), inv.Status.Label(), inv.Address)
			printTotals(os.Stdout, invoice.Compute(inv), inv.TravelCount)
			if inv.PaymentNote != "" {
				fmt.Printf("\nPayment: %s\n", inv.PaymentNote)
			}
			return nil
		})
	},
}

var invoiceEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Override invoice prices",
	Long: `Override stored prices before billing. Lines are chosen by id or id prefix:

  terrain invoice edit 0f8f --session 3a1c=42 --material 77b0=18.5 --travel 24 --total 120`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if len(editSessions) == 0 && len(editMaterials) == 0 && !flags.Changed("travel") && !flags.Changed("total") {
			return errors.New("nothing to edit")
		}

		return withApp(func(ctx context.Context, a *app.App) error {
			inv, err := fetchRef(ctx, a, args[0])
			if err != nil {
				return err
			}
			svc := a.Invoices()

			for _, ref := range sortedKeys(editSessions) {
				id, err := matchLine(ref, sessionIDs(inv))
				if err != nil {
					return err
				}
				price, err := parseAmount(editSessions[ref])
				if err != nil {
					return err
				}
				if err := svc.EditSessionPrice(ctx, inv.ID, id, price); err != nil {
					return err
				}
			}
			for _, ref := range sortedKeys(editMaterials) {
				id, err := matchLine(ref, materialIDs(inv))
				if err != nil {
					return err
				}
				price, err := parseAmount(editMaterials[ref])
				if err != nil {
					return err
				}
				if err := svc.EditMaterialPrice(ctx, inv.ID, id, price); err != nil {
					return err
				}
			}
			if flags.Changed("travel") {
				if err := svc.EditTravelCost(ctx, inv.ID, editTravel); err != nil {
					return err
				}
			}
			if flags.Changed("total") {
				if err := svc.EditTotalFinal(ctx, inv.ID, editTotal); err != nil {
					return err
				}
			}

			totals, err := svc.Totals(ctx, inv.ID)
			if err != nil {
				return err
			}
			printTotals(os.Stdout, totals, inv.TravelCount)
			return nil
		})
	},
}

var invoiceBillCmd = &cobra.Command{
	Use:   "bill <id>",
	Short: "Mark a finished intervention as billed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			id, err := resolveID(ctx, a, args[0])
			if err != nil {
				return err
			}
			ok, err := a.Invoices().MarkBilled(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("only finished interventions can be billed")
			}
			logger.Info("intervention billed", zap.String("id", id))
			fmt.Printf("Billed %s\n", shortRef(id))
			return nil
		})
	},
}

var invoicePayCmd = &cobra.Command{
	Use:   "pay <id> [note...]",
	Short: "Mark a billed intervention as paid",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note := strings.Join(args[1:], " ")
		return withApp(func(ctx context.Context, a *app.App) error {
			id, err := resolveID(ctx, a, args[0])
			if err != nil {
				return err
			}
			ok, err := a.Invoices().MarkPaid(ctx, id, note)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("only billed interventions can be marked paid")
			}
			logger.Info("intervention paid", zap.String("id", id))
			fmt.Printf("Paid %s\n", shortRef(id))
			return nil
		})
	},
}

var (
	profileRate     float64
	profileFee      float64
	profileRounding int
	profileGPS      string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Technician pricing profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show [technician]",
	Short: "Show the pricing of a technician",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := profileName(args)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			p, found, err := a.DB.Profile(ctx, name)
			if err != nil {
				return err
			}
			if !found {
				p = cfg.Profile()
				p.Technician = name
				fmt.Println("(no stored profile, showing configured defaults)")
			}
			printProfile(p)
			return nil
		})
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set [technician]",
	Short: "Create or update the pricing of a technician",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := profileName(args)
		if err != nil {
			return err
		}
		flags := cmd.Flags()

		return withApp(func(ctx context.Context, a *app.App) error {
			p, found, err := a.DB.Profile(ctx, name)
			if err != nil {
				return err
			}
			if !found {
				p = cfg.Profile()
				p.Technician = name
			}
			if flags.Changed("rate") {
				p.HourlyRate = profileRate
			}
			if flags.Changed("travel-fee") {
				p.TravelUnitFee = profileFee
			}
			if flags.Changed("rounding") {
				p.RoundingMinutes = profileRounding
			}
			if flags.Changed("gps") {
				p.GPS = model.NavApp(profileGPS)
			}
			if err := validateProfile(p); err != nil {
				return err
			}
			if err := a.DB.SaveProfile(ctx, p); err != nil {
				return err
			}
			printProfile(p)
			return nil
		})
	},
}

func init() {
	orderCmd.AddCommand(orderPendingCmd, orderMarkCmd, orderTransferCmd)

	invoiceEditCmd.Flags().StringToStringVar(&editSessions, "session", nil, "Session price as id=price (repeatable)")
	invoiceEditCmd.Flags().StringToStringVar(&editMaterials, "material", nil, "Material price as id=price (repeatable)")
	invoiceEditCmd.Flags().Float64Var(&editTravel, "travel", 0, "Travel cost")
	invoiceEditCmd.Flags().Float64Var(&editTotal, "total", 0, "Final total")
	invoiceCmd.AddCommand(invoiceShowCmd, invoiceEditCmd, invoiceBillCmd, invoicePayCmd)

	profileSetCmd.Flags().Float64Var(&profileRate, "rate", 0, "Hourly rate")
	profileSetCmd.Flags().Float64Var(&profileFee, "travel-fee", 0, "Fee per travel")
	profileSetCmd.Flags().IntVar(&profileRounding, "rounding", 0, "Rounding granularity in minutes (0 disables)")
	profileSetCmd.Flags().StringVar(&profileGPS, "gps", "", "Navigation app: maps, waze or iphone")
	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
}

func fetchRef(ctx context.Context, a *app.App, ref string) (*model.Intervention, error) {
	id, err := resolveID(ctx, a, ref)
	if err != nil {
		return nil, err
	}
	return loadIntervention(ctx, a, id)
}

// matchLine resolves a line id or unambiguous prefix among ids
func matchLine(ref string, ids []string) (string, error) {
	var match string
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
		if strings.HasPrefix(id, ref) {
			if match != "" {
				return "", fmt.Errorf("%q matches several lines", ref)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", invoice.ErrLineNotFound, ref)
	}
	return match, nil
}

func orderIDs(inv *model.Intervention) []string {
	ids := make([]string, len(inv.Orders))
	for i, o := range inv.Orders {
		ids[i] = o.ID
	}
	return ids
}

func sessionIDs(inv *model.Intervention) []string {
	ids := make([]string, len(inv.TimeSessions))
	for i, s := range inv.TimeSessions {
		ids[i] = s.ID
	}
	return ids
}

func materialIDs(inv *model.Intervention) []string {
	ids := make([]string, len(inv.Materials))
	for i, m := range inv.Materials {
		ids[i] = m.ID
	}
	return ids
}

// parseAmount reads a price written with a dot or a comma, optionally
// followed by €
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "€"))
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative")
	}
	return v, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func profileName(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if cfg.Technician == "" {
		return "", errors.New("no technician: pass one or set --technician")
	}
	return cfg.Technician, nil
}

func validateProfile(p model.TechnicianProfile) error {
	if p.HourlyRate < 0 || p.TravelUnitFee < 0 {
		return errors.New("rates must not be negative")
	}
	if p.RoundingMinutes < 0 {
		return errors.New("rounding must not be negative")
	}
	switch p.GPS {
	case model.NavMaps, model.NavWaze, model.NavIPhone:
		return nil
	}
	return fmt.Errorf("unknown navigation app %q", p.GPS)
}

func printProfile(p model.TechnicianProfile) {
	t := newFieldTable().Rows(
		[]string{"Technician", p.Technician},
		[]string{"Hourly rate", formatEuros(p.HourlyRate)},
		[]string{"Travel fee", formatEuros(p.TravelUnitFee)},
		[]string{"Rounding", fmt.Sprintf("%d min", p.RoundingMinutes)},
		[]string{"Navigation", string(p.GPS)},
	)
	renderTable(os.Stdout, t)
}
