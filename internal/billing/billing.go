// Package billing derives the material / time / travel breakdown of an
// intervention. Everything here is a pure function of its inputs and is
// recomputed on every read.
package billing

import (
	"github.com/dori/terrain/internal/duration"
	"github.com/dori/terrain/internal/model"
)

// Breakdown is the three-way split of a total charge
type Breakdown struct {
	Material float64
	Time     float64
	Travel   float64
	Total    float64
}

// MaterialView is one line of the material list as shown and billed.
// Purchased orders appear here without being copied into Materials.
type MaterialView struct {
	ID          string
	Description string
	Price       float64
	FromOrder   bool
}

// Materials returns the real materials followed by purchased orders
func Materials(inv *model.Intervention) []MaterialView {
	if inv == nil {
		return nil
	}
	out := make([]MaterialView, 0, len(inv.Materials)+len(inv.Orders))
	for _, m := range inv.Materials {
		out = append(out, MaterialView{ID: m.ID, Description: m.Description, Price: m.Price})
	}
	for _, o := range inv.Orders {
		if !o.IsOrdered() {
			continue
		}
		out = append(out, MaterialView{ID: o.ID, Description: o.Name, Price: o.PriceOrZero(), FromOrder: true})
	}
	return out
}

// PendingOrders returns the orders not purchased yet
func PendingOrders(inv *model.Intervention) []model.OrderLine {
	if inv == nil {
		return nil
	}
	var out []model.OrderLine
	for _, o := range inv.Orders {
		if !o.IsOrdered() {
			out = append(out, o)
		}
	}
	return out
}

// SessionPrice prices work seconds after rounding them up
func SessionPrice(workSeconds int64, p model.TechnicianProfile) float64 {
	rounded := duration.RoundUp(workSeconds, p.RoundingMinutes)
	return duration.Hours(rounded) * p.HourlyRate
}

// TravelCost prices a number of trips
func TravelCost(count int, p model.TechnicianProfile) float64 {
	if count < 0 {
		count = 0
	}
	return float64(count) * p.TravelUnitFee
}

// MaterialTotal sums material lines including purchased orders
func MaterialTotal(inv *model.Intervention) float64 {
	var total float64
	for _, m := range Materials(inv) {
		total += m.Price
	}
	return total
}

// LedgerTotal sums committed session prices
func LedgerTotal(inv *model.Intervention) float64 {
	if inv == nil {
		return 0
	}
	var total float64
	for _, s := range inv.TimeSessions {
		total += s.Price
	}
	return total
}

// Compute returns the breakdown. When running is true the live work
// seconds contribute a provisional price that is not in the ledger.
func Compute(inv *model.Intervention, p model.TechnicianProfile, liveWorkSeconds int64, running bool) Breakdown {
	if inv == nil {
		return Breakdown{}
	}

	b := Breakdown{
		Material: MaterialTotal(inv),
		Time:     LedgerTotal(inv),
		Travel:   TravelCost(inv.TravelCount, p),
	}
	if running {
		b.Time += SessionPrice(liveWorkSeconds, p)
	}
	b.Total = b.Material + b.Time + b.Travel
	return b
}
