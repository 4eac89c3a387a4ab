// Package invoice adjusts the priced lines of a finished intervention and
// moves it through billing and payment.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dori/terrain/internal/billing"
	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
)

var (
	// ErrPaid is returned for edits on a paid intervention
	ErrPaid = errors.New("intervention is already paid")
	// ErrLineNotFound is returned for an unknown session or material id
	ErrLineNotFound = errors.New("invoice line not found")
)

// Store reads and writes intervention documents
type Store interface {
	Fetch(ctx context.Context, id string) (*model.Intervention, error)
	Update(ctx context.Context, id string, patch model.Patch) (*model.Intervention, error)
}

// Totals is what the invoice shows: stored prices, never recomputed
// from the current profile
type Totals struct {
	Time     float64
	Material float64
	Travel   float64
	// Computed is the sum of the lines; Final is the stored grand total,
	// which may have been edited by hand
	Computed float64
	Final    float64
}

// Compute sums the stored lines of an intervention
func Compute(inv *model.Intervention) Totals {
	t := Totals{
		Time:     billing.LedgerTotal(inv),
		Material: billing.MaterialTotal(inv),
		Travel:   inv.TravelCost,
		Final:    inv.TotalFinal,
	}
	t.Computed = t.Time + t.Material + t.Travel
	return t
}

// Service edits invoices
type Service struct {
	store Store
	now   func() time.Time
}

// New creates an invoice service
func New(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Totals loads an intervention and returns its invoice totals
func (s *Service) Totals(ctx context.Context, id string) (Totals, error) {
	inv, err := s.store.Fetch(ctx, id)
	if err != nil {
		return Totals{}, err
	}
	return Compute(inv), nil
}

// EditSessionPrice overrides the frozen price of one time session
func (s *Service) EditSessionPrice(ctx context.Context, id, sessionID string, price float64) error {
	inv, err := s.editable(ctx, id, price)
	if err != nil {
		return err
	}
	sessions := inv.Clone().TimeSessions
	for i := range sessions {
		if sessions[i].ID == sessionID {
			sessions[i].Price = price
			return s.write(ctx, id, model.Patch{TimeSessions: &sessions})
		}
	}
	return fmt.Errorf("%w: %s", ErrLineNotFound, sessionID)
}

// EditMaterialPrice overrides the price of one material line
func (s *Service) EditMaterialPrice(ctx context.Context, id, materialID string, price float64) error {
	inv, err := s.editable(ctx, id, price)
	if err != nil {
		return err
	}
	materials := inv.Clone().Materials
	for i := range materials {
		if materials[i].ID == materialID {
			materials[i].Price = price
			return s.write(ctx, id, model.Patch{Materials: &materials})
		}
	}
	return fmt.Errorf("%w: %s", ErrLineNotFound, materialID)
}

// EditTravelCost overrides the stored travel cost
func (s *Service) EditTravelCost(ctx context.Context, id string, cost float64) error {
	if _, err := s.editable(ctx, id, cost); err != nil {
		return err
	}
	return s.write(ctx, id, model.Patch{TravelCost: &cost})
}

// EditTotalFinal overrides the stored grand total
func (s *Service) EditTotalFinal(ctx context.Context, id string, total float64) error {
	if _, err := s.editable(ctx, id, total); err != nil {
		return err
	}
	return s.write(ctx, id, model.Patch{TotalFinal: &total})
}

// MarkBilled moves a finished intervention to BILLED
func (s *Service) MarkBilled(ctx context.Context, id string) (bool, error) {
	inv, err := s.store.Fetch(ctx, id)
	if err != nil {
		return false, err
	}
	next, ok := lifecycle.Next(inv.Status, lifecycle.Bill)
	if !ok {
		return false, nil
	}
	at := s.now().UTC()
	if err := s.write(ctx, id, model.Patch{Status: &next, BilledAt: &at}); err != nil {
		return false, err
	}
	return true, nil
}

// MarkPaid moves a billed intervention to PAID with a payment note
func (s *Service) MarkPaid(ctx context.Context, id, note string) (bool, error) {
	inv, err := s.store.Fetch(ctx, id)
	if err != nil {
		return false, err
	}
	next, ok := lifecycle.Next(inv.Status, lifecycle.Pay)
	if !ok {
		return false, nil
	}
	at := s.now().UTC()
	if err := s.write(ctx, id, model.Patch{Status: &next, PaidAt: &at, PaymentNote: &note}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) editable(ctx context.Context, id string, amount float64) (*model.Intervention, error) {
	if amount < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	inv, err := s.store.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == model.StatusPaid {
		return nil, ErrPaid
	}
	return inv, nil
}

func (s *Service) write(ctx context.Context, id string, patch model.Patch) error {
	if _, err := s.store.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return nil
}
