// Package procurement handles orders raised on site: recording their
// purchase and moving purchased items into the material list.
package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dori/terrain/internal/lifecycle"
	"github.com/dori/terrain/internal/model"
	"github.com/google/uuid"
)

// TransferPrefix marks materials that came from an order
const TransferPrefix = "(CMD) "

var (
	// ErrOrderNotFound is returned for an unknown order id
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotOrdered is returned when transferring an order not yet bought
	ErrNotOrdered = errors.New("order has not been purchased")
	// ErrPaid is returned for changes to a paid intervention
	ErrPaid = errors.New("intervention is already paid")
)

// Store reads and writes intervention documents
type Store interface {
	Fetch(ctx context.Context, id string) (*model.Intervention, error)
	Update(ctx context.Context, id string, patch model.Patch) (*model.Intervention, error)
	List(ctx context.Context, statuses ...model.Status) ([]model.Intervention, error)
}

// Service records purchases against interventions
type Service struct {
	store Store
	now   func() time.Time
}

// New creates a procurement service
func New(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// PendingOrder is an order still to buy, with where it is needed
type PendingOrder struct {
	InterventionID string
	Address        model.Address
	Order          model.OrderLine
}

// Pending lists orders not yet purchased across active interventions
func (s *Service) Pending(ctx context.Context) ([]PendingOrder, error) {
	invs, err := s.store.List(ctx, lifecycle.ActiveStatuses()...)
	if err != nil {
		return nil, err
	}
	var out []PendingOrder
	for _, inv := range invs {
		for _, o := range inv.Orders {
			if !o.IsOrdered() {
				out = append(out, PendingOrder{InterventionID: inv.ID, Address: inv.Address, Order: o})
			}
		}
	}
	return out, nil
}

// MarkOrdered records the purchase of an order at price. From then on
// the order counts as material in the billing breakdown.
func (s *Service) MarkOrdered(ctx context.Context, id, orderID string, price float64) (model.OrderLine, error) {
	if price < 0 {
		return model.OrderLine{}, fmt.Errorf("order price must not be negative")
	}
	inv, idx, err := s.load(ctx, id, orderID)
	if err != nil {
		return model.OrderLine{}, err
	}

	orders := inv.Clone().Orders
	p := price
	orders[idx].Status = model.OrderOrdered
	orders[idx].Price = &p

	if _, err := s.store.Update(ctx, id, model.Patch{Orders: &orders}); err != nil {
		return model.OrderLine{}, fmt.Errorf("failed to mark order: %w", err)
	}
	return orders[idx], nil
}

// Transfer moves a purchased order into the material list and removes
// it from the orders, so it is counted once
func (s *Service) Transfer(ctx context.Context, id, orderID string) (model.MaterialLine, error) {
	inv, idx, err := s.load(ctx, id, orderID)
	if err != nil {
		return model.MaterialLine{}, err
	}
	order := inv.Orders[idx]
	if !order.IsOrdered() {
		return model.MaterialLine{}, ErrNotOrdered
	}

	added := s.now().UTC()
	line := model.MaterialLine{
		ID:          uuid.New().String(),
		Description: TransferPrefix + order.Name,
		Price:       order.PriceOrZero(),
		DateAdded:   &added,
	}
	materials := append(inv.Materials, line)
	orders := append(append([]model.OrderLine(nil), inv.Orders[:idx]...), inv.Orders[idx+1:]...)

	if _, err := s.store.Update(ctx, id, model.Patch{Materials: &materials, Orders: &orders}); err != nil {
		return model.MaterialLine{}, fmt.Errorf("failed to transfer order: %w", err)
	}
	return line, nil
}

func (s *Service) load(ctx context.Context, id, orderID string) (*model.Intervention, int, error) {
	inv, err := s.store.Fetch(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if inv.Status == model.StatusPaid {
		return nil, 0, ErrPaid
	}
	for i, o := range inv.Orders {
		if o.ID == orderID {
			return inv, i, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
}
