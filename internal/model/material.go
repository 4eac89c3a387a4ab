package model

import (
	"time"
)

// OrderStatus tracks an order from request to purchase
type OrderStatus string

const (
	OrderToOrder OrderStatus = "to-order"
	OrderOrdered OrderStatus = "ordered"
)

// MaterialLine is a priced item used on site
type MaterialLine struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	DateAdded   *time.Time `json:"dateAdded,omitempty"`
}

// OrderLine is a material that still has to be bought. Price stays nil
// until the purchase is recorded.
type OrderLine struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Status OrderStatus `json:"status"`
	Price  *float64    `json:"price,omitempty"`
}

// IsOrdered returns true once the order has been purchased
func (o OrderLine) IsOrdered() bool {
	return o.Status == OrderOrdered
}

// PriceOrZero returns the purchase price, or 0 when not yet known
func (o OrderLine) PriceOrZero() float64 {
	if o.Price == nil {
		return 0
	}
	return *o.Price
}

func (o OrderLine) clone() OrderLine {
	if o.Price != nil {
		p := *o.Price
		o.Price = &p
	}
	return o
}
