package order

import (
	"time"

	"github.com/rickgao/union-data/internal/model"
)

// Validator applies the checks an order must pass to be shown as a best order.
type Validator struct {
	now func() time.Time
}

// NewValidator creates a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// NewValidatorAt creates a Validator with a fixed clock.
func NewValidatorAt(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// Valid reports whether o can be a best order. owner is the holder of the target
// ownership, or empty for items and collections.
func (v *Validator) Valid(o model.Order, owner string) bool {
	if o.Status != model.StatusActive {
		return false
	}
	if !o.MakeStock.IsPositive() {
		return false
	}
	if o.EndedAt != nil && !o.EndedAt.After(v.now()) {
		return false
	}
	// Self-trades and private orders are never public bests.
	if o.Taker != "" {
		return false
	}
	// An ownership only shows sells made by its owner.
	if owner != "" && o.Side == model.SideSell && o.Maker != owner {
		return false
	}
	return true
}

// Summary converts o to a summary with its validity flag set.
func (v *Validator) Summary(o model.Order, owner string) *model.OrderSummary {
	s := o.Summary()
	s.Valid = v.Valid(o, owner)
	return &s
}
