// Package orders computes the minimal diff between the desired quote ladder
// and the currently open managed orders. Only orders carrying the managed
// client-order-id prefix are ever touched; volume and foreign orders pass
// through untouched.
package orders

import (
	"strings"

	"mmbot/internal/exchange"
	"mmbot/internal/strategy"
)

// Default replacement thresholds: relative drift beyond which an open order
// is superseded by a fresh quote.
const (
	DefaultPriceEpsPct = 0.0005
	DefaultQtyEpsPct   = 0.02
)

// Diff is the reconciliation outcome. The orchestrator cancels before it
// places so budget is never transiently double-committed.
type Diff struct {
	Cancel []exchange.Order
	Place  []exchange.Quote
}

// Reconciler diffs desired quotes against open managed orders.
type Reconciler struct {
	priceEpsPct float64
	qtyEpsPct   float64
}

// NewReconciler creates a Reconciler; non-positive epsilons fall back to the
// defaults.
func NewReconciler(priceEpsPct, qtyEpsPct float64) *Reconciler {
	if priceEpsPct <= 0 {
		priceEpsPct = DefaultPriceEpsPct
	}
	if qtyEpsPct <= 0 {
		qtyEpsPct = DefaultQtyEpsPct
	}
	return &Reconciler{priceEpsPct: priceEpsPct, qtyEpsPct: qtyEpsPct}
}

// IsManaged reports whether an order was placed by the quote builder.
func IsManaged(clientOrderID string) bool {
	return strings.HasPrefix(clientOrderID, strategy.ManagedPrefix)
}

// Reconcile returns the orders to cancel and quotes to place. Deterministic:
// the same inputs always yield the same diff. A drifted order shows up only
// in Place; its cancellation is driven by the not-in-desired rule once the
// replacement order supersedes it on the venue.
func (r *Reconciler) Reconcile(desired []exchange.Quote, open []exchange.Order) Diff {
	openByClient := make(map[string]exchange.Order, len(open))
	for _, o := range open {
		if IsManaged(o.ClientOrderID) {
			openByClient[o.ClientOrderID] = o
		}
	}

	desiredIDs := make(map[string]struct{}, len(desired))
	var diff Diff

	for _, q := range desired {
		desiredIDs[q.ClientOrderID] = struct{}{}

		existing, ok := openByClient[q.ClientOrderID]
		if !ok {
			diff.Place = append(diff.Place, q)
			continue
		}
		if r.drifted(q, existing) {
			diff.Place = append(diff.Place, q)
		}
	}

	for _, o := range open {
		if !IsManaged(o.ClientOrderID) {
			continue
		}
		if _, ok := desiredIDs[o.ClientOrderID]; !ok {
			diff.Cancel = append(diff.Cancel, o)
		}
	}

	return diff
}

func (r *Reconciler) drifted(q exchange.Quote, o exchange.Order) bool {
	if o.Price > 0 && q.Price > 0 {
		if relDiff(q.Price, o.Price) > r.priceEpsPct {
			return true
		}
	}
	den := o.Qty
	if den == 0 {
		den = 1
	}
	return abs(q.Qty-o.Qty)/den > r.qtyEpsPct
}

func relDiff(a, b float64) float64 {
	return abs(a-b) / b
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
