package core

import "github.com/shopspring/decimal"

// batchMutation is one pending write produced by the FIFO planner: set the
// batch's quantity_remaining to NewRemaining.
type batchMutation struct {
	BatchID      int
	NewRemaining decimal.Decimal
}

// fifoPlan is the outcome of planning a FIFO consumption against an
// in-memory snapshot of batches. Shortfall is the requested quantity that
// no batch could cover; the caller decides whether that is an error.
type fifoPlan struct {
	Mutations []batchMutation
	COGS      decimal.Decimal
	Shortfall decimal.Decimal
}

// planFIFOConsumption walks batches in the order given (callers fetch them
// ordered by acquisition_date, id) and consumes each fully before moving to
// the next, until quantity is satisfied or batches run out. COGS accumulates
// consumed quantity times each batch's original unit cost, exactly.
//
// Pure: no store access, no mutation of the input slice.
func planFIFOConsumption(batches []StockBatch, quantity decimal.Decimal) fifoPlan {
	plan := fifoPlan{COGS: decimal.Zero}
	remaining := quantity

	for _, b := range batches {
		if !remaining.IsPositive() {
			break
		}
		if !b.QuantityRemaining.IsPositive() {
			continue
		}

		if b.QuantityRemaining.LessThanOrEqual(remaining) {
			// Drain the whole batch.
			plan.COGS = plan.COGS.Add(b.QuantityRemaining.Mul(b.UnitCost))
			remaining = remaining.Sub(b.QuantityRemaining)
			plan.Mutations = append(plan.Mutations, batchMutation{BatchID: b.ID, NewRemaining: decimal.Zero})
		} else {
			plan.COGS = plan.COGS.Add(remaining.Mul(b.UnitCost))
			plan.Mutations = append(plan.Mutations, batchMutation{
				BatchID:      b.ID,
				NewRemaining: b.QuantityRemaining.Sub(remaining),
			})
			remaining = decimal.Zero
		}
	}

	if remaining.IsPositive() {
		plan.Shortfall = remaining
	} else {
		plan.Shortfall = decimal.Zero
	}
	return plan
}
