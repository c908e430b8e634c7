package core

import "github.com/shopspring/decimal"

// creditAction is one planned mutation of an unapplied-credit row.
// When Split is false the whole row is reassigned to the target document.
// When Split is true the row shrinks to Consume (and is reassigned) and a
// sibling row carrying Leftover stays behind as credit.
type creditAction struct {
	Row      PaymentRecord
	Consume  decimal.Decimal
	Split    bool
	Leftover decimal.Decimal
}

// creditPlan is the outcome of planning a credit consumption for one
// allocation. Covered never exceeds the requested need; splitting
// redistributes value but never creates or destroys it.
type creditPlan struct {
	Actions []creditAction
	Covered decimal.Decimal
}

// planCreditConsumption walks credit rows in the order given (callers fetch
// oldest first) and covers as much of need as possible. A row smaller than
// or equal to the remaining need is consumed whole; a larger row is split.
//
// Pure: no store access, no mutation of the input slice.
func planCreditConsumption(credits []PaymentRecord, need decimal.Decimal) creditPlan {
	plan := creditPlan{Covered: decimal.Zero}
	remaining := need

	for _, row := range credits {
		if !remaining.IsPositive() {
			break
		}
		if !row.Amount.IsPositive() {
			continue
		}

		if row.Amount.LessThanOrEqual(remaining) {
			plan.Actions = append(plan.Actions, creditAction{Row: row, Consume: row.Amount})
			plan.Covered = plan.Covered.Add(row.Amount)
			remaining = remaining.Sub(row.Amount)
		} else {
			plan.Actions = append(plan.Actions, creditAction{
				Row:      row,
				Consume:  remaining,
				Split:    true,
				Leftover: row.Amount.Sub(remaining),
			})
			plan.Covered = plan.Covered.Add(remaining)
			remaining = decimal.Zero
		}
	}
	return plan
}
