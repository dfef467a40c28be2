// Package core holds the budget domain model and the aggregation engine:
// pure functions that fold the operation list into balances, totals and
// per-category/per-goal sums. Everything here is recomputed from scratch on
// each snapshot; no incremental state is kept, so two runs over the same
// input always agree.
package core

// Totals is the income/expense/balance triple, globally or per profile.
// Goal contributions count as expense; transfers move money between
// profiles without touching the global totals.
type Totals struct {
	Income  Money
	Expense Money
	Balance Money
}

// Balances folds operations into a running balance per profile id. Every
// known profile starts at zero; operations referencing an unknown profile
// are skipped. A transfer is applied only when both sides are known, so
// transfers always net to zero across the result.
func Balances(profiles []Profile, ops []Operation) map[string]Money {
	byID := make(map[string]Money, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = Money{}
	}
	for _, op := range ops {
		switch op.Kind {
		case OpIncome:
			if b, ok := byID[op.ProfileID]; ok {
				byID[op.ProfileID] = b.Add(op.Amount)
			}
		case OpExpense, OpGoal:
			if b, ok := byID[op.ProfileID]; ok {
				byID[op.ProfileID] = b.Sub(op.Amount)
			}
		case OpTransfer:
			from, okFrom := byID[op.FromProfileID]
			to, okTo := byID[op.ToProfileID]
			if okFrom && okTo {
				byID[op.FromProfileID] = from.Sub(op.Amount)
				byID[op.ToProfileID] = to.Add(op.Amount)
			}
		}
	}
	return byID
}

// GlobalTotals sums all income and all expense-like operations. Transfers
// are internal movements and are excluded.
func GlobalTotals(ops []Operation) Totals {
	var t Totals
	for _, op := range ops {
		switch op.Kind {
		case OpIncome:
			t.Income = t.Income.Add(op.Amount)
		case OpExpense, OpGoal:
			t.Expense = t.Expense.Add(op.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expense)
	return t
}

// TotalsByProfile partitions totals by profile. Unlike GlobalTotals, a
// transfer shows up here: as expense for the sender and income for the
// receiver, keeping each profile's Balance consistent with Balances.
func TotalsByProfile(profiles []Profile, ops []Operation) map[string]Totals {
	byID := make(map[string]Totals, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = Totals{}
	}
	for _, op := range ops {
		switch op.Kind {
		case OpIncome:
			if t, ok := byID[op.ProfileID]; ok {
				t.Income = t.Income.Add(op.Amount)
				t.Balance = t.Balance.Add(op.Amount)
				byID[op.ProfileID] = t
			}
		case OpExpense, OpGoal:
			if t, ok := byID[op.ProfileID]; ok {
				t.Expense = t.Expense.Add(op.Amount)
				t.Balance = t.Balance.Sub(op.Amount)
				byID[op.ProfileID] = t
			}
		case OpTransfer:
			from, okFrom := byID[op.FromProfileID]
			to, okTo := byID[op.ToProfileID]
			if okFrom && okTo {
				from.Expense = from.Expense.Add(op.Amount)
				from.Balance = from.Balance.Sub(op.Amount)
				to.Income = to.Income.Add(op.Amount)
				to.Balance = to.Balance.Add(op.Amount)
				byID[op.FromProfileID] = from
				byID[op.ToProfileID] = to
			}
		}
	}
	return byID
}

// SpentByCategory sums expense operations grouped by category id.
// Operations of other kinds, or without a category, are excluded.
func SpentByCategory(ops []Operation) map[string]Money {
	byID := make(map[string]Money)
	for _, op := range ops {
		if op.Kind == OpExpense && op.CategoryID != "" {
			byID[op.CategoryID] = byID[op.CategoryID].Add(op.Amount)
		}
	}
	return byID
}

// SavedByGoal sums goal contributions grouped by goal id.
func SavedByGoal(ops []Operation) map[string]Money {
	byID := make(map[string]Money)
	for _, op := range ops {
		if op.Kind == OpGoal && op.GoalID != "" {
			byID[op.GoalID] = byID[op.GoalID].Add(op.Amount)
		}
	}
	return byID
}

// GoalSaved returns the amount saved toward one goal, zero if nothing has
// been contributed yet.
func GoalSaved(ops []Operation, goalID string) Money {
	return SavedByGoal(ops)[goalID]
}

// GoalProgress reports saved/target as a fraction in [0,1], clamped so an
// over-funded goal still reads as complete.
func GoalProgress(g Goal, saved Money) float64 {
	if g.Target.Cents <= 0 {
		return 0
	}
	p := float64(saved.Cents) / float64(g.Target.Cents)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}
