package core

import (
	"testing"
)

func profiles(ids ...string) []Profile {
	out := make([]Profile, len(ids))
	for i, id := range ids {
		out[i] = Profile{ID: id, Name: id}
	}
	return out
}

func TestBalancesIncomeAndExpense(t *testing.T) {
	ops := []Operation{
		{Kind: OpIncome, ProfileID: "P1", Amount: Money{Cents: 1000}},
		{Kind: OpExpense, ProfileID: "P1", CategoryID: "C1", Amount: Money{Cents: 300}},
	}
	b := Balances(profiles("P1"), ops)
	if got := b["P1"].Cents; got != 700 {
		t.Fatalf("balance(P1) = %d, want 700", got)
	}
	spent := SpentByCategory(ops)
	if got := spent["C1"].Cents; got != 300 {
		t.Fatalf("spent(C1) = %d, want 300", got)
	}
}

func TestBalancesTransfer(t *testing.T) {
	ops := []Operation{
		{Kind: OpTransfer, FromProfileID: "P1", ToProfileID: "P2", Amount: Money{Cents: 200}},
	}
	b := Balances(profiles("P1", "P2"), ops)
	if b["P1"].Cents != -200 || b["P2"].Cents != 200 {
		t.Fatalf("transfer balances = %d/%d, want -200/200", b["P1"].Cents, b["P2"].Cents)
	}
	// Transfers never touch the global totals.
	tot := GlobalTotals(ops)
	if tot.Income.Cents != 0 || tot.Expense.Cents != 0 || tot.Balance.Cents != 0 {
		t.Fatalf("global totals affected by transfer: %+v", tot)
	}
}

func TestGoalContributionCountsAsExpense(t *testing.T) {
	ops := []Operation{
		{Kind: OpIncome, ProfileID: "P1", Amount: Money{Cents: 1000}},
		{Kind: OpGoal, ProfileID: "P1", GoalID: "G1", Amount: Money{Cents: 400}},
	}
	tot := GlobalTotals(ops)
	if tot.Income.Cents != 1000 || tot.Expense.Cents != 400 || tot.Balance.Cents != 600 {
		t.Fatalf("totals = %+v", tot)
	}
	if got := Balances(profiles("P1"), ops)["P1"].Cents; got != 600 {
		t.Fatalf("balance(P1) = %d, want 600", got)
	}
}

func TestGoalProgress(t *testing.T) {
	g := Goal{ID: "G1", Name: "Vacation", Target: Money{Cents: 1000}}
	ops := []Operation{
		{Kind: OpGoal, ProfileID: "P1", GoalID: "G1", Amount: Money{Cents: 400}},
		{Kind: OpGoal, ProfileID: "P1", GoalID: "G1", Amount: Money{Cents: 400}},
	}
	saved := GoalSaved(ops, "G1")
	if saved.Cents != 800 {
		t.Fatalf("saved = %d, want 800", saved.Cents)
	}
	if p := GoalProgress(g, saved); p != 0.8 {
		t.Fatalf("progress = %v, want 0.8", p)
	}

	ops = append(ops, Operation{Kind: OpGoal, ProfileID: "P1", GoalID: "G1", Amount: Money{Cents: 200}})
	saved = GoalSaved(ops, "G1")
	if saved.Cents != 1000 {
		t.Fatalf("saved = %d, want 1000", saved.Cents)
	}
	if p := GoalProgress(g, saved); p != 1 {
		t.Fatalf("progress = %v, want 1", p)
	}
}

func TestGoalSavedDefaultsToZero(t *testing.T) {
	if got := GoalSaved(nil, "missing"); got.Cents != 0 {
		t.Fatalf("saved = %d, want 0", got.Cents)
	}
}

func TestUnknownReferencesIgnored(t *testing.T) {
	ops := []Operation{
		{Kind: OpIncome, ProfileID: "ghost", Amount: Money{Cents: 500}},
		{Kind: OpExpense, ProfileID: "ghost", CategoryID: "C1", Amount: Money{Cents: 100}},
		{Kind: OpTransfer, FromProfileID: "P1", ToProfileID: "ghost", Amount: Money{Cents: 50}},
		{Kind: OpIncome, ProfileID: "P1", Amount: Money{Cents: 1000}},
	}
	b := Balances(profiles("P1"), ops)
	if len(b) != 1 {
		t.Fatalf("unexpected profile ids in result: %v", b)
	}
	// Unknown ids never move a known profile, including via half-known
	// transfers.
	if b["P1"].Cents != 1000 {
		t.Fatalf("balance(P1) = %d, want 1000", b["P1"].Cents)
	}
}

func TestBalanceSumMatchesGlobalBalance(t *testing.T) {
	ps := profiles("P1", "P2", "P3")
	ops := []Operation{
		{Kind: OpIncome, ProfileID: "P1", Amount: Money{Cents: 5000}},
		{Kind: OpIncome, ProfileID: "P2", Amount: Money{Cents: 2500}},
		{Kind: OpExpense, ProfileID: "P1", CategoryID: "C1", Amount: Money{Cents: 1200}},
		{Kind: OpExpense, ProfileID: "P3", CategoryID: "C2", Amount: Money{Cents: 300}},
		{Kind: OpGoal, ProfileID: "P2", GoalID: "G1", Amount: Money{Cents: 700}},
		{Kind: OpTransfer, FromProfileID: "P1", ToProfileID: "P3", Amount: Money{Cents: 900}},
		{Kind: OpTransfer, FromProfileID: "P2", ToProfileID: "P1", Amount: Money{Cents: 150}},
	}

	var sum int64
	for _, m := range Balances(ps, ops) {
		sum += m.Cents
	}
	if global := GlobalTotals(ops).Balance.Cents; sum != global {
		t.Fatalf("sum of balances = %d, global balance = %d", sum, global)
	}
}

func TestTotalsByProfileConsistentWithBalances(t *testing.T) {
	ps := profiles("P1", "P2")
	ops := []Operation{
		{Kind: OpIncome, ProfileID: "P1", Amount: Money{Cents: 1000}},
		{Kind: OpExpense, ProfileID: "P2", CategoryID: "C1", Amount: Money{Cents: 250}},
		{Kind: OpTransfer, FromProfileID: "P1", ToProfileID: "P2", Amount: Money{Cents: 400}},
		{Kind: OpGoal, ProfileID: "P1", GoalID: "G1", Amount: Money{Cents: 100}},
	}
	balances := Balances(ps, ops)
	byProfile := TotalsByProfile(ps, ops)
	for id, want := range balances {
		if got := byProfile[id].Balance; got != want {
			t.Fatalf("profile %s: totals balance %d != balance %d", id, got.Cents, want.Cents)
		}
	}
	// Transfer shows up in per-profile totals.
	if byProfile["P1"].Expense.Cents != 500 { // 400 transfer out + 100 goal
		t.Fatalf("P1 expense = %d, want 500", byProfile["P1"].Expense.Cents)
	}
	if byProfile["P2"].Income.Cents != 400 {
		t.Fatalf("P2 income = %d, want 400", byProfile["P2"].Income.Cents)
	}
}

func TestSpentByCategoryBoundedByTotalExpense(t *testing.T) {
	ops := []Operation{
		{Kind: OpExpense, ProfileID: "P1", CategoryID: "C1", Amount: Money{Cents: 300}},
		{Kind: OpExpense, ProfileID: "P1", CategoryID: "C2", Amount: Money{Cents: 200}},
		{Kind: OpExpense, ProfileID: "P1", CategoryID: "C1", Amount: Money{Cents: 100}},
		{Kind: OpIncome, ProfileID: "P1", Amount: Money{Cents: 900}},
	}
	var totalExpense int64
	for _, op := range ops {
		if op.Kind == OpExpense {
			totalExpense += op.Amount.Cents
		}
	}
	spent := SpentByCategory(ops)
	if spent["C1"].Cents != 400 || spent["C2"].Cents != 200 {
		t.Fatalf("spent = %v", spent)
	}
	for id, m := range spent {
		if m.Cents > totalExpense {
			t.Fatalf("category %s exceeds total expense: %d > %d", id, m.Cents, totalExpense)
		}
	}
}

func TestAggregatesAreIdempotent(t *testing.T) {
	ps := profiles("P1", "P2")
	ops := []Operation{
		{Kind: OpIncome, ProfileID: "P1", Amount: Money{Cents: 1000}},
		{Kind: OpTransfer, FromProfileID: "P1", ToProfileID: "P2", Amount: Money{Cents: 300}},
		{Kind: OpGoal, ProfileID: "P2", GoalID: "G1", Amount: Money{Cents: 50}},
	}
	first := Balances(ps, ops)
	second := Balances(ps, ops)
	if len(first) != len(second) {
		t.Fatalf("result size changed between runs")
	}
	for id, m := range first {
		if second[id] != m {
			t.Fatalf("profile %s: %d != %d", id, m.Cents, second[id].Cents)
		}
	}
	if GlobalTotals(ops) != GlobalTotals(ops) {
		t.Fatalf("global totals not deterministic")
	}
}
