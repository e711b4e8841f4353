package core

import "github.com/shopspring/decimal"

// Total is an aggregate amount in a display currency.
type Total struct {
	Amount      decimal.Decimal
	Currency    string
	Approximate bool // at least one term could not be converted
}

// CategoryTotal represents an amount aggregated by category name.
type CategoryTotal struct {
	Name        string
	Amount      decimal.Decimal
	Count       int
	Approximate bool
}

// GoalStatus compares the goal with what has been spent.
// Set is false when no goal is active; the other fields are then zero.
type GoalStatus struct {
	Set           bool
	Goal          Goal
	ConvertedGoal decimal.Decimal
	Remaining     decimal.Decimal
	Exceeded      bool
	Approximate   bool
}

// TotalSpent sums every expense converted into display.
func TotalSpent(expenses []Expense, display string, table *RateTable) Total {
	total := Total{Amount: decimal.Zero, Currency: display}
	for _, e := range expenses {
		c := Convert(e.Amount, e.Currency, display, table)
		total.Amount = total.Amount.Add(c.Amount)
		total.Approximate = total.Approximate || c.Approximate
	}
	return total
}

// TotalsByCategory groups converted amounts per category in order of first appearance.
func TotalsByCategory(expenses []Expense, display string, table *RateTable) []CategoryTotal {
	index := make(map[string]int)
	var out []CategoryTotal
	for _, e := range expenses {
		name := NormalizeCategory(e.Category)
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, CategoryTotal{Name: name, Amount: decimal.Zero})
		}
		c := Convert(e.Amount, e.Currency, display, table)
		out[i].Amount = out[i].Amount.Add(c.Amount)
		out[i].Count++
		out[i].Approximate = out[i].Approximate || c.Approximate
	}
	return out
}

// EvaluateGoal converts the goal into display and compares it with spent.
func EvaluateGoal(goal Goal, spent decimal.Decimal, display string, table *RateTable) GoalStatus {
	if !goal.IsSet() {
		return GoalStatus{}
	}
	c := Convert(goal.Amount, goal.Currency, display, table)
	remaining := c.Amount.Sub(spent)
	return GoalStatus{
		Set:           true,
		Goal:          goal,
		ConvertedGoal: c.Amount,
		Remaining:     remaining,
		Exceeded:      !remaining.IsPositive(),
		Approximate:   c.Approximate,
	}
}
