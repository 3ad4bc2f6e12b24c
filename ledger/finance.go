package ledger

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are JSON numbers in the web app's documents.
	decimal.MarshalJSONWithoutQuotes = true
}

// Transaction types.
const (
	Income  = "income"
	Expense = "expense"
)

// Transaction is a single dated income or expense entry.
type Transaction struct {
	ID          ID              `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`               // Income or Expense
	Category    string          `json:"category,omitempty"` // free-form, e.g. "food"
	Date        string          `json:"date"`               // YYYY-MM-DD
}

// RecurringTransaction is a template that produces a Transaction on a schedule.
type RecurringTransaction struct {
	ID          ID              `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Category    string          `json:"category,omitempty"`
	Frequency   string          `json:"frequency"` // "monthly", "weekly", ...
	DayOfMonth  Int             `json:"dayOfMonth,omitempty"`
	Active      Bool            `json:"active"`
}

// Goal is a savings target.
type Goal struct {
	ID            ID              `json:"id"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Deadline      string          `json:"deadline,omitempty"`
}

// State is the whole of the application data held by a Store.
type State struct {
	Transactions          []Transaction
	RecurringTransactions []RecurringTransaction
	FinancialGoals        []Goal
	NotificationSettings  map[string]any
}

// Balance returns incomes minus expenses.
func (s State) Balance() decimal.Decimal {
	total := decimal.Zero
	for _, t := range s.Transactions {
		if t.Type == Expense {
			total = total.Sub(t.Amount)
			continue
		}
		total = total.Add(t.Amount)
	}
	return total
}

func (s State) clone() State {
	c := State{
		Transactions:          append([]Transaction{}, s.Transactions...),
		RecurringTransactions: append([]RecurringTransaction{}, s.RecurringTransactions...),
		FinancialGoals:        append([]Goal{}, s.FinancialGoals...),
		NotificationSettings:  make(map[string]any, len(s.NotificationSettings)),
	}
	for k, v := range s.NotificationSettings {
		c.NotificationSettings[k] = v
	}
	return c
}
