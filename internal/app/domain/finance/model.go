// Package finance models agency income and expense records.
package finance

import (
	"strings"
	"time"
)

// Kind separates income from expenses.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

func NormalizeKind(raw string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(raw)))
}

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Status is the settlement state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

func NormalizeStatus(raw string) Status {
	return Status(strings.ToLower(strings.TrimSpace(raw)))
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether money is still expected to move.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusOverdue
}

// Transaction is a single income or expense entry.
type Transaction struct {
	ID          string     `json:"id" db:"id"`
	AgencyID    string     `json:"agency_id" db:"agency_id"`
	Kind        Kind       `json:"kind" db:"kind"`
	Description string     `json:"description" db:"description"`
	Category    string     `json:"category" db:"category"`
	AmountCents int64      `json:"amount_cents" db:"amount_cents"`
	Status      Status     `json:"status" db:"status"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	PaidAt      *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	ClientID    string     `json:"client_id" db:"client_id"`
	ClientName  string     `json:"client_name" db:"client_name"`
	ProjectID   string     `json:"project_id" db:"project_id"`
	ProjectName string     `json:"project_name" db:"project_name"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// EffectiveDate is the date a transaction is booked on for reporting.
func (t Transaction) EffectiveDate() time.Time {
	if t.PaidAt != nil {
		return *t.PaidAt
	}
	if t.DueDate != nil {
		return *t.DueDate
	}
	return t.CreatedAt
}

// Filter narrows transaction listings.
type Filter struct {
	ClientID  string
	ProjectID string
	Kind      Kind
	Status    Status
}

func (f Filter) Match(t Transaction) bool {
	if f.ClientID != "" && t.ClientID != f.ClientID {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// Summary totals transactions over a reporting window.
type Summary struct {
	From            time.Time        `json:"from"`
	To              time.Time        `json:"to"`
	IncomeCents     int64            `json:"income_cents"`
	ExpenseCents    int64            `json:"expense_cents"`
	NetCents        int64            `json:"net_cents"`
	ReceivableCents int64            `json:"receivable_cents"`
	OverdueCents    int64            `json:"overdue_cents"`
	ByCategory      map[string]int64 `json:"by_category"`
}

// Summarize totals paid income and expenses booked inside [from, to) plus
// all open receivables regardless of date. Expenses are negative in
// ByCategory.
func Summarize(txs []Transaction, from, to time.Time) Summary {
	sum := Summary{From: from, To: to, ByCategory: make(map[string]int64)}
	for _, tx := range txs {
		if tx.Kind == KindIncome && tx.Status.Open() {
			sum.ReceivableCents += tx.AmountCents
			if tx.Status == StatusOverdue {
				sum.OverdueCents += tx.AmountCents
			}
		}
		if tx.Status != StatusPaid {
			continue
		}
		at := tx.EffectiveDate()
		if (!from.IsZero() && at.Before(from)) || (!to.IsZero() && !at.Before(to)) {
			continue
		}
		category := tx.Category
		if category == "" {
			category = "uncategorized"
		}
		switch tx.Kind {
		case KindIncome:
			sum.IncomeCents += tx.AmountCents
			sum.ByCategory[category] += tx.AmountCents
		case KindExpense:
			sum.ExpenseCents += tx.AmountCents
			sum.ByCategory[category] -= tx.AmountCents
		}
	}
	sum.NetCents = sum.IncomeCents - sum.ExpenseCents
	return sum
}
