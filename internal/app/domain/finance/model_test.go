package finance

import (
	"testing"
	"time"
)

func TestSummarize(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	inside := from.AddDate(0, 0, 10)
	outside := from.AddDate(0, -1, 0)

	txs := []Transaction{
		{Kind: KindIncome, AmountCents: 10000, Status: StatusPaid, PaidAt: &inside, Category: "retainer"},
		{Kind: KindIncome, AmountCents: 5000, Status: StatusPaid, PaidAt: &outside},
		{Kind: KindExpense, AmountCents: 3000, Status: StatusPaid, PaidAt: &inside, Category: "ads"},
		{Kind: KindIncome, AmountCents: 2000, Status: StatusPending, DueDate: &inside},
		{Kind: KindIncome, AmountCents: 700, Status: StatusOverdue, DueDate: &outside},
		{Kind: KindIncome, AmountCents: 999, Status: StatusCancelled},
	}

	sum := Summarize(txs, from, to)
	if sum.IncomeCents != 10000 {
		t.Fatalf("income = %d", sum.IncomeCents)
	}
	if sum.ExpenseCents != 3000 || sum.NetCents != 7000 {
		t.Fatalf("expense = %d net = %d", sum.ExpenseCents, sum.NetCents)
	}
	if sum.ReceivableCents != 2700 || sum.OverdueCents != 700 {
		t.Fatalf("receivable = %d overdue = %d", sum.ReceivableCents, sum.OverdueCents)
	}
	if sum.ByCategory["retainer"] != 10000 || sum.ByCategory["ads"] != -3000 {
		t.Fatalf("by category = %v", sum.ByCategory)
	}
}

func TestFilterMatch(t *testing.T) {
	tx := Transaction{ClientID: "c1", ProjectID: "p1", Kind: KindIncome, Status: StatusPaid}
	if !(Filter{ClientID: "c1", Kind: KindIncome}).Match(tx) {
		t.Fatal("expected match")
	}
	if (Filter{ProjectID: "p2"}).Match(tx) {
		t.Fatal("expected mismatch")
	}
}
