package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2024, 2, 29), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2025, 2, 28)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2025-02-28"` {
		t.Fatalf("unexpected JSON: %s", b)
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d.Time) {
		t.Fatalf("round trip mismatch: %s != %s", back, d)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -5}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:   NewDate(2025, 1, 1),
		Type:   Expense,
		Amount: Money{Cents: 100},
		Memo:   "coffee",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Date: Date{}, Type: Expense, Amount: Money{Cents: 1}},
		{Date: NewDate(2025, 1, 1), Type: "transfer", Amount: Money{Cents: 1}},
		{Date: NewDate(2025, 1, 1), Type: Income, Amount: Money{Cents: 0}},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestCategoryValidate(t *testing.T) {
	good := Category{Name: "Groceries", Type: Expense, Color: "#a1b2c3"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	shortColor := Category{Name: "Rent", Type: Expense, Color: "#abc"}
	if err := shortColor.Validate(); err != nil {
		t.Fatalf("expected ok for #rgb, got %v", err)
	}

	bads := []Category{
		{Name: "", Type: Expense, Color: "#aabbcc"},
		{Name: "x", Type: "other", Color: "#aabbcc"},
		{Name: "x", Type: Income, Color: "red"},
		{Name: "x", Type: Income, Color: "#zzzzzz"},
	}
	for i, c := range bads {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestUserValidate(t *testing.T) {
	if err := (User{Email: "a@example.com", Name: "A"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []User{
		{Email: "", Name: "A"},
		{Email: "no-at-sign", Name: "A"},
		{Email: "trailing@", Name: "A"},
		{Email: "a@example.com", Name: ""},
	}
	for i, u := range bads {
		if err := u.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestUserSettingsValidate(t *testing.T) {
	if err := (UserSettings{Currency: "JPY"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	for _, bad := range []string{"", "jp", "jpy", "YENS"} {
		if err := (UserSettings{Currency: bad}).Validate(); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestRecurringTransactionValidate(t *testing.T) {
	good := RecurringTransaction{
		StartDate: NewDate(2025, 1, 1),
		Every:     Monthly,
		Type:      Expense,
		Amount:    Money{Cents: 80000},
		Memo:      "rent",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	endBeforeStart := good
	endBeforeStart.EndDate = NewDate(2024, 12, 1)
	if err := endBeforeStart.Validate(); err == nil {
		t.Fatalf("expected error for end before start")
	}

	badEvery := good
	badEvery.Every = "fortnightly"
	if err := badEvery.Validate(); err == nil {
		t.Fatalf("expected error for repetition type")
	}
}
