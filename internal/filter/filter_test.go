package filter

import (
	"testing"
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
)

var today = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func testRecord() *domain.CreditRequest {
	return &domain.CreditRequest{
		ID:             "r1",
		Amount:         12000,
		InvoiceNumber:  "INV-1",
		ItemNumber:     "SKU-1",
		CustomerNumber: "C-1",
		SalesRep:       "Rep A",
		Date:           today.AddDate(0, 0, -45),
		HasDate:        true,
	}
}

func TestCompile(t *testing.T) {
	f, err := Compile("amount >= 1000.0 && pending")
	if err != nil {
		t.Fatalf("failed to compile filter: %v", err)
	}
	if f == nil {
		t.Fatal("expected a filter")
	}
}

func TestCompileRejectsEmpty(t *testing.T) {
	if _, err := Compile(""); err == nil {
		t.Error("expected an error for an empty expression")
	}
}

func TestCompileRejectsInvalidSyntax(t *testing.T) {
	if _, err := Compile("this is not CEL !!!"); err == nil {
		t.Error("expected an error for invalid syntax")
	}
}

func TestCompileRejectsNonBool(t *testing.T) {
	if _, err := Compile("amount"); err == nil {
		t.Error("expected an error for a non-bool expression")
	}
	if _, err := Compile("amount * 2.0"); err == nil {
		t.Error("expected an error for a numeric expression")
	}
}

func TestCompileRejectsUnknownVariable(t *testing.T) {
	if _, err := Compile("region == 'x'"); err == nil {
		t.Error("expected an error for an unknown variable")
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		name string
		expr string
		want bool
	}{
		{"AmountAbove", "amount >= 10000.0", true},
		{"AmountBelow", "amount >= 20000.0", false},
		{"Pending", "pending", true},
		{"RepMatch", "rep == 'Rep A'", true},
		{"InvoicePrefix", "invoice.startsWith('INV')", true},
		{"AgeWindow", "age_days >= 30 && age_days < 60", true},
		{"Conjunction", "pending && amount >= 10000.0 && item == 'SKU-1'", true},
		{"CustomerMiss", "customer == 'C-2'", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Compile(tc.expr)
			if err != nil {
				t.Fatalf("failed to compile %q: %v", tc.expr, err)
			}
			if got := f.Match(testRecord(), today); got != tc.want {
				t.Errorf("Match(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestMatchDatelessRecord(t *testing.T) {
	rec := testRecord()
	rec.HasDate = false

	f, _ := Compile("age_days < 0")
	if !f.Match(rec, today) {
		t.Error("expected age_days -1 for a dateless record")
	}

	f, _ = Compile("age_days >= 0")
	if f.Match(rec, today) {
		t.Error("a dateless record must not match an age window")
	}
}

func TestMatchResolvedRecord(t *testing.T) {
	rec := testRecord()
	rec.Resolution = "CR-2024-118"

	f, _ := Compile("pending")
	if f.Match(rec, today) {
		t.Error("resolved record must not match pending")
	}
	f, _ = Compile("!pending")
	if !f.Match(rec, today) {
		t.Error("resolved record must match !pending")
	}
}
