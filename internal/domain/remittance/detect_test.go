package remittance

import (
	"testing"

	"github.com/google/uuid"
)

func TestDetectUnderpayments(t *testing.T) {
	items := []*LineItem{
		// Paid well below allowed-minus-patient: flagged.
		{ID: uuid.New(), ClaimNumber: "CLM-A", CPTCode: "99213",
			AllowedAmount: 128.5, PaidAmount: 100, PatientAmount: 10},
		// Shortfall inside the 5% threshold: not flagged.
		{ID: uuid.New(), ClaimNumber: "CLM-B", CPTCode: "99214",
			AllowedAmount: 128.5, PaidAmount: 115, PatientAmount: 10},
		// Paid in full: not flagged.
		{ID: uuid.New(), ClaimNumber: "CLM-C", CPTCode: "93000",
			AllowedAmount: 80, PaidAmount: 80},
		// No allowed amount reported: out of scope.
		{ID: uuid.New(), ClaimNumber: "CLM-D", CPTCode: "36415",
			AllowedAmount: 0, PaidAmount: 5},
		// Nothing paid at all: denial territory, not underpayment.
		{ID: uuid.New(), ClaimNumber: "CLM-E", CPTCode: "99396",
			AllowedAmount: 150, PaidAmount: 0},
	}

	flags := DetectUnderpayments(items, 5)
	if len(flags) != 1 {
		t.Fatalf("flags = %d, want 1", len(flags))
	}
	f := flags[0]
	if f.ClaimNumber != "CLM-A" {
		t.Errorf("flagged claim = %q", f.ClaimNumber)
	}
	if !feq(f.ExpectedAmount, 118.5) {
		t.Errorf("expected amount = %v, want 118.5", f.ExpectedAmount)
	}
	if !feq(f.Shortfall, 18.5) {
		t.Errorf("shortfall = %v, want 18.5", f.Shortfall)
	}
}

func TestDetectUnderpayments_ZeroThresholdFlagsAnyShortfall(t *testing.T) {
	items := []*LineItem{
		{ID: uuid.New(), ClaimNumber: "CLM-A", CPTCode: "99213",
			AllowedAmount: 100, PaidAmount: 99.99},
	}
	if flags := DetectUnderpayments(items, 0); len(flags) != 1 {
		t.Fatalf("flags = %d, want 1 at zero threshold", len(flags))
	}
}

func TestDetectDenials_StatusCodeFallback(t *testing.T) {
	// A CLP-04 denial with no CAS detail still gets flagged; the reason
	// falls back to a generic description.
	items := []*LineItem{
		{ID: uuid.New(), ClaimNumber: "CLM-X", CPTCode: "99213", ClaimStatusCode: "4", ChargedAmount: 75},
	}
	flags := DetectDenials(items)
	if len(flags) != 1 {
		t.Fatalf("flags = %d, want 1", len(flags))
	}
	if flags[0].Reason == "" {
		t.Error("reason description missing")
	}
}

func TestDetectDenials_PaidLineNotFlagged(t *testing.T) {
	items := []*LineItem{
		{ID: uuid.New(), ClaimNumber: "CLM-Y", CPTCode: "99213", ClaimStatusCode: "1",
			PaidAmount: 50, Adjustments: []Adjustment{{GroupCode: "CO", ReasonCode: "197", Amount: 25}}},
	}
	if flags := DetectDenials(items); len(flags) != 0 {
		t.Fatalf("flags = %d, want 0 for a paid line", len(flags))
	}
}
