package edi

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PostingReport is a pure summarization over a parsed remittance: per-CARC
// aggregates plus top-line totals. The same shape is produced when the
// report is reconstructed later from persisted line items.
type PostingReport struct {
	TotalClaims         int                 `json:"total_claims"`
	TotalServiceLines   int                 `json:"total_service_lines"`
	TotalCharged        float64             `json:"total_charged"`
	TotalPaid           float64             `json:"total_paid"`
	TotalAdjusted       float64             `json:"total_adjusted"`
	TotalPatientAmount  float64             `json:"total_patient_amount"`
	TotalDenied         float64             `json:"total_denied"`
	AdjustmentBreakdown []AdjustmentSummary `json:"adjustment_breakdown"`
}

// AdjustmentSummary aggregates one reason code across the remittance.
type AdjustmentSummary struct {
	GroupCode   string  `json:"group_code"`
	ReasonCode  string  `json:"reason_code"`
	Description string  `json:"description"`
	Occurrences int     `json:"occurrences"`
	TotalAmount float64 `json:"total_amount"`
}

// BuildPostingReport derives the posting report from a parsed remittance.
// Money is accumulated in decimal so cent sums stay exact.
func BuildPostingReport(rem *ParsedRemittance) PostingReport {
	report := PostingReport{TotalClaims: len(rem.Claims)}

	charged := decimal.Zero
	paid := decimal.Zero
	adjusted := decimal.Zero
	patient := decimal.Zero
	denied := decimal.Zero

	type aggKey struct{ group, reason string }
	aggs := map[aggKey]*AdjustmentSummary{}

	accumulate := func(adjs []Adjustment) {
		for _, a := range adjs {
			adjusted = adjusted.Add(decimal.NewFromFloat(a.Amount))
			k := aggKey{a.GroupCode, a.ReasonCode}
			agg, ok := aggs[k]
			if !ok {
				agg = &AdjustmentSummary{
					GroupCode:   a.GroupCode,
					ReasonCode:  a.ReasonCode,
					Description: CARCDescription(a.ReasonCode),
				}
				aggs[k] = agg
			}
			agg.Occurrences++
			agg.TotalAmount, _ = decimal.NewFromFloat(agg.TotalAmount).
				Add(decimal.NewFromFloat(a.Amount)).Float64()
		}
	}

	for _, c := range rem.Claims {
		accumulate(c.Adjustments)
		for _, s := range c.Services {
			report.TotalServiceLines++
			charged = charged.Add(decimal.NewFromFloat(s.ChargedAmount))
			paid = paid.Add(decimal.NewFromFloat(s.PaidAmount))
			patient = patient.Add(decimal.NewFromFloat(s.PatientAmount))
			accumulate(s.Adjustments)
			if s.PaidAmount == 0 && hasDenial(s.Adjustments) {
				denied = denied.Add(decimal.NewFromFloat(s.ChargedAmount))
			}
		}
	}

	report.TotalCharged, _ = charged.Float64()
	report.TotalPaid, _ = paid.Float64()
	report.TotalAdjusted, _ = adjusted.Float64()
	report.TotalPatientAmount, _ = patient.Float64()
	report.TotalDenied, _ = denied.Float64()

	for _, agg := range aggs {
		report.AdjustmentBreakdown = append(report.AdjustmentBreakdown, *agg)
	}
	sort.Slice(report.AdjustmentBreakdown, func(i, j int) bool {
		a, b := report.AdjustmentBreakdown[i], report.AdjustmentBreakdown[j]
		if a.GroupCode != b.GroupCode {
			return a.GroupCode < b.GroupCode
		}
		return a.ReasonCode < b.ReasonCode
	})
	return report
}

func hasDenial(adjs []Adjustment) bool {
	for _, a := range adjs {
		if IsDenialCode(a.ReasonCode) {
			return true
		}
	}
	return false
}
