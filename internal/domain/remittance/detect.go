package remittance

import (
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/edi"
)

// DetectDenials flags line items that were denied outright. The reason on
// the flag is the first denial-category adjustment; a CLP status of 4 with
// no CAS detail falls back to the first adjustment of any kind.
func DetectDenials(items []*LineItem) []DenialFlag {
	var flags []DenialFlag
	for _, li := range items {
		if !li.IsDenied(edi.IsDenialCode) {
			continue
		}
		flag := DenialFlag{
			LineItemID:    li.ID,
			ClaimNumber:   li.ClaimNumber,
			CPTCode:       li.CPTCode,
			ChargedAmount: li.ChargedAmount,
			RemarkCodes:   li.RemarkCodes,
			MatchedClaim:  li.MatchedClaimID,
		}
		for _, a := range li.Adjustments {
			if edi.IsDenialCode(a.ReasonCode) {
				flag.ReasonCode = a.ReasonCode
				break
			}
		}
		if flag.ReasonCode == "" && len(li.Adjustments) > 0 {
			flag.ReasonCode = li.Adjustments[0].ReasonCode
		}
		flag.Reason = edi.CARCDescription(flag.ReasonCode)
		flags = append(flags, flag)
	}
	return flags
}

// DetectUnderpayments flags line items paid below the payer's allowed
// amount by more than thresholdPct percent. The patient-responsibility
// portion is expected from the patient, not the payer, so the expectation
// is allowed minus patient amount. Lines with no allowed amount or no
// payment at all are out of scope; denials are handled separately.
func DetectUnderpayments(items []*LineItem, thresholdPct float64) []UnderpaymentFlag {
	threshold := decimal.NewFromFloat(thresholdPct).Div(decimal.NewFromInt(100))

	var flags []UnderpaymentFlag
	for _, li := range items {
		if li.AllowedAmount <= 0 || li.PaidAmount <= 0 {
			continue
		}
		allowed := decimal.NewFromFloat(li.AllowedAmount)
		patient := decimal.NewFromFloat(li.PatientAmount)
		paid := decimal.NewFromFloat(li.PaidAmount)

		expected := allowed.Sub(patient)
		if !expected.IsPositive() {
			continue
		}
		shortfall := expected.Sub(paid)
		if !shortfall.IsPositive() {
			continue
		}
		if shortfall.LessThanOrEqual(expected.Mul(threshold)) {
			continue
		}

		flag := UnderpaymentFlag{
			LineItemID:    li.ID,
			ClaimNumber:   li.ClaimNumber,
			CPTCode:       li.CPTCode,
			AllowedAmount: li.AllowedAmount,
			PaidAmount:    li.PaidAmount,
			PatientAmount: li.PatientAmount,
		}
		flag.ExpectedAmount, _ = expected.Float64()
		flag.Shortfall, _ = shortfall.Float64()
		flags = append(flags, flag)
	}
	return flags
}
