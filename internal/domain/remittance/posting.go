package remittance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/domain/claims"
	"github.com/medledger/medledger/internal/edi"
)

// PostOptions narrows a posting run. Use DefaultPostOptions for the normal
// case; the zero value posts payments only, with both policies off.
type PostOptions struct {
	// LineItemIDs restricts the run to these items. Empty means every
	// unposted item on the remittance.
	LineItemIDs []uuid.UUID
	// PostAdjustments applies the contractual portion of each line's
	// adjustments to the charge.
	PostAdjustments bool
	// CreatePatientResponsibility moves the patient portion onto the
	// charge so the front desk can collect it.
	CreatePatientResponsibility bool
}

// DefaultPostOptions posts all unposted items with both policies on.
func DefaultPostOptions() PostOptions {
	return PostOptions{PostAdjustments: true, CreatePatientResponsibility: true}
}

// PostRemittance applies a remittance to the charge ledger. One payment row
// is created per check; each matched line item allocates its paid amount
// onto the corresponding charge and, per the options, splits adjustments
// into the contractual and patient-responsibility portions. The run is
// idempotent: posted items are skipped, and the per-item posted guard holds
// under concurrent runs.
//
// Low-confidence and unmatched items are left for manual review; denied
// lines move the claim to denied without touching the ledger so the balance
// survives an appeal.
func (s *Service) PostRemittance(ctx context.Context, orgID, remittanceID uuid.UUID, opts PostOptions) (*PostingSummary, error) {
	rem, err := s.repo.GetByID(ctx, orgID, remittanceID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, rem.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("remittance %s has no line items", rem.CheckNumber)
	}

	working := items
	if len(opts.LineItemIDs) > 0 {
		requested := make(map[uuid.UUID]bool, len(opts.LineItemIDs))
		for _, id := range opts.LineItemIDs {
			requested[id] = true
		}
		working = nil
		for _, li := range items {
			if requested[li.ID] {
				working = append(working, li)
			}
		}
		if len(working) == 0 {
			return nil, fmt.Errorf("none of the requested line items belong to remittance %s", rem.CheckNumber)
		}
	}

	summary := &PostingSummary{RemittanceID: rem.ID}
	applied := decimal.Zero

	err = s.runTx(ctx, func(ctx context.Context) error {
		payment, err := s.ensurePayment(ctx, rem)
		if err != nil {
			return err
		}
		summary.PaymentID = &payment.ID

		// Claim-level outcome accumulated across the check's lines.
		outcomes := make(map[uuid.UUID]*claimOutcome)

		for _, li := range working {
			res := PostingItemResult{
				LineItemID:  li.ID,
				ClaimNumber: li.ClaimNumber,
				CPTCode:     li.CPTCode,
			}

			switch {
			case li.IsPosted:
				res.Status = PostSkipped
				res.Detail = "already posted"
				summary.Skipped++
			case li.MatchedClaimID == nil:
				res.Status = PostUnmatched
				res.Detail = "no matching claim"
				summary.Unmatched++
			case li.MatchConfidence == ConfidenceLow:
				res.Status = PostUnmatched
				res.Detail = "low-confidence match requires manual review"
				summary.Unmatched++
			default:
				out := outcomes[*li.MatchedClaimID]
				if out == nil {
					out = &claimOutcome{}
					outcomes[*li.MatchedClaimID] = out
				}
				if err := s.postItem(ctx, li, payment, opts, &res, out, &applied); err != nil {
					return err
				}
				switch res.Status {
				case PostPosted:
					summary.Posted++
				case PostSkipped:
					summary.Skipped++
				case PostError:
					summary.Errors++
				}
			}
			summary.Items = append(summary.Items, res)
		}

		for claimID, out := range outcomes {
			if err := s.settleClaim(ctx, orgID, claimID, out.paid, out.denied); err != nil {
				return err
			}
		}

		return s.refreshStatus(ctx, rem, items)
	})
	if err != nil {
		return nil, err
	}

	summary.TotalApplied, _ = applied.Float64()
	log.Info().
		Str("check_number", rem.CheckNumber).
		Int("posted", summary.Posted).
		Int("skipped", summary.Skipped).
		Int("unmatched", summary.Unmatched).
		Int("errors", summary.Errors).
		Float64("total_applied", summary.TotalApplied).
		Msg("remittance posted")
	return summary, nil
}

// claimOutcome accumulates the adjudication signal for one claim across a
// check's line items.
type claimOutcome struct{ paid, denied bool }

// postItem applies one matched line item. The posted guard is taken before
// any money moves so a concurrent run sees either nothing or everything.
func (s *Service) postItem(ctx context.Context, li *LineItem, payment *claims.Payment, opts PostOptions, res *PostingItemResult, out *claimOutcome, applied *decimal.Decimal) error {
	if li.IsDenied(edi.IsDenialCode) {
		won, err := s.repo.MarkItemPosted(ctx, li.ID)
		if err != nil {
			return err
		}
		if !won {
			res.Status = PostSkipped
			res.Detail = "already posted"
			return nil
		}
		li.IsPosted = true
		out.denied = true
		res.Status = PostPosted
		res.Detail = "denial recorded; no payment applied"
		return nil
	}

	ch, err := s.resolveCharge(ctx, li)
	if err != nil {
		if claims.IsNotFound(err) {
			res.Status = PostError
			res.Detail = "no charge on ledger for this line"
			return nil
		}
		return err
	}

	won, err := s.repo.MarkItemPosted(ctx, li.ID)
	if err != nil {
		return err
	}
	if !won {
		res.Status = PostSkipped
		res.Detail = "already posted"
		return nil
	}
	li.IsPosted = true

	paid := decimal.NewFromFloat(li.PaidAmount)
	patient := decimal.Zero
	if opts.CreatePatientResponsibility {
		patient = decimal.NewFromFloat(li.PatientAmount)
	}
	contractual := decimal.Zero
	if opts.PostAdjustments {
		contractual = decimal.NewFromFloat(li.AdjustedAmount).Sub(decimal.NewFromFloat(li.PatientAmount))
		if contractual.IsNegative() {
			contractual = decimal.Zero
		}
	}

	ch.PaidAmount, _ = decimal.NewFromFloat(ch.PaidAmount).Add(paid).Float64()
	ch.AdjustedAmount, _ = decimal.NewFromFloat(ch.AdjustedAmount).Add(contractual).Float64()
	ch.PatientAmount, _ = decimal.NewFromFloat(ch.PatientAmount).Add(patient).Float64()
	ch.Recalculate()
	if err := s.charges.Update(ctx, ch); err != nil {
		return err
	}

	itemID := li.ID
	alloc := &claims.PaymentAllocation{
		PaymentID:            payment.ID,
		ChargeID:             ch.ID,
		ClaimID:              ch.ClaimID,
		RemittanceLineItemID: &itemID,
		Amount:               li.PaidAmount,
	}
	alloc.AdjustedAmount, _ = contractual.Float64()
	alloc.PatientAmount, _ = patient.Float64()
	if err := s.payments.AddAllocation(ctx, alloc); err != nil {
		return err
	}

	*applied = applied.Add(paid)
	out.paid = true
	res.Status = PostPosted
	res.ChargeID = &ch.ID
	return nil
}

// resolveCharge finds the ledger charge for a line item, preferring the
// confirmed service line and falling back to a procedure-code match among
// the claim's charges.
func (s *Service) resolveCharge(ctx context.Context, li *LineItem) (*claims.Charge, error) {
	if li.MatchedServiceLineID != nil {
		return s.charges.GetByServiceLine(ctx, li.OrgID, *li.MatchedServiceLineID)
	}
	all, err := s.charges.ListByClaim(ctx, li.OrgID, *li.MatchedClaimID)
	if err != nil {
		return nil, err
	}
	for _, ch := range all {
		if ch.CPTCode == li.CPTCode && ch.Status != claims.ChargeWrittenOff {
			return ch, nil
		}
	}
	if len(all) == 1 {
		return all[0], nil
	}
	return nil, claims.ErrNotFound
}

// settleClaim moves the claim to its adjudicated status. A check that pays
// any line settles the claim as paid; an all-denial check settles it as
// denied. Claims already in a terminal state are left alone.
func (s *Service) settleClaim(ctx context.Context, orgID, claimID uuid.UUID, paid, denied bool) error {
	var target string
	switch {
	case paid:
		target = claims.StatusPaid
	case denied:
		target = claims.StatusDenied
	default:
		return nil
	}

	c, err := s.claims.GetByID(ctx, orgID, claimID)
	if err != nil {
		return err
	}
	if !claims.CanTransition(c.Status, target) {
		log.Warn().
			Str("claim_number", c.ClaimNumber).
			Str("from", c.Status).
			Str("to", target).
			Msg("posting left claim status unchanged")
		return nil
	}
	return s.claims.UpdateStatus(ctx, orgID, claimID, target, nil)
}

// ensurePayment finds or creates the payment row for a check.
func (s *Service) ensurePayment(ctx context.Context, rem *Remittance) (*claims.Payment, error) {
	p, err := s.payments.GetByCheckNumber(ctx, rem.OrgID, rem.CheckNumber)
	if err == nil {
		return p, nil
	}
	if !claims.IsNotFound(err) {
		return nil, err
	}

	remID := rem.ID
	p = &claims.Payment{
		OrgID:        rem.OrgID,
		RemittanceID: &remID,
		CheckNumber:  rem.CheckNumber,
		PayerName:    rem.PayerName,
		Amount:       rem.TotalPaid,
		PaymentDate:  rem.CheckDate,
		Method:       "era",
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// refreshStatus derives the remittance status from its items after a run.
func (s *Service) refreshStatus(ctx context.Context, rem *Remittance, items []*LineItem) error {
	posted := 0
	for _, li := range items {
		if li.IsPosted {
			posted++
		}
	}

	status := StatusReceived
	switch {
	case posted == len(items):
		status = StatusPosted
	case posted > 0:
		status = StatusPartiallyPosted
	}
	if status == rem.Status {
		return nil
	}
	rem.Status = status
	rem.UpdatedAt = time.Now().UTC()
	return s.repo.UpdateStatus(ctx, rem.OrgID, rem.ID, status)
}
