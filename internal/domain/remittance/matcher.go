package remittance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medledger/medledger/internal/domain/claims"
)

// ClaimIndex is the subset of the claims repository the matcher needs.
// claims.ClaimRepository satisfies it.
type ClaimIndex interface {
	GetByClaimNumber(ctx context.Context, orgID uuid.UUID, claimNumber string) (*claims.Claim, error)
	GetByPayerClaimNumber(ctx context.Context, orgID uuid.UUID, payerClaimNumber string) (*claims.Claim, error)
	GetLines(ctx context.Context, claimID uuid.UUID) ([]*claims.ServiceLine, error)
}

// ChargeIndex resolves a ledger charge by procedure and patient when a claim
// matches but none of its service lines agree with the remittance line.
// claims.ChargeRepository satisfies it.
type ChargeIndex interface {
	FindByPatientCPT(ctx context.Context, orgID, patientID uuid.UUID, cptCode string, serviceDate *time.Time, toleranceDays int) (*claims.Charge, error)
}

// Matcher links remittance line items to submitted claims. Identifiers are
// tried strongest-first and the first hit wins: the practice claim number
// echoed in CLP01, then the payer's own claim number. A claim-number match
// grades medium on its own and high once a service line is confirmed on
// procedure code and date; an unconfirmed match falls back to a charge
// search by procedure and patient within the date window, which pins the
// charge but stays medium. Payer-number matches grade medium with no charge
// resolution.
type Matcher struct {
	claims            ClaimIndex
	charges           ChargeIndex
	dateToleranceDays int
}

func NewMatcher(idx ClaimIndex, charges ChargeIndex, dateToleranceDays int) *Matcher {
	if dateToleranceDays < 0 {
		dateToleranceDays = 0
	}
	return &Matcher{claims: idx, charges: charges, dateToleranceDays: dateToleranceDays}
}

// MatchItem fills the match fields on one line item. An unmatched item is
// not an error; only repository failures are.
func (m *Matcher) MatchItem(ctx context.Context, li *LineItem) error {
	li.MatchedClaimID = nil
	li.MatchedServiceLineID = nil
	li.MatchConfidence = ConfidenceNone
	li.MatchReason = nil

	if li.ClaimNumber != "" {
		c, err := m.claims.GetByClaimNumber(ctx, li.OrgID, li.ClaimNumber)
		if err == nil {
			return m.confirm(ctx, li, c)
		}
		if !claims.IsNotFound(err) {
			return err
		}
	}

	if li.PayerClaimNumber != nil && *li.PayerClaimNumber != "" {
		c, err := m.claims.GetByPayerClaimNumber(ctx, li.OrgID, *li.PayerClaimNumber)
		if err == nil {
			id := c.ID
			li.MatchedClaimID = &id
			li.MatchConfidence = ConfidenceMedium
			li.MatchReason = strptr("matched by payer claim number")
			return nil
		}
		if !claims.IsNotFound(err) {
			return err
		}
	}

	li.MatchReason = strptr("no match found")
	return nil
}

// confirm attaches a claim found by its practice claim number and upgrades
// the match where the claim's own lines or charges agree with the item.
func (m *Matcher) confirm(ctx context.Context, li *LineItem, c *claims.Claim) error {
	id := c.ID
	li.MatchedClaimID = &id
	li.MatchConfidence = ConfidenceMedium
	li.MatchReason = strptr("matched by claim number")

	lines, err := m.claims.GetLines(ctx, c.ID)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if l.CPTCode != li.CPTCode {
			continue
		}
		if !m.dateAgrees(li.ServiceDate, l.ServiceDateFrom) {
			continue
		}
		lineID := l.ID
		li.MatchedServiceLineID = &lineID
		li.MatchConfidence = ConfidenceHigh
		li.MatchReason = strptr("matched by claim number; service line confirmed on procedure and date")
		return nil
	}

	// No line agreed. A charge search by procedure and patient within the
	// date window still pins the ledger target; confidence stays medium.
	if m.charges != nil && li.CPTCode != "" {
		ch, err := m.charges.FindByPatientCPT(ctx, li.OrgID, c.PatientID, li.CPTCode, li.ServiceDate, m.dateToleranceDays)
		if err == nil {
			slID := ch.ServiceLineID
			li.MatchedServiceLineID = &slID
			li.MatchReason = strptr("matched by CPT and patient")
			return nil
		}
		if !claims.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// MatchAll runs the matcher over every item in order.
func (m *Matcher) MatchAll(ctx context.Context, items []*LineItem) error {
	for _, li := range items {
		if err := m.MatchItem(ctx, li); err != nil {
			return err
		}
	}
	return nil
}

// dateAgrees treats a missing date on either side as agreement; payers
// frequently omit DTM on single-date claims.
func (m *Matcher) dateAgrees(a, b *time.Time) bool {
	if a == nil || b == nil {
		return true
	}
	d := a.Sub(*b)
	if d < 0 {
		d = -d
	}
	return d <= time.Duration(m.dateToleranceDays)*24*time.Hour
}

func strptr(s string) *string { return &s }
