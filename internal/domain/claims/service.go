package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/medledger/medledger/internal/edi"
	"github.com/medledger/medledger/internal/platform/db"
)

type Service struct {
	claims   ClaimRepository
	charges  ChargeRepository
	payments PaymentRepository
	pool     *pgxpool.Pool
	sender   edi.SenderConfig
}

func NewService(cl ClaimRepository, ch ChargeRepository, pay PaymentRepository, pool *pgxpool.Pool, sender edi.SenderConfig) *Service {
	return &Service{claims: cl, charges: ch, payments: pay, pool: pool, sender: sender}
}

// runTx wraps fn in a transaction when a pool is attached. Unit tests run
// against map-backed repositories with no pool and execute fn directly.
func (s *Service) runTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.pool == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.pool, fn)
}

// CreateClaim validates and persists a draft claim with its diagnoses and
// service lines. The claim total must equal the sum of its line charges; a
// zero total is filled in from the lines.
func (s *Service) CreateClaim(ctx context.Context, c *Claim) error {
	if c.OrgID == uuid.Nil {
		return fmt.Errorf("org_id is required")
	}
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if len(c.Lines) == 0 {
		return fmt.Errorf("claim requires at least one service line")
	}
	if len(c.Diagnoses) == 0 {
		return fmt.Errorf("claim requires at least one diagnosis")
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	if c.Status != StatusDraft {
		return fmt.Errorf("new claims must start as draft, got %q", c.Status)
	}
	if c.ClaimNumber == "" {
		c.ClaimNumber = NewClaimNumber(time.Now())
	}

	if err := s.normalizeLines(c); err != nil {
		return err
	}

	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.claims.Create(ctx, c); err != nil {
			return err
		}
		for _, d := range c.Diagnoses {
			d.ClaimID = c.ID
			if err := s.claims.AddDiagnosis(ctx, d); err != nil {
				return err
			}
		}
		for _, l := range c.Lines {
			l.ClaimID = c.ID
			if err := s.claims.AddLine(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// normalizeLines numbers the lines, checks diagnosis pointers, and enforces
// total = sum of line charges.
func (s *Service) normalizeLines(c *Claim) error {
	sum := decimal.Zero
	for i, l := range c.Lines {
		if l.LineNumber == 0 {
			l.LineNumber = i + 1
		}
		if l.CPTCode == "" {
			return fmt.Errorf("service line %d: cpt_code is required", l.LineNumber)
		}
		if l.Units <= 0 {
			return fmt.Errorf("service line %d: units must be positive", l.LineNumber)
		}
		if l.ChargeAmount <= 0 {
			return fmt.Errorf("service line %d: charge_amount must be positive", l.LineNumber)
		}
		for _, p := range l.DiagnosisPointers {
			if p < 1 || p > len(c.Diagnoses) {
				return fmt.Errorf("service line %d: diagnosis pointer %d out of range", l.LineNumber, p)
			}
		}
		sum = sum.Add(decimal.NewFromFloat(l.ChargeAmount))
	}

	total, _ := sum.Float64()
	if c.TotalCharges == 0 {
		c.TotalCharges = total
	} else if !decimal.NewFromFloat(c.TotalCharges).Equal(sum) {
		return fmt.Errorf("total_charges %.2f does not equal sum of line charges %.2f", c.TotalCharges, total)
	}
	return nil
}

// GetClaim loads a claim with its diagnoses and service lines.
func (s *Service) GetClaim(ctx context.Context, orgID, id uuid.UUID) (*Claim, error) {
	c, err := s.claims.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return s.loadChildren(ctx, c)
}

// GetClaimByNumber loads a claim by its practice-local claim number.
func (s *Service) GetClaimByNumber(ctx context.Context, orgID uuid.UUID, claimNumber string) (*Claim, error) {
	c, err := s.claims.GetByClaimNumber(ctx, orgID, claimNumber)
	if err != nil {
		return nil, err
	}
	return s.loadChildren(ctx, c)
}

func (s *Service) loadChildren(ctx context.Context, c *Claim) (*Claim, error) {
	var err error
	if c.Diagnoses, err = s.claims.GetDiagnoses(ctx, c.ID); err != nil {
		return nil, err
	}
	if c.Lines, err = s.claims.GetLines(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateClaim replaces a draft claim's content. Claims past draft are frozen;
// corrections go through the rejected -> draft transition first.
func (s *Service) UpdateClaim(ctx context.Context, c *Claim) error {
	existing, err := s.claims.GetByID(ctx, c.OrgID, c.ID)
	if err != nil {
		return err
	}
	if existing.Status != StatusDraft {
		return fmt.Errorf("claim %s is %s; only draft claims can be edited", existing.ClaimNumber, existing.Status)
	}
	if len(c.Lines) == 0 || len(c.Diagnoses) == 0 {
		return fmt.Errorf("claim requires at least one diagnosis and one service line")
	}
	if err := s.normalizeLines(c); err != nil {
		return err
	}

	c.ClaimNumber = existing.ClaimNumber
	c.Status = existing.Status

	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.claims.Update(ctx, c); err != nil {
			return err
		}
		if err := s.claims.DeleteDiagnoses(ctx, c.ID); err != nil {
			return err
		}
		if err := s.claims.DeleteLines(ctx, c.ID); err != nil {
			return err
		}
		for _, d := range c.Diagnoses {
			d.ID = uuid.Nil
			d.ClaimID = c.ID
			if err := s.claims.AddDiagnosis(ctx, d); err != nil {
				return err
			}
		}
		for _, l := range c.Lines {
			l.ID = uuid.Nil
			l.ClaimID = c.ID
			if err := s.claims.AddLine(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteClaim removes a draft claim. Anything later in the lifecycle is
// voided instead so the audit trail survives.
func (s *Service) DeleteClaim(ctx context.Context, orgID, id uuid.UUID) error {
	existing, err := s.claims.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if existing.Status != StatusDraft {
		return fmt.Errorf("claim %s is %s; void it instead of deleting", existing.ClaimNumber, existing.Status)
	}
	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.claims.DeleteDiagnoses(ctx, id); err != nil {
			return err
		}
		if err := s.claims.DeleteLines(ctx, id); err != nil {
			return err
		}
		return s.claims.Delete(ctx, orgID, id)
	})
}

func (s *Service) ListClaims(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*Claim, int, error) {
	if status != "" && !ValidStatus(status) {
		return nil, 0, fmt.Errorf("invalid claim status: %s", status)
	}
	return s.claims.List(ctx, orgID, status, limit, offset)
}

func (s *Service) ListClaimsByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]*Claim, int, error) {
	return s.claims.ListByPatient(ctx, orgID, patientID, limit, offset)
}

// Transition moves a claim along the lifecycle graph. MarkReady and Submit
// are the preferred entry points for draft->ready and ready->submitted since
// they carry side effects; Transition covers the adjudication edges.
func (s *Service) Transition(ctx context.Context, orgID, id uuid.UUID, to string, reason *string) error {
	if !ValidStatus(to) {
		return fmt.Errorf("invalid claim status: %s", to)
	}
	c, err := s.claims.GetByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("claim %s cannot move from %s to %s", c.ClaimNumber, c.Status, to)
	}
	return s.claims.UpdateStatus(ctx, orgID, id, to, reason)
}

// MarkReady moves a draft claim to ready and opens one charge per service
// line on the patient ledger. Claim update and charge creation commit
// together.
func (s *Service) MarkReady(ctx context.Context, orgID, id uuid.UUID) error {
	c, err := s.GetClaim(ctx, orgID, id)
	if err != nil {
		return err
	}
	if !CanTransition(c.Status, StatusReady) {
		return fmt.Errorf("claim %s cannot move from %s to ready", c.ClaimNumber, c.Status)
	}

	validation := edi.ValidateClaim(s.toSubmission(c))
	if !validation.Valid {
		return fmt.Errorf("claim %s failed validation: %v", c.ClaimNumber, validation.Errors)
	}

	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.claims.UpdateStatus(ctx, orgID, id, StatusReady, nil); err != nil {
			return err
		}
		for _, l := range c.Lines {
			ch := &Charge{
				OrgID:         orgID,
				ClaimID:       c.ID,
				ServiceLineID: l.ID,
				PatientID:     c.PatientID,
				CPTCode:       l.CPTCode,
				Units:         l.Units,
				TotalAmount:   l.ChargeAmount,
			}
			ch.Recalculate()
			if err := s.charges.Create(ctx, ch); err != nil {
				return err
			}
		}
		return nil
	})
}

// BuildSubmission assembles the encoder input for a claim.
func (s *Service) BuildSubmission(ctx context.Context, orgID, id uuid.UUID) (edi.ClaimSubmission, error) {
	c, err := s.GetClaim(ctx, orgID, id)
	if err != nil {
		return edi.ClaimSubmission{}, err
	}
	return s.toSubmission(c), nil
}

// Submit encodes a ready claim as an 837P and marks it submitted, recording
// the interchange control number for downstream acknowledgment tracking.
func (s *Service) Submit(ctx context.Context, orgID, id uuid.UUID) (*edi.EncodeResult, error) {
	c, err := s.GetClaim(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, StatusSubmitted) {
		return nil, fmt.Errorf("claim %s cannot move from %s to submitted", c.ClaimNumber, c.Status)
	}

	req := s.toSubmission(c)
	validation := edi.ValidateClaim(req)
	if !validation.Valid {
		return nil, fmt.Errorf("claim %s failed validation: %v", c.ClaimNumber, validation.Errors)
	}

	result := edi.Encode837P(req, s.sender)
	if !result.Success {
		return &result, fmt.Errorf("claim %s failed to encode: %v", c.ClaimNumber, result.Errors)
	}

	now := time.Now().UTC()
	c.Status = StatusSubmitted
	c.ControlNumber = &result.ControlNumber
	c.SubmittedAt = &now
	if err := s.claims.Update(ctx, c); err != nil {
		return nil, err
	}
	return &result, nil
}

// Preview encodes the claim as an 837P without touching its status. Invalid
// claims come back as a failed result carrying the validation errors.
func (s *Service) Preview(ctx context.Context, orgID, id uuid.UUID) (*edi.EncodeResult, error) {
	c, err := s.GetClaim(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	req := s.toSubmission(c)
	validation := edi.ValidateClaim(req)
	if !validation.Valid {
		return &edi.EncodeResult{
			Success:  false,
			Errors:   validation.Errors,
			Warnings: validation.Warnings,
		}, nil
	}
	result := edi.Encode837P(req, s.sender)
	return &result, nil
}

// toSubmission maps the persisted claim onto the encoder's input shape.
func (s *Service) toSubmission(c *Claim) edi.ClaimSubmission {
	req := edi.ClaimSubmission{
		Patient: edi.PatientInfo{
			FirstName:   c.PatientFirstName,
			LastName:    c.PatientLastName,
			DateOfBirth: c.PatientDOB,
			Gender:      deref(c.PatientGender),
		},
		Insurance: edi.InsuranceInfo{
			PayerID:          c.PayerID,
			PayerName:        c.PayerName,
			SubscriberID:     c.SubscriberID,
			SubscriberFirst:  deref(c.SubscriberFirst),
			SubscriberLast:   deref(c.SubscriberLast),
			GroupNumber:      deref(c.GroupNumber),
			RelationshipCode: deref(c.RelationshipCode),
		},
		Provider: edi.ProviderInfo{
			NPI:   c.ProviderNPI,
			TaxID: deref(c.ProviderTaxID),
			Name:  c.ProviderName,
		},
		Claim: edi.ClaimInfo{
			ClaimNumber:    c.ClaimNumber,
			TotalCharges:   c.TotalCharges,
			ClaimType:      "professional",
			PlaceOfService: deref(c.PlaceOfService),
		},
	}
	if c.PatientAddress1 != nil {
		req.Patient.Address = &edi.Address{
			Line1: deref(c.PatientAddress1),
			Line2: deref(c.PatientAddress2),
			City:  deref(c.PatientCity),
			State: deref(c.PatientState),
			Zip:   deref(c.PatientZip),
		}
	}
	if c.ProviderAddr1 != nil {
		req.Provider.Address = &edi.Address{
			Line1: deref(c.ProviderAddr1),
			City:  deref(c.ProviderCity),
			State: deref(c.ProviderState),
			Zip:   deref(c.ProviderZip),
		}
	}
	for _, d := range c.Diagnoses {
		req.Claim.Diagnoses = append(req.Claim.Diagnoses, edi.DiagnosisInfo{
			Code:      d.Code,
			Sequence:  d.Sequence,
			IsPrimary: d.Sequence == 1,
		})
	}
	for _, l := range c.Lines {
		req.Claim.Services = append(req.Claim.Services, edi.ServiceInfo{
			LineNumber:        l.LineNumber,
			CPTCode:           l.CPTCode,
			Modifiers:         l.Modifiers,
			DiagnosisPointers: l.DiagnosisPointers,
			Units:             l.Units,
			ChargeAmount:      l.ChargeAmount,
			ServiceDateFrom:   l.ServiceDateFrom,
			ServiceDateTo:     l.ServiceDateTo,
		})
	}
	return req
}

// -- Charges and payments --

func (s *Service) ListChargesByClaim(ctx context.Context, orgID, claimID uuid.UUID) ([]*Charge, error) {
	return s.charges.ListByClaim(ctx, orgID, claimID)
}

func (s *Service) ListChargesByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]*Charge, int, error) {
	return s.charges.ListByPatient(ctx, orgID, patientID, limit, offset)
}

// WriteOffCharge zeroes the remaining balance on a charge by moving it to
// adjustments. Used for small-balance cleanup and exhausted appeals.
func (s *Service) WriteOffCharge(ctx context.Context, orgID, chargeID uuid.UUID) (*Charge, error) {
	ch, err := s.charges.GetByID(ctx, orgID, chargeID)
	if err != nil {
		return nil, err
	}
	if ch.Balance == 0 {
		return ch, nil
	}
	adjusted := decimal.NewFromFloat(ch.AdjustedAmount).Add(decimal.NewFromFloat(ch.Balance))
	ch.AdjustedAmount, _ = adjusted.Float64()
	ch.Status = ChargeWrittenOff
	ch.Recalculate()
	if err := s.charges.Update(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Service) GetPayment(ctx context.Context, orgID, id uuid.UUID) (*Payment, error) {
	return s.payments.GetByID(ctx, orgID, id)
}

func (s *Service) ListPayments(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Payment, int, error) {
	return s.payments.List(ctx, orgID, limit, offset)
}

func (s *Service) GetPaymentAllocations(ctx context.Context, orgID, paymentID uuid.UUID) ([]*PaymentAllocation, error) {
	if _, err := s.payments.GetByID(ctx, orgID, paymentID); err != nil {
		return nil, err
	}
	return s.payments.GetAllocations(ctx, paymentID)
}

// IsNotFound reports whether err is the repository's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
