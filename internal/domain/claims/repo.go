package claims

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("claims: not found")

type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Claim, error)
	GetByClaimNumber(ctx context.Context, orgID uuid.UUID, claimNumber string) (*Claim, error)
	GetByPayerClaimNumber(ctx context.Context, orgID uuid.UUID, payerClaimNumber string) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	UpdateStatus(ctx context.Context, orgID, id uuid.UUID, status string, reason *string) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	List(ctx context.Context, orgID uuid.UUID, status string, limit, offset int) ([]*Claim, int, error)
	ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]*Claim, int, error)

	// Diagnoses
	AddDiagnosis(ctx context.Context, d *Diagnosis) error
	GetDiagnoses(ctx context.Context, claimID uuid.UUID) ([]*Diagnosis, error)
	DeleteDiagnoses(ctx context.Context, claimID uuid.UUID) error

	// Service lines
	AddLine(ctx context.Context, l *ServiceLine) error
	GetLines(ctx context.Context, claimID uuid.UUID) ([]*ServiceLine, error)
	DeleteLines(ctx context.Context, claimID uuid.UUID) error
}

type ChargeRepository interface {
	Create(ctx context.Context, ch *Charge) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Charge, error)
	GetByServiceLine(ctx context.Context, orgID, serviceLineID uuid.UUID) (*Charge, error)
	FindByPatientCPT(ctx context.Context, orgID, patientID uuid.UUID, cptCode string, serviceDate *time.Time, toleranceDays int) (*Charge, error)
	ListByClaim(ctx context.Context, orgID, claimID uuid.UUID) ([]*Charge, error)
	ListByPatient(ctx context.Context, orgID, patientID uuid.UUID, limit, offset int) ([]*Charge, int, error)
	ListOpenOlderThan(ctx context.Context, orgID uuid.UUID, cutoff time.Time, limit int) ([]*Charge, error)
	Update(ctx context.Context, ch *Charge) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*Payment, error)
	GetByCheckNumber(ctx context.Context, orgID uuid.UUID, checkNumber string) (*Payment, error)
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Payment, int, error)

	AddAllocation(ctx context.Context, a *PaymentAllocation) error
	GetAllocations(ctx context.Context, paymentID uuid.UUID) ([]*PaymentAllocation, error)
	GetAllocationsByCharge(ctx context.Context, chargeID uuid.UUID) ([]*PaymentAllocation, error)
}
