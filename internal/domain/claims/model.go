package claims

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Claim statuses. A claim moves draft -> ready -> submitted and from there
// follows the payer's adjudication outcome.
const (
	StatusDraft     = "draft"
	StatusReady     = "ready"
	StatusSubmitted = "submitted"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusPaid      = "paid"
	StatusDenied    = "denied"
	StatusAppealed  = "appealed"
	StatusVoid      = "void"
)

// statusTransitions defines the allowed lifecycle edges. Paid and void are
// terminal.
var statusTransitions = map[string][]string{
	StatusDraft:     {StatusReady, StatusVoid},
	StatusReady:     {StatusSubmitted, StatusDraft, StatusVoid},
	StatusSubmitted: {StatusAccepted, StatusRejected, StatusPaid, StatusDenied},
	StatusAccepted:  {StatusPaid, StatusDenied},
	StatusRejected:  {StatusDraft, StatusVoid},
	StatusDenied:    {StatusAppealed, StatusVoid},
	StatusAppealed:  {StatusSubmitted},
	StatusPaid:      {},
	StatusVoid:      {},
}

// CanTransition reports whether a claim may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known claim status.
func ValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

// Claim maps to the claim table. Patient demographics, coverage, and
// rendering-provider identity are denormalized onto the claim so a claim is
// self-contained for 837 generation and survives later edits to the source
// records.
type Claim struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrgID       uuid.UUID `db:"org_id" json:"org_id"`
	ClaimNumber string    `db:"claim_number" json:"claim_number"`
	Status      string    `db:"status" json:"status"`

	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	PatientFirstName string     `db:"patient_first_name" json:"patient_first_name"`
	PatientLastName  string     `db:"patient_last_name" json:"patient_last_name"`
	PatientDOB       *time.Time `db:"patient_dob" json:"patient_dob,omitempty"`
	PatientGender    *string    `db:"patient_gender" json:"patient_gender,omitempty"`
	PatientAddress1  *string    `db:"patient_address1" json:"patient_address1,omitempty"`
	PatientAddress2  *string    `db:"patient_address2" json:"patient_address2,omitempty"`
	PatientCity      *string    `db:"patient_city" json:"patient_city,omitempty"`
	PatientState     *string    `db:"patient_state" json:"patient_state,omitempty"`
	PatientZip       *string    `db:"patient_zip" json:"patient_zip,omitempty"`

	PayerID          string  `db:"payer_id" json:"payer_id"`
	PayerName        string  `db:"payer_name" json:"payer_name"`
	SubscriberID     string  `db:"subscriber_id" json:"subscriber_id"`
	SubscriberFirst  *string `db:"subscriber_first" json:"subscriber_first,omitempty"`
	SubscriberLast   *string `db:"subscriber_last" json:"subscriber_last,omitempty"`
	GroupNumber      *string `db:"group_number" json:"group_number,omitempty"`
	RelationshipCode *string `db:"relationship_code" json:"relationship_code,omitempty"`

	ProviderNPI   string  `db:"provider_npi" json:"provider_npi"`
	ProviderTaxID *string `db:"provider_tax_id" json:"provider_tax_id,omitempty"`
	ProviderName  string  `db:"provider_name" json:"provider_name"`
	ProviderAddr1 *string `db:"provider_address1" json:"provider_address1,omitempty"`
	ProviderCity  *string `db:"provider_city" json:"provider_city,omitempty"`
	ProviderState *string `db:"provider_state" json:"provider_state,omitempty"`
	ProviderZip   *string `db:"provider_zip" json:"provider_zip,omitempty"`

	PlaceOfService   *string    `db:"place_of_service" json:"place_of_service,omitempty"`
	TotalCharges     float64    `db:"total_charges" json:"total_charges"`
	PayerClaimNumber *string    `db:"payer_claim_number" json:"payer_claim_number,omitempty"`
	ControlNumber    *string    `db:"control_number" json:"control_number,omitempty"`
	SubmittedAt      *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	StatusReason     *string    `db:"status_reason" json:"status_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	// Loaded on demand; not claim-table columns.
	Diagnoses []*Diagnosis   `db:"-" json:"diagnoses,omitempty"`
	Lines     []*ServiceLine `db:"-" json:"service_lines,omitempty"`
}

// Diagnosis maps to the claim_diagnosis table. Sequence 1 is the principal
// diagnosis.
type Diagnosis struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ClaimID     uuid.UUID `db:"claim_id" json:"claim_id"`
	Sequence    int       `db:"sequence" json:"sequence"`
	Code        string    `db:"code" json:"code"`
	Description *string   `db:"description" json:"description,omitempty"`
}

// ServiceLine maps to the service_line table. DiagnosisPointers are 1-based
// references into the claim's diagnosis list.
type ServiceLine struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ClaimID           uuid.UUID  `db:"claim_id" json:"claim_id"`
	LineNumber        int        `db:"line_number" json:"line_number"`
	CPTCode           string     `db:"cpt_code" json:"cpt_code"`
	Modifiers         []string   `db:"modifiers" json:"modifiers,omitempty"`
	DiagnosisPointers []int      `db:"diagnosis_pointers" json:"diagnosis_pointers,omitempty"`
	Units             float64    `db:"units" json:"units"`
	ChargeAmount      float64    `db:"charge_amount" json:"charge_amount"`
	ServiceDateFrom   *time.Time `db:"service_date_from" json:"service_date_from,omitempty"`
	ServiceDateTo     *time.Time `db:"service_date_to" json:"service_date_to,omitempty"`
	Description       *string    `db:"description" json:"description,omitempty"`
}

// Charge statuses.
const (
	ChargeOpen       = "open"
	ChargePartial    = "partial"
	ChargePaid       = "paid"
	ChargeWrittenOff = "written_off"
)

// Charge is one ledger entry on the patient account, created per service
// line when the claim is marked ready. Payments and adjustments accumulate
// against it; Balance is always derived, never set directly.
type Charge struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrgID          uuid.UUID `db:"org_id" json:"org_id"`
	ClaimID        uuid.UUID `db:"claim_id" json:"claim_id"`
	ServiceLineID  uuid.UUID `db:"service_line_id" json:"service_line_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	CPTCode        string    `db:"cpt_code" json:"cpt_code"`
	Units          float64   `db:"units" json:"units"`
	TotalAmount    float64   `db:"total_amount" json:"total_amount"`
	PaidAmount     float64   `db:"paid_amount" json:"paid_amount"`
	AdjustedAmount float64   `db:"adjusted_amount" json:"adjusted_amount"`
	PatientAmount  float64   `db:"patient_amount" json:"patient_amount"`
	Balance        float64   `db:"balance" json:"balance"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Recalculate derives Balance and Status from the accumulated amounts.
// Balance never goes below zero; overpayments leave a zero balance rather
// than a credit. Patient responsibility stays in the balance because the
// practice still expects to collect it.
func (ch *Charge) Recalculate() {
	total := decimal.NewFromFloat(ch.TotalAmount)
	paid := decimal.NewFromFloat(ch.PaidAmount)
	adjusted := decimal.NewFromFloat(ch.AdjustedAmount)

	bal := total.Sub(paid).Sub(adjusted)
	if bal.IsNegative() {
		bal = decimal.Zero
	}
	ch.Balance, _ = bal.Float64()

	switch {
	case ch.Status == ChargeWrittenOff:
		// Write-offs are explicit and sticky.
	case bal.IsZero():
		ch.Status = ChargePaid
	case paid.IsPositive() || adjusted.IsPositive():
		ch.Status = ChargePartial
	default:
		ch.Status = ChargeOpen
	}
}

// Payment maps to the payment table: one row per remittance check (or manual
// payment) received.
type Payment struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	OrgID        uuid.UUID  `db:"org_id" json:"org_id"`
	RemittanceID *uuid.UUID `db:"remittance_id" json:"remittance_id,omitempty"`
	CheckNumber  string     `db:"check_number" json:"check_number"`
	PayerName    *string    `db:"payer_name" json:"payer_name,omitempty"`
	Amount       float64    `db:"amount" json:"amount"`
	PaymentDate  *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	Method       string     `db:"method" json:"method"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// PaymentAllocation maps to the payment_allocation table: the split of one
// payment across charges, carrying the adjustment and patient portions that
// arrived on the same remittance line.
type PaymentAllocation struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PaymentID            uuid.UUID  `db:"payment_id" json:"payment_id"`
	ChargeID             uuid.UUID  `db:"charge_id" json:"charge_id"`
	ClaimID              uuid.UUID  `db:"claim_id" json:"claim_id"`
	RemittanceLineItemID *uuid.UUID `db:"remittance_line_item_id" json:"remittance_line_item_id,omitempty"`
	Amount               float64    `db:"amount" json:"amount"`
	AdjustedAmount       float64    `db:"adjusted_amount" json:"adjusted_amount"`
	PatientAmount        float64    `db:"patient_amount" json:"patient_amount"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

// NewClaimNumber generates a practice-local claim number. The format is
// stable so payers echo it back in CLP01 and the matcher can key on it.
func NewClaimNumber(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("CLM-%d-%08X", now.Year(), id.ID())
}
