package edi

import (
	"time"

	"github.com/google/uuid"
)

// ClaimSubmission is the fully-populated input to 837P validation and
// encoding. Handlers and the claims service assemble it from stored
// entities; the encoder itself never touches the database.
type ClaimSubmission struct {
	Patient   PatientInfo   `json:"patient"`
	Insurance InsuranceInfo `json:"insurance"`
	Provider  ProviderInfo  `json:"provider"`
	Claim     ClaimInfo     `json:"claim"`
}

// PatientInfo carries the demographics encoded into the subscriber/patient
// loops.
type PatientInfo struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      string     `json:"gender,omitempty"` // M, F, U
	Address     *Address   `json:"address,omitempty"`
}

// InsuranceInfo identifies the payer and subscriber for loop 2000B.
type InsuranceInfo struct {
	PayerID          string `json:"payer_id"`
	PayerName        string `json:"payer_name"`
	SubscriberID     string `json:"subscriber_id"`
	GroupNumber      string `json:"group_number,omitempty"`
	RelationshipCode string `json:"relationship_code"` // 18 = self
	SubscriberFirst  string `json:"subscriber_first,omitempty"`
	SubscriberLast   string `json:"subscriber_last,omitempty"`
}

// ProviderInfo identifies the billing/rendering provider (loop 2010AA).
type ProviderInfo struct {
	NPI     string   `json:"npi"`
	TaxID   string   `json:"tax_id,omitempty"`
	Name    string   `json:"name"`
	Address *Address `json:"address,omitempty"`
}

// Address is a postal address used in N3/N4 segments.
type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2,omitempty"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

// ClaimInfo is the claim-level payload: totals, diagnoses, service lines.
type ClaimInfo struct {
	ID             uuid.UUID       `json:"id"`
	ClaimNumber    string          `json:"claim_number"`
	TotalCharges   float64         `json:"total_charges"`
	ClaimType      string          `json:"claim_type"` // professional, institutional
	PlaceOfService string          `json:"place_of_service"`
	Diagnoses      []DiagnosisInfo `json:"diagnoses"`
	Services       []ServiceInfo   `json:"services"`
}

// DiagnosisInfo is one ICD-10 code; Sequence is 1-based and the first entry
// is the principal diagnosis.
type DiagnosisInfo struct {
	Code      string `json:"code"`
	Sequence  int    `json:"sequence"`
	IsPrimary bool   `json:"is_primary"`
}

// ServiceInfo is one billed procedure (loop 2400).
type ServiceInfo struct {
	LineNumber        int        `json:"line_number"`
	CPTCode           string     `json:"cpt_code"`
	Modifiers         []string   `json:"modifiers,omitempty"`
	Description       string     `json:"description,omitempty"`
	Units             float64    `json:"units"`
	ChargeAmount      float64    `json:"charge_amount"`
	ServiceDateFrom   *time.Time `json:"service_date_from,omitempty"`
	ServiceDateTo     *time.Time `json:"service_date_to,omitempty"`
	DiagnosisPointers []int      `json:"diagnosis_pointers"` // 1-based into Diagnoses
	PlaceOfService    string     `json:"place_of_service,omitempty"`
}

// SenderConfig identifies the trading partners for the interchange
// envelope.
type SenderConfig struct {
	SubmitterID    string `json:"submitter_id"`
	SubmitterName  string `json:"submitter_name"`
	ReceiverID     string `json:"receiver_id"`
	ReceiverName   string `json:"receiver_name"`
	UsageIndicator string `json:"usage_indicator"` // T = test, P = production
}

// ValidationResult separates blocking errors from informational warnings.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// EncodeResult is the all-or-nothing output of Encode837P.
type EncodeResult struct {
	Success       bool     `json:"success"`
	EDIContent    string   `json:"edi_content"`
	ControlNumber string   `json:"control_number"`
	SegmentCount  int      `json:"segment_count"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
}

// ParsedRemittance is the structured form of one 835 document.
type ParsedRemittance struct {
	CheckNumber   string              `json:"check_number"`
	CheckDate     *time.Time          `json:"check_date,omitempty"`
	PayerName     string              `json:"payer_name"`
	PayerID       string              `json:"payer_id,omitempty"`
	TotalPaid     float64             `json:"total_paid"`
	TotalAdjusted float64             `json:"total_adjusted"`
	TotalCharges  float64             `json:"total_charges"`
	Claims        []RemittanceClaim   `json:"claims"`
}

// RemittanceClaim is one CLP claim-payment group.
type RemittanceClaim struct {
	PatientName          string              `json:"patient_name"`
	PatientAccountNumber string              `json:"patient_account_number"`
	PayerClaimNumber     string              `json:"payer_claim_number"`
	StatusCode           string              `json:"status_code,omitempty"`
	ChargedAmount        float64             `json:"charged_amount"`
	PaidAmount           float64             `json:"paid_amount"`
	PatientAmount        float64             `json:"patient_amount"`
	Adjustments          []Adjustment        `json:"adjustments,omitempty"`
	Services             []RemittanceService `json:"services"`
}

// RemittanceService is one SVC service-line payment detail.
type RemittanceService struct {
	CPTCode       string       `json:"cpt_code"`
	Modifiers     []string     `json:"modifiers,omitempty"`
	Units         float64      `json:"units"`
	ServiceDate   *time.Time   `json:"service_date,omitempty"`
	ChargedAmount float64      `json:"charged_amount"`
	AllowedAmount float64      `json:"allowed_amount"`
	PaidAmount    float64      `json:"paid_amount"`
	PatientAmount float64      `json:"patient_amount"`
	Adjustments   []Adjustment `json:"adjustments,omitempty"`
	RemarkCodes   []string     `json:"remark_codes,omitempty"`
}

// AdjustedAmount sums the service line's adjustment amounts.
func (s RemittanceService) AdjustedAmount() float64 {
	var total float64
	for _, a := range s.Adjustments {
		total += a.Amount
	}
	return total
}

// Adjustment is one (CAS group, CARC reason, amount) triple.
type Adjustment struct {
	GroupCode  string  `json:"group_code"`  // CO, PR, OA, PI, CR
	ReasonCode string  `json:"reason_code"` // CARC
	Amount     float64 `json:"amount"`
}

// ParseResult is the structured output of Parse835.
type ParseResult struct {
	Success    bool              `json:"success"`
	Remittance *ParsedRemittance `json:"remittance,omitempty"`
	Errors     []string          `json:"errors"`
	Warnings   []string          `json:"warnings"`
}
