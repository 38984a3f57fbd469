package edi

import (
	"strings"
	"testing"
	"time"
)

func validSubmission() ClaimSubmission {
	dob := time.Date(1980, 3, 14, 0, 0, 0, 0, time.UTC)
	dos := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	return ClaimSubmission{
		Patient: PatientInfo{
			FirstName:   "Jane",
			LastName:    "Doe",
			DateOfBirth: &dob,
			Gender:      "F",
			Address:     &Address{Line1: "12 Main St", City: "Springfield", State: "IL", Zip: "62704"},
		},
		Insurance: InsuranceInfo{
			PayerID:          "60054",
			PayerName:        "Aetna",
			SubscriberID:     "W223344556",
			GroupNumber:      "GRP100",
			RelationshipCode: "18",
		},
		Provider: ProviderInfo{
			NPI:   "1234567893",
			TaxID: "12-3456789",
			Name:  "Springfield Family Practice",
			Address: &Address{
				Line1: "400 Clinic Way", City: "Springfield", State: "IL", Zip: "62704",
			},
		},
		Claim: ClaimInfo{
			ClaimNumber:    "CLM-2024-0001",
			TotalCharges:   250,
			ClaimType:      "professional",
			PlaceOfService: "11",
			Diagnoses: []DiagnosisInfo{
				{Code: "E11.9", Sequence: 1, IsPrimary: true},
				{Code: "I10", Sequence: 2},
			},
			Services: []ServiceInfo{
				{
					LineNumber: 1, CPTCode: "99213", Units: 1, ChargeAmount: 150,
					ServiceDateFrom: &dos, ServiceDateTo: &dos, DiagnosisPointers: []int{1},
				},
				{
					LineNumber: 2, CPTCode: "93000", Units: 1, ChargeAmount: 100,
					ServiceDateFrom: &dos, ServiceDateTo: &dos, DiagnosisPointers: []int{1, 2},
				},
			},
		},
	}
}

func TestValidateClaim_Valid(t *testing.T) {
	res := ValidateClaim(validSubmission())
	if !res.Valid {
		t.Fatalf("expected valid submission, got errors: %v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Errorf("expected no errors, got %v", res.Errors)
	}
}

func TestValidateClaim_NoDiagnoses(t *testing.T) {
	req := validSubmission()
	req.Claim.Diagnoses = nil
	res := ValidateClaim(req)
	if res.Valid {
		t.Fatal("expected invalid submission")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "diagnosis") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a diagnosis error, got %v", res.Errors)
	}
}

func TestValidateClaim_BadDiagnosisPointer(t *testing.T) {
	req := validSubmission()
	req.Claim.Services[0].DiagnosisPointers = []int{5}
	res := ValidateClaim(req)
	if res.Valid {
		t.Fatal("expected invalid submission for out-of-range pointer")
	}
}

func TestValidateClaim_ZeroPointerRejected(t *testing.T) {
	req := validSubmission()
	req.Claim.Services[0].DiagnosisPointers = []int{0}
	if res := ValidateClaim(req); res.Valid {
		t.Fatal("pointer 0 should be rejected (pointers are 1-based)")
	}
}

func TestValidateClaim_BadNPI(t *testing.T) {
	cases := []string{"", "12345", "123456789X", "12345678901"}
	for _, npi := range cases {
		req := validSubmission()
		req.Provider.NPI = npi
		if res := ValidateClaim(req); res.Valid {
			t.Errorf("NPI %q should be rejected", npi)
		}
	}
}

func TestValidateClaim_NonPositiveAmounts(t *testing.T) {
	req := validSubmission()
	req.Claim.Services[0].Units = 0
	req.Claim.Services[1].ChargeAmount = -10
	res := ValidateClaim(req)
	if res.Valid {
		t.Fatal("expected invalid submission")
	}
	if len(res.Errors) < 2 {
		t.Errorf("expected errors for both lines, got %v", res.Errors)
	}
}

func TestValidateClaim_Warnings(t *testing.T) {
	req := validSubmission()
	req.Insurance.GroupNumber = ""
	req.Claim.PlaceOfService = ""
	res := ValidateClaim(req)
	if !res.Valid {
		t.Fatalf("warnings must not block validation: %v", res.Errors)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", res.Warnings)
	}
}

func TestValidateClaim_TooManyModifiers(t *testing.T) {
	req := validSubmission()
	req.Claim.Services[0].Modifiers = []string{"25", "59", "76", "77", "91"}
	if res := ValidateClaim(req); res.Valid {
		t.Fatal("five modifiers should be rejected")
	}
}
