package edi

import "fmt"

// npiLength is the fixed length of a National Provider Identifier.
const npiLength = 10

// ValidateClaim runs the pre-encoding required-field checks. Errors block
// encoding; warnings are informational. Encode837P does not re-validate, so
// callers must check Valid before encoding.
func ValidateClaim(req ClaimSubmission) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if req.Patient.FirstName == "" {
		res.Errors = append(res.Errors, "patient first name is required")
	}
	if req.Patient.LastName == "" {
		res.Errors = append(res.Errors, "patient last name is required")
	}
	if req.Patient.DateOfBirth == nil {
		res.Errors = append(res.Errors, "patient date of birth is required")
	}

	if req.Insurance.PayerID == "" {
		res.Errors = append(res.Errors, "payer id is required")
	}
	if req.Insurance.SubscriberID == "" {
		res.Errors = append(res.Errors, "subscriber id is required")
	}
	if req.Insurance.GroupNumber == "" {
		res.Warnings = append(res.Warnings, "no group number on subscriber record")
	}

	if req.Provider.NPI == "" {
		res.Errors = append(res.Errors, "provider NPI is required")
	} else if !validNPI(req.Provider.NPI) {
		res.Errors = append(res.Errors, fmt.Sprintf("provider NPI %q must be 10 digits", req.Provider.NPI))
	}

	if len(req.Claim.Diagnoses) == 0 {
		res.Errors = append(res.Errors, "at least one diagnosis is required")
	}
	if req.Claim.PlaceOfService == "" {
		res.Warnings = append(res.Warnings, "place of service missing, defaulting to 11 (office)")
	}
	if len(req.Claim.Services) == 0 {
		res.Errors = append(res.Errors, "at least one service line is required")
	}

	for _, svc := range req.Claim.Services {
		prefix := fmt.Sprintf("service line %d:", svc.LineNumber)
		if svc.CPTCode == "" {
			res.Errors = append(res.Errors, prefix+" CPT code is required")
		}
		if svc.Units <= 0 {
			res.Errors = append(res.Errors, prefix+" units must be positive")
		}
		if svc.ChargeAmount <= 0 {
			res.Errors = append(res.Errors, prefix+" charge amount must be positive")
		}
		if len(svc.DiagnosisPointers) == 0 {
			res.Errors = append(res.Errors, prefix+" at least one diagnosis pointer is required")
		}
		for _, p := range svc.DiagnosisPointers {
			if p < 1 || p > len(req.Claim.Diagnoses) {
				res.Errors = append(res.Errors,
					fmt.Sprintf("%s diagnosis pointer %d does not reference a diagnosis", prefix, p))
			}
		}
		if len(svc.Modifiers) > 4 {
			res.Errors = append(res.Errors, prefix+" at most 4 modifiers are allowed")
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func validNPI(npi string) bool {
	if len(npi) != npiLength {
		return false
	}
	for _, r := range npi {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
