package edi

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// controlCounter backs interchange/group/transaction control numbers. It is
// seeded from the clock once per process so restarts do not reuse recent
// numbers, then incremented per encode so two claims encoded in the same
// session can never collide.
var controlCounter atomic.Uint64

func init() {
	controlCounter.Store(uint64(time.Now().Unix()) % 1_000_000_000)
}

func nextControlNumber() uint64 {
	return controlCounter.Add(1)
}

// Encode837P serializes a validated claim submission into an ANSI X12
// 005010X222 professional claim document. Callers must run ValidateClaim
// first; the encoder only guards against conditions that would produce a
// structurally broken document. Output is all-or-nothing: on failure the
// content is empty and Errors is populated.
func Encode837P(req ClaimSubmission, cfg SenderConfig) (result EncodeResult) {
	sep := DefaultSeparators()
	return Encode837PWith(req, cfg, sep)
}

// Encode837PWith is Encode837P with an explicit delimiter set.
func Encode837PWith(req ClaimSubmission, cfg SenderConfig, sep Separators) (result EncodeResult) {
	result = EncodeResult{Errors: []string{}, Warnings: []string{}}

	// Malformed input must surface as a structured error, never a panic.
	defer func() {
		if r := recover(); r != nil {
			result = EncodeResult{
				Success: false,
				Errors:  []string{fmt.Sprintf("encoding failed: %v", r)},
			}
		}
	}()

	if len(req.Claim.Services) == 0 || len(req.Claim.Diagnoses) == 0 {
		result.Errors = append(result.Errors, "claim has no services or no diagnoses; validate before encoding")
		return result
	}

	usage := cfg.UsageIndicator
	if usage != "P" {
		usage = "T"
	}

	icn := nextControlNumber()
	controlNumber := fmt.Sprintf("%09d", icn%1_000_000_000)
	gcn := fmt.Sprintf("%d", icn)
	tsn := "0001"

	now := time.Now().UTC()
	dateShort := now.Format("060102")
	dateLong := now.Format("20060102")
	timeHM := now.Format("1504")

	w := newSegmentWriter(sep)

	// Interchange envelope. ISA is fixed-width: ids padded to 15.
	w.Add("ISA",
		"00", strings.Repeat(" ", 10),
		"00", strings.Repeat(" ", 10),
		"ZZ", pad15(cfg.SubmitterID),
		"ZZ", pad15(cfg.ReceiverID),
		dateShort, timeHM,
		"^", "00501", controlNumber, "0", usage, string(sep.Component))
	w.Add("GS", "HC", sanitize(cfg.SubmitterID, sep), sanitize(cfg.ReceiverID, sep),
		dateLong, timeHM, gcn, "X", "005010X222A1")
	w.Add("ST", "837", tsn, "005010X222A1")
	w.Add("BHT", "0019", "00", sanitize(req.Claim.ClaimNumber, sep), dateLong, timeHM, "CH")

	// Loop 1000A/1000B: submitter and receiver.
	w.Add("NM1", "41", "2", sanitize(coalesce(cfg.SubmitterName, cfg.SubmitterID), sep),
		"", "", "", "", "46", sanitize(cfg.SubmitterID, sep))
	w.Add("PER", "IC", sanitize(coalesce(cfg.SubmitterName, cfg.SubmitterID), sep))
	w.Add("NM1", "40", "2", sanitize(coalesce(cfg.ReceiverName, cfg.ReceiverID), sep),
		"", "", "", "", "46", sanitize(cfg.ReceiverID, sep))

	// Loop 2000A: billing provider.
	w.Add("HL", "1", "", "20", "1")
	w.Add("NM1", "85", "2", sanitize(req.Provider.Name, sep), "", "", "", "", "XX", req.Provider.NPI)
	writeAddress(w, req.Provider.Address, sep)
	if req.Provider.TaxID != "" {
		w.Add("REF", "EI", sanitize(req.Provider.TaxID, sep))
	}

	// Loop 2000B: subscriber.
	w.Add("HL", "2", "1", "22", "0")
	rel := req.Insurance.RelationshipCode
	if rel == "" {
		rel = "18" // self
	}
	w.Add("SBR", "P", rel, sanitize(req.Insurance.GroupNumber, sep), "", "", "", "", "", "CI")

	subLast := coalesce(req.Insurance.SubscriberLast, req.Patient.LastName)
	subFirst := coalesce(req.Insurance.SubscriberFirst, req.Patient.FirstName)
	w.Add("NM1", "IL", "1", sanitize(subLast, sep), sanitize(subFirst, sep),
		"", "", "", "MI", sanitize(req.Insurance.SubscriberID, sep))
	writeAddress(w, req.Patient.Address, sep)
	if req.Patient.DateOfBirth != nil {
		w.Add("DMG", "D8", req.Patient.DateOfBirth.Format("20060102"), genderCode(req.Patient.Gender))
	}
	w.Add("NM1", "PR", "2", sanitize(req.Insurance.PayerName, sep), "", "", "", "", "PI",
		sanitize(req.Insurance.PayerID, sep))

	// Loop 2300: claim.
	pos := req.Claim.PlaceOfService
	if pos == "" {
		pos = "11"
	}
	comp := string(sep.Component)
	w.Add("CLM", sanitize(req.Claim.ClaimNumber, sep), amount(req.Claim.TotalCharges),
		"", "", pos+comp+"B"+comp+"1", "Y", "A", "Y", "Y")

	// HI diagnosis segment: ABK qualifier for principal, ABF for others.
	hi := make([]string, 0, len(req.Claim.Diagnoses))
	for i, dx := range req.Claim.Diagnoses {
		qual := "ABF"
		if i == 0 {
			qual = "ABK"
		}
		hi = append(hi, qual+comp+strings.ReplaceAll(sanitize(dx.Code, sep), ".", ""))
	}
	w.Add("HI", hi...)

	// Loop 2400: one per service line.
	for i, svc := range req.Claim.Services {
		w.Add("LX", fmt.Sprintf("%d", i+1))

		proc := "HC" + comp + sanitize(svc.CPTCode, sep)
		for _, m := range svc.Modifiers {
			proc += comp + sanitize(m, sep)
		}
		pointers := make([]string, 0, len(svc.DiagnosisPointers))
		for _, p := range svc.DiagnosisPointers {
			pointers = append(pointers, fmt.Sprintf("%d", p))
		}
		w.Add("SV1", proc, amount(svc.ChargeAmount), "UN", amount(svc.Units), "", "",
			strings.Join(pointers, comp))

		switch {
		case svc.ServiceDateFrom != nil && svc.ServiceDateTo != nil &&
			!svc.ServiceDateFrom.Equal(*svc.ServiceDateTo):
			w.Add("DTP", "472", "RD8",
				svc.ServiceDateFrom.Format("20060102")+"-"+svc.ServiceDateTo.Format("20060102"))
		case svc.ServiceDateFrom != nil:
			w.Add("DTP", "472", "D8", svc.ServiceDateFrom.Format("20060102"))
		default:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("service line %d has no service date", svc.LineNumber))
		}
	}

	// Trailers. SE count includes ST and SE themselves: everything after the
	// GS, plus the SE being added.
	seCount := w.Count() - 2 + 1
	w.Add("SE", fmt.Sprintf("%d", seCount), tsn)
	w.Add("GE", "1", gcn)
	w.Add("IEA", "1", controlNumber)

	result.Success = true
	result.EDIContent = w.String()
	result.ControlNumber = controlNumber
	result.SegmentCount = w.Count()
	return result
}

func writeAddress(w *segmentWriter, a *Address, sep Separators) {
	if a == nil || a.Line1 == "" {
		return
	}
	if a.Line2 != "" {
		w.Add("N3", sanitize(a.Line1, sep), sanitize(a.Line2, sep))
	} else {
		w.Add("N3", sanitize(a.Line1, sep))
	}
	w.Add("N4", sanitize(a.City, sep), sanitize(a.State, sep), sanitize(a.Zip, sep))
}

func genderCode(g string) string {
	switch strings.ToUpper(g) {
	case "M", "MALE":
		return "M"
	case "F", "FEMALE":
		return "F"
	default:
		return "U"
	}
}

// amount formats money/unit values the X12 way: no trailing zeros, no
// currency symbol.
func amount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func pad15(v string) string {
	if len(v) > 15 {
		return v[:15]
	}
	return v + strings.Repeat(" ", 15-len(v))
}
