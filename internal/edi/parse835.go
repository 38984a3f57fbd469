package edi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parse835State tracks where the segment walk is inside the 835 loop
// hierarchy.
type parse835State int

const (
	stateHeader parse835State = iota
	stateClaim                // inside a CLP claim-payment loop
	stateService              // inside an SVC service-line loop
)

// Parse835 decodes raw 835 remittance-advice text into a structured
// remittance. The envelope must be readable and declare transaction set 835;
// anything else fails fast with a content-type error. Individual malformed
// segments are collected as warnings and skipped.
func Parse835(raw string) (result ParseResult) {
	result = ParseResult{Errors: []string{}, Warnings: []string{}}

	defer func() {
		if r := recover(); r != nil {
			result = ParseResult{
				Success: false,
				Errors:  []string{fmt.Sprintf("parsing failed: %v", r)},
			}
		}
	}()

	raw = strings.TrimSpace(raw)
	sep, err := DetectSeparators(raw)
	if err != nil {
		result.Errors = append(result.Errors, "not an EDI document: "+err.Error())
		return result
	}

	// Content-type gate: the first ST segment must declare an 835 before any
	// detail parsing happens.
	sc := NewScanner(raw, sep)
	is835 := false
	for seg, ok := sc.Next(); ok; seg, ok = sc.Next() {
		if seg.ID == "ST" {
			is835 = seg.Element(1) == "835"
			break
		}
	}
	if !is835 {
		result.Errors = append(result.Errors, "document is not an 835 remittance advice")
		return result
	}

	rem := &ParsedRemittance{Claims: []RemittanceClaim{}}
	var cur *RemittanceClaim
	var curSvc *RemittanceService
	state := stateHeader
	inPayerLoop := false

	closeClaim := func() {
		if curSvc != nil && cur != nil {
			cur.Services = append(cur.Services, *curSvc)
		}
		curSvc = nil
		if cur != nil {
			rem.Claims = append(rem.Claims, *cur)
		}
		cur = nil
	}

	sc.Reset()
	for seg, ok := sc.Next(); ok; seg, ok = sc.Next() {
		switch seg.ID {
		case "ISA", "GS", "ST", "GE", "IEA":
			// Envelope bookkeeping only.

		case "BPR":
			rem.TotalPaid = parseAmount(seg.Element(2))
			if d := parseX12Date(seg.Element(16)); d != nil {
				rem.CheckDate = d
			}

		case "TRN":
			rem.CheckNumber = seg.Element(2)
			if rem.PayerID == "" {
				rem.PayerID = strings.TrimPrefix(seg.Element(3), "1")
			}

		case "N1":
			switch seg.Element(1) {
			case "PR":
				rem.PayerName = seg.Element(2)
				if id := seg.Element(4); id != "" {
					rem.PayerID = id
				}
				inPayerLoop = true
			default:
				inPayerLoop = false
			}

		case "REF":
			if inPayerLoop && seg.Element(1) == "2U" && rem.PayerID == "" {
				rem.PayerID = seg.Element(2)
			}

		case "LX":
			// Header-number segment; claim loops follow.

		case "CLP":
			closeClaim()
			state = stateClaim
			cur = &RemittanceClaim{
				PatientAccountNumber: seg.Element(1),
				StatusCode:           seg.Element(2),
				ChargedAmount:        parseAmount(seg.Element(3)),
				PaidAmount:           parseAmount(seg.Element(4)),
				PatientAmount:        parseAmount(seg.Element(5)),
				PayerClaimNumber:     seg.Element(7),
				Services:             []RemittanceService{},
			}

		case "NM1":
			if cur != nil && seg.Element(1) == "QC" {
				last, first := seg.Element(3), seg.Element(4)
				cur.PatientName = strings.TrimSpace(first + " " + last)
			}

		case "SVC":
			if cur == nil {
				result.Warnings = append(result.Warnings, "SVC segment outside a claim-payment loop, skipped")
				continue
			}
			if curSvc != nil {
				cur.Services = append(cur.Services, *curSvc)
			}
			state = stateService
			svc := RemittanceService{
				ChargedAmount: parseAmount(seg.Element(2)),
				PaidAmount:    parseAmount(seg.Element(3)),
				Units:         1,
			}
			comp := seg.Composite(1, sep)
			if len(comp) >= 2 {
				svc.CPTCode = comp[1]
				if len(comp) > 2 {
					svc.Modifiers = append(svc.Modifiers, comp[2:]...)
				}
			} else if len(comp) == 1 {
				svc.CPTCode = comp[0]
			}
			if u := seg.Element(5); u != "" {
				svc.Units = parseAmount(u)
			}
			curSvc = &svc

		case "DTM":
			if curSvc != nil && (seg.Element(1) == "472" || seg.Element(1) == "150" || seg.Element(1) == "151") {
				curSvc.ServiceDate = parseX12Date(seg.Element(2))
			}

		case "CAS":
			adjs, warn := parseCAS(seg)
			if warn != "" {
				result.Warnings = append(result.Warnings, warn)
			}
			switch state {
			case stateService:
				if curSvc != nil {
					curSvc.Adjustments = append(curSvc.Adjustments, adjs...)
				}
			case stateClaim:
				if cur != nil {
					cur.Adjustments = append(cur.Adjustments, adjs...)
				}
			default:
				result.Warnings = append(result.Warnings, "CAS segment outside a claim loop, skipped")
			}

		case "AMT":
			if curSvc != nil && seg.Element(1) == "B6" {
				curSvc.AllowedAmount = parseAmount(seg.Element(2))
			}

		case "LQ":
			if curSvc != nil && seg.Element(2) != "" {
				curSvc.RemarkCodes = append(curSvc.RemarkCodes, seg.Element(2))
			}

		case "SE", "PLB", "PER", "N3", "N4", "RDM", "CUR", "DTP":
			// Recognized but not extracted.

		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("unrecognized segment %q skipped", seg.ID))
		}
	}
	closeClaim()

	// Derive totals not carried in the header.
	for _, c := range rem.Claims {
		rem.TotalCharges += c.ChargedAmount
		for _, s := range c.Services {
			rem.TotalAdjusted += s.AdjustedAmount()
		}
		for _, a := range c.Adjustments {
			rem.TotalAdjusted += a.Amount
		}
	}
	if rem.TotalPaid == 0 {
		for _, c := range rem.Claims {
			rem.TotalPaid += c.PaidAmount
		}
	}

	// Patient-responsibility at line level from PR-group adjustments.
	for ci := range rem.Claims {
		for si := range rem.Claims[ci].Services {
			svc := &rem.Claims[ci].Services[si]
			for _, a := range svc.Adjustments {
				if a.GroupCode == "PR" {
					svc.PatientAmount += a.Amount
				}
			}
		}
	}

	if rem.CheckNumber == "" {
		result.Warnings = append(result.Warnings, "remittance has no TRN check number")
	}

	result.Success = true
	result.Remittance = rem
	return result
}

// parseCAS expands one CAS segment into adjustment triples. A segment
// carries one group code and up to six (reason, amount, quantity) sets.
func parseCAS(seg Segment) ([]Adjustment, string) {
	group := seg.Element(1)
	if group == "" {
		return nil, "CAS segment missing group code, skipped"
	}
	var out []Adjustment
	for i := 2; i+1 <= len(seg.Elements); i += 3 {
		reason := seg.Element(i)
		if reason == "" {
			continue
		}
		out = append(out, Adjustment{
			GroupCode:  group,
			ReasonCode: reason,
			Amount:     parseAmount(seg.Element(i + 1)),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Sprintf("CAS segment for group %s carried no adjustments", group)
	}
	return out, ""
}

func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseX12Date accepts CCYYMMDD and YYMMDD forms.
func parseX12Date(s string) *time.Time {
	s = strings.TrimSpace(s)
	var t time.Time
	var err error
	switch len(s) {
	case 8:
		t, err = time.Parse("20060102", s)
	case 6:
		t, err = time.Parse("060102", s)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &t
}
