package edi

import (
	"math"
	"strings"
	"testing"
)

// sample835 is a two-claim remittance: one partially adjusted payment and one
// authorization denial.
func sample835() string {
	lines := []string{
		"ISA*00*          *00*          *ZZ*" + pad15("AETNA") + "*ZZ*" + pad15("MEDLEDGER") +
			"*240215*0930*^*00501*000004321*0*P*:~",
		"GS*HP*AETNA*MEDLEDGER*20240215*0930*4321*X*005010X221A1~",
		"ST*835*0001~",
		"BPR*I*118.5*C*ACH*CCP*01*999999992*DA*123456*1999999999**01*999988880*DA*98765*20240215~",
		"TRN*1*CHK1001*1999999999~",
		"N1*PR*AETNA*XV*60054~",
		"N1*PE*SPRINGFIELD FAMILY PRACTICE*XX*1234567893~",
		"LX*1~",
		"CLP*CLM-2024-0001*1*150*118.5*10*12*PAYERICN001~",
		"NM1*QC*1*DOE*JANE~",
		"SVC*HC:99213*150*118.5**1~",
		"DTM*472*20240110~",
		"CAS*CO*45*21.5~",
		"CAS*PR*2*10~",
		"AMT*B6*128.5~",
		"CLP*CLM-2024-0002*4*100*0*0*12*PAYERICN002~",
		"NM1*QC*1*SMITH*JOHN~",
		"SVC*HC:93000*100*0**1~",
		"DTM*472*20240112~",
		"CAS*CO*197*100~",
		"LQ*HE*N290~",
		"SE*20*0001~",
		"GE*1*4321~",
		"IEA*1*000004321~",
	}
	return strings.Join(lines, "\n")
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParse835_Header(t *testing.T) {
	res := Parse835(sample835())
	if !res.Success {
		t.Fatalf("parse failed: %v", res.Errors)
	}
	rem := res.Remittance

	if rem.CheckNumber != "CHK1001" {
		t.Errorf("check number = %q", rem.CheckNumber)
	}
	if rem.CheckDate == nil || rem.CheckDate.Format("2006-01-02") != "2024-02-15" {
		t.Errorf("check date = %v", rem.CheckDate)
	}
	if rem.PayerName != "AETNA" {
		t.Errorf("payer name = %q", rem.PayerName)
	}
	if rem.PayerID != "60054" {
		t.Errorf("payer id = %q", rem.PayerID)
	}
	if !almostEqual(rem.TotalPaid, 118.5) {
		t.Errorf("total paid = %v", rem.TotalPaid)
	}
}

func TestParse835_ClaimsAndServices(t *testing.T) {
	res := Parse835(sample835())
	if !res.Success {
		t.Fatalf("parse failed: %v", res.Errors)
	}
	rem := res.Remittance
	if len(rem.Claims) != 2 {
		t.Fatalf("got %d claims, want 2", len(rem.Claims))
	}

	c1 := rem.Claims[0]
	if c1.PatientAccountNumber != "CLM-2024-0001" {
		t.Errorf("account number = %q", c1.PatientAccountNumber)
	}
	if c1.PayerClaimNumber != "PAYERICN001" {
		t.Errorf("payer claim number = %q", c1.PayerClaimNumber)
	}
	if c1.PatientName != "JANE DOE" {
		t.Errorf("patient name = %q", c1.PatientName)
	}
	if c1.StatusCode != "1" {
		t.Errorf("status = %q", c1.StatusCode)
	}
	if len(c1.Services) != 1 {
		t.Fatalf("claim 1: got %d services", len(c1.Services))
	}

	s := c1.Services[0]
	if s.CPTCode != "99213" {
		t.Errorf("cpt = %q", s.CPTCode)
	}
	if !almostEqual(s.ChargedAmount, 150) || !almostEqual(s.PaidAmount, 118.5) {
		t.Errorf("amounts = %v / %v", s.ChargedAmount, s.PaidAmount)
	}
	if !almostEqual(s.AllowedAmount, 128.5) {
		t.Errorf("allowed = %v", s.AllowedAmount)
	}
	if s.ServiceDate == nil || s.ServiceDate.Format("20060102") != "20240110" {
		t.Errorf("service date = %v", s.ServiceDate)
	}
	if len(s.Adjustments) != 2 {
		t.Fatalf("got %d adjustments, want 2", len(s.Adjustments))
	}
	if s.Adjustments[0].GroupCode != "CO" || s.Adjustments[0].ReasonCode != "45" ||
		!almostEqual(s.Adjustments[0].Amount, 21.5) {
		t.Errorf("adjustment 0 = %+v", s.Adjustments[0])
	}
	// PR-group adjustments roll up into the line's patient responsibility.
	if !almostEqual(s.PatientAmount, 10) {
		t.Errorf("patient amount = %v", s.PatientAmount)
	}

	c2 := rem.Claims[1]
	if c2.StatusCode != "4" {
		t.Errorf("claim 2 status = %q", c2.StatusCode)
	}
	if len(c2.Services) != 1 {
		t.Fatalf("claim 2: got %d services", len(c2.Services))
	}
	d := c2.Services[0]
	if !almostEqual(d.PaidAmount, 0) {
		t.Errorf("denied line paid = %v", d.PaidAmount)
	}
	if len(d.Adjustments) != 1 || d.Adjustments[0].ReasonCode != "197" {
		t.Errorf("denial adjustments = %+v", d.Adjustments)
	}
	if len(d.RemarkCodes) != 1 || d.RemarkCodes[0] != "N290" {
		t.Errorf("remark codes = %v", d.RemarkCodes)
	}
}

// The header payment amount must equal the sum of the claim payments.
func TestParse835_TotalsConsistent(t *testing.T) {
	res := Parse835(sample835())
	if !res.Success {
		t.Fatalf("parse failed: %v", res.Errors)
	}
	rem := res.Remittance

	var claimPaid float64
	for _, c := range rem.Claims {
		claimPaid += c.PaidAmount
	}
	if !almostEqual(rem.TotalPaid, claimPaid) {
		t.Errorf("header paid %v != sum of claim payments %v", rem.TotalPaid, claimPaid)
	}
	if !almostEqual(rem.TotalCharges, 250) {
		t.Errorf("total charges = %v", rem.TotalCharges)
	}
	if !almostEqual(rem.TotalAdjusted, 131.5) {
		t.Errorf("total adjusted = %v", rem.TotalAdjusted)
	}
}

func TestParse835_RejectsProse(t *testing.T) {
	res := Parse835("Dear provider,\n\nYour payment is attached.\n")
	if res.Success {
		t.Fatal("prose must not parse")
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected an error")
	}
	if !strings.Contains(res.Errors[0], "not an EDI document") {
		t.Errorf("error = %q", res.Errors[0])
	}
}

func TestParse835_RejectsOtherTransactionSets(t *testing.T) {
	doc := "ISA*00*          *00*          *ZZ*" + pad15("A") + "*ZZ*" + pad15("B") +
		"*240215*0930*^*00501*000000001*0*P*:~GS*HC*A*B*20240215*0930*1*X*005010X222A1~ST*837*0001~SE*2*0001~GE*1*1~IEA*1*000000001~"
	res := Parse835(doc)
	if res.Success {
		t.Fatal("an 837 must not parse as a remittance")
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "not an 835") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v", res.Errors)
	}
}

func TestParse835_UnknownSegmentIsWarning(t *testing.T) {
	doc := strings.Replace(sample835(), "LX*1~", "LX*1~\nZZZ*junk~", 1)
	res := Parse835(doc)
	if !res.Success {
		t.Fatalf("unknown segment must not fail the parse: %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "ZZZ") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning for ZZZ, got %v", res.Warnings)
	}
}

func TestParse835_MissingCheckNumberWarns(t *testing.T) {
	doc := strings.Replace(sample835(), "TRN*1*CHK1001*1999999999~\n", "", 1)
	res := Parse835(doc)
	if !res.Success {
		t.Fatalf("parse failed: %v", res.Errors)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "check number") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a check-number warning, got %v", res.Warnings)
	}
}

func TestParseCAS_MultipleTriples(t *testing.T) {
	sc := NewScanner("CAS*CO*45*21.5*1*253*2.37*1~", DefaultSeparators())
	seg, _ := sc.Next()
	adjs, warn := parseCAS(seg)
	if warn != "" {
		t.Fatalf("unexpected warning %q", warn)
	}
	if len(adjs) != 2 {
		t.Fatalf("got %d adjustments, want 2", len(adjs))
	}
	if adjs[1].ReasonCode != "253" || !almostEqual(adjs[1].Amount, 2.37) {
		t.Errorf("second adjustment = %+v", adjs[1])
	}
}

func TestParseX12Date(t *testing.T) {
	if d := parseX12Date("20240110"); d == nil || d.Format("2006-01-02") != "2024-01-10" {
		t.Errorf("CCYYMMDD parse = %v", d)
	}
	if d := parseX12Date("240110"); d == nil || d.Format("2006-01-02") != "2024-01-10" {
		t.Errorf("YYMMDD parse = %v", d)
	}
	if d := parseX12Date("Jan 10"); d != nil {
		t.Errorf("junk date parsed as %v", d)
	}
}
