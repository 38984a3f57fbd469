package edi

import "testing"

func TestScanner_WalksSegments(t *testing.T) {
	raw := "ST*835*0001~\nBPR*I*100~\nSE*2*0001"
	sc := NewScanner(raw, DefaultSeparators())

	var ids []string
	for seg, ok := sc.Next(); ok; seg, ok = sc.Next() {
		ids = append(ids, seg.ID)
	}
	want := []string{"ST", "BPR", "SE"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("segment %d: got %s, want %s", i, ids[i], want[i])
		}
	}
}

func TestScanner_TrailingSegmentWithoutTerminator(t *testing.T) {
	sc := NewScanner("IEA*1*000000905", DefaultSeparators())
	seg, ok := sc.Next()
	if !ok || seg.ID != "IEA" {
		t.Fatalf("expected trailing IEA, got %+v ok=%v", seg, ok)
	}
	if _, ok := sc.Next(); ok {
		t.Fatal("expected exhausted scanner")
	}
}

func TestScanner_Reset(t *testing.T) {
	sc := NewScanner("AA*1~BB*2~", DefaultSeparators())
	sc.Next()
	sc.Next()
	sc.Reset()
	seg, ok := sc.Next()
	if !ok || seg.ID != "AA" {
		t.Fatalf("reset did not rewind, got %+v", seg)
	}
}

func TestSegment_ElementAndComposite(t *testing.T) {
	sep := DefaultSeparators()
	sc := NewScanner("SVC*HC:99213:25*150*118.5~", sep)
	seg, _ := sc.Next()

	if got := seg.Element(2); got != "150" {
		t.Errorf("Element(2) = %q, want 150", got)
	}
	if got := seg.Element(9); got != "" {
		t.Errorf("out-of-range element should be empty, got %q", got)
	}
	comp := seg.Composite(1, sep)
	if len(comp) != 3 || comp[1] != "99213" || comp[2] != "25" {
		t.Errorf("Composite(1) = %v", comp)
	}
}

func TestSegment_StringRoundTrip(t *testing.T) {
	sep := DefaultSeparators()
	in := "CLP*ACCT1*1*150*118.5*10*12*ICN001~"
	seg, _ := NewScanner(in, sep).Next()
	if got := seg.String(sep); got != in {
		t.Errorf("round trip: got %q, want %q", got, in)
	}
}

func TestDetectSeparators_ShortEnvelopeSniffsElement(t *testing.T) {
	sep, err := DetectSeparators("ISA|00|TEST~GS|HP~")
	if err != nil {
		t.Fatal(err)
	}
	if sep.Element != '|' {
		t.Errorf("element = %c, want |", sep.Element)
	}
	if sep.Segment != '~' {
		t.Errorf("segment = %c, want ~", sep.Segment)
	}
}

func TestDetectSeparators_RejectsNonEDI(t *testing.T) {
	if _, err := DetectSeparators("Dear provider, attached is your remittance."); err == nil {
		t.Fatal("expected an error for non-EDI input")
	}
}

func TestSanitize_StripsActiveDelimiters(t *testing.T) {
	sep := DefaultSeparators()
	got := sanitize("ACME*CLINIC~EAST:1", sep)
	if got != "ACME CLINIC EAST 1" {
		t.Errorf("sanitize = %q", got)
	}
}
