package textx

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Μαρία Παπαδοπούλου": "μαρια παπαδοπουλου",
		"Γεώργιος":           "γεωργιοσ",
		"Ιωάννης Ζέρβας":     "ιωαννησ ζερβασ",
		"José García":        "jose garcia",
		"SAP":                "sap",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeKey(t *testing.T) {
	if got := NormalizeKey("  Μηχανικός   Η/Υ "); got != "μηχανικοσ η/υ" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestSimilarityRatio(t *testing.T) {
	if got := SimilarityRatio("abc", "abc"); got != 1 {
		t.Fatalf("identical should be 1, got %v", got)
	}
	if got := SimilarityRatio("", ""); got != 1 {
		t.Fatalf("empty pair should be 1, got %v", got)
	}
	if got := SimilarityRatio("abc", "xyz"); got != 0 {
		t.Fatalf("disjoint should be 0, got %v", got)
	}
	// Case-insensitive.
	if got := SimilarityRatio("Hello World", "hello world"); got != 1 {
		t.Fatalf("case fold should be 1, got %v", got)
	}
	// Latin vs Greek transliterations of the same name barely overlap.
	if got := SimilarityRatio("Γεώργιος Ιωάννου", "Georgios Ioannou"); got >= 0.7 {
		t.Fatalf("cross-script similarity unexpectedly high: %v", got)
	}
}

func TestGreekRatio(t *testing.T) {
	if GreekRatio("hello") != 0 {
		t.Fatal("latin-only should be 0")
	}
	if GreekRatio("αβγ") != 1 {
		t.Fatal("greek-only should be 1")
	}
	if !IsGreek("λογιστής με Softone και 5 χρόνια εμπειρία") {
		t.Fatal("mostly greek query should detect as greek")
	}
	if IsGreek("accountant with Softone experience in Αθήνα") {
		t.Fatal("mostly latin query should not detect as greek")
	}
}
