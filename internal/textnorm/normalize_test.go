package textnorm

import "testing"

func TestNormalizeEquivalence(t *testing.T) {
	forms := []string{"Được   Tài-Trợ", "được tài trợ", "ĐƯỢC TÀI TRỢ"}
	want := Normalize(forms[0])
	if want != "đượctàitrợ" {
		t.Fatalf("unexpected canonical form %q", want)
	}
	for _, f := range forms[1:] {
		if got := Normalize(f); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", f, got, want)
		}
	}
	for _, f := range forms {
		if !Contains("Bài viết · "+f+" · 2 giờ", "được tài trợ") {
			t.Fatalf("keyword test failed for %q", f)
		}
	}
}

func TestNormalizeDecomposed(t *testing.T) {
	// "ợ" written as o + horn + dot below.
	decomposed := "\u0111u\u031bo\u031b\u0323c"
	if Normalize(decomposed) != Normalize("\u0111\u01b0\u1ee3c") {
		t.Fatalf("decomposed form did not fold: %q vs %q", Normalize(decomposed), Normalize("\u0111\u01b0\u1ee3c"))
	}
}

func TestNormalizeSeparators(t *testing.T) {
	in := "Spon\u200bsored \u00a0Ad!"
	if got := Normalize(in); got != "sponsoredad" {
		t.Fatalf("got %q", got)
	}
	if Normalize("") != "" || Normalize("· • —") != "" {
		t.Fatal("punctuation-only input should normalize to empty")
	}
}

func TestMatcher(t *testing.T) {
	m := NewMatcher("paid partnership", "  ", "Sponsored")
	if m.Len() != 2 {
		t.Fatalf("want 2 needles, got %d", m.Len())
	}
	got, ok := m.Match("Paid-Partnership with Brand")
	if !ok || got != "paid partnership" {
		t.Fatalf("unexpected match %q %v", got, ok)
	}
	if _, ok := m.Match("a normal post"); ok {
		t.Fatal("unexpected match")
	}
	if Contains("anything", "") {
		t.Fatal("empty needle must not match")
	}
}
