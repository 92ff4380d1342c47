package schema

import "testing"

// assertSortedOrder checks that inputs produce strictly ascending sort keys.
func assertSortedOrder(t *testing.T, inputs []string) {
	t.Helper()
	keys := make([]string, len(inputs))
	for i, s := range inputs {
		keys[i] = NormalizeProvision(s)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Errorf("expected %q (%s) < %q (%s)", inputs[i-1], keys[i-1], inputs[i], keys[i])
		}
	}
}

func TestPlainNumericSequence(t *testing.T) {
	assertSortedOrder(t, []string{"1", "2", "3", "4", "5", "10", "11", "100"})
}

func TestLetterSuffixInsertion(t *testing.T) {
	assertSortedOrder(t, []string{"3", "3A", "3B", "4"})
}

func TestZPrefixInsertion(t *testing.T) {
	assertSortedOrder(t, []string{"3", "3ZA", "3ZB", "3A", "3B", "4"})
}

func TestDoubleLetter(t *testing.T) {
	assertSortedOrder(t, []string{"3A", "3AA", "3AB", "3B"})
}

func TestLetterThenZPrefix(t *testing.T) {
	assertSortedOrder(t, []string{"19D", "19DZA", "19DZB", "19DA", "19DB", "19E"})
}

func TestEnvironmentActRealWorld(t *testing.T) {
	// Environment Act 1995: confirmed document order from position column.
	assertSortedOrder(t, []string{"40", "41", "41A", "41B", "41C", "42"})
}

func TestExactValues(t *testing.T) {
	cases := map[string]string{
		"3":     "003.000.000",
		"3ZA":   "003.001.000",
		"3ZB":   "003.002.000",
		"3A":    "003.010.000",
		"3AA":   "003.010.010",
		"3AB":   "003.010.020",
		"3B":    "003.020.000",
		"4":     "004.000.000",
		"19DZA": "019.040.001",
		"19AZA": "019.010.001",
	}
	for in, want := range cases {
		if got := NormalizeProvision(in); got != want {
			t.Errorf("NormalizeProvision(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmptyString(t *testing.T) {
	if got := NormalizeProvision(""); got != "000.000.000" {
		t.Errorf("got %q", got)
	}
}

func TestJustANumber(t *testing.T) {
	if got := NormalizeProvision("42"); got != "042.000.000" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeProvision("999"); got != "999.000.000" {
		t.Errorf("got %q", got)
	}
}

func TestLowercaseNormalised(t *testing.T) {
	if NormalizeProvision("3a") != NormalizeProvision("3A") {
		t.Error("lowercase should normalise")
	}
	if NormalizeProvision("41za") != NormalizeProvision("41ZA") {
		t.Error("lowercase should normalise")
	}
}

func TestWhitespaceTrimmed(t *testing.T) {
	if NormalizeProvision("  3A  ") != NormalizeProvision("3A") {
		t.Error("whitespace should be trimmed")
	}
}

func TestWithExtentBasic(t *testing.T) {
	if got := WithExtent("023.000.000", "E+W"); got != "023.000.000~E+W" {
		t.Errorf("got %q", got)
	}
}

func TestExtentVariantsSortTogether(t *testing.T) {
	ew := WithExtent("023.000.000", "E+W")
	ni := WithExtent("023.000.000", "NI")
	s := WithExtent("023.000.000", "S")
	if !(ew < ni && ni < s) {
		t.Errorf("extent variants out of order: %q %q %q", ew, ni, s)
	}
}
