package textutil

import "testing"

func TestNormalizeOCR(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"collapses whitespace", "  LIVE \t UPDATE \n", "LIVE UPDATE"},
		{"strips control", "A\x00B\x07C", "ABC"},
		{"fullwidth digits fold", "１２３", "123"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeOCR(tc.in); got != tc.want {
				t.Fatalf("NormalizeOCR(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCompositionRatios(t *testing.T) {
	c := Analyze("$1,234.56 +2.4%")
	if c.Letters != 0 {
		t.Fatalf("unexpected letters: %d", c.Letters)
	}
	if ratio := c.NumericRatio(); ratio != 1.0 {
		t.Fatalf("numeric ratio = %v, want 1.0", ratio)
	}

	c = Analyze("LIVE UPDATE")
	if ratio := c.LetterRatio(); ratio != 1.0 {
		t.Fatalf("letter ratio = %v, want 1.0", ratio)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("Cleaned Video #7"); got != "cleaned_video__7" {
		t.Fatalf("unexpected token: %q", got)
	}
	if got := SanitizeToken("  "); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}
