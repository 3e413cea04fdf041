package textutil

import "unicode"

// Composition summarizes the character makeup of a text run.
type Composition struct {
	Letters int
	Digits  int
	Symbols int
	Spaces  int
	Total   int
}

// Analyze counts character classes in the provided text. Currency and
// percentage marks count as symbols.
func Analyze(text string) Composition {
	var c Composition
	for _, r := range text {
		c.Total++
		switch {
		case unicode.IsLetter(r):
			c.Letters++
		case unicode.IsDigit(r):
			c.Digits++
		case unicode.IsSpace(r):
			c.Spaces++
		default:
			c.Symbols++
		}
	}
	return c
}

// LetterRatio returns the fraction of non-space characters that are letters.
func (c Composition) LetterRatio() float64 {
	visible := c.Total - c.Spaces
	if visible <= 0 {
		return 0
	}
	return float64(c.Letters) / float64(visible)
}

// NumericRatio returns the fraction of non-space characters that are digits
// or symbols (currency marks, percent signs, separators).
func (c Composition) NumericRatio() float64 {
	visible := c.Total - c.Spaces
	if visible <= 0 {
		return 0
	}
	return float64(c.Digits+c.Symbols) / float64(visible)
}
