// Package textutil provides text processing utilities for OCR output.
//
// The primary use cases are:
//   - Normalizing recognized text before heuristic pattern checks
//   - Measuring letter/digit composition used by subtitle classification
//   - Sanitizing tokens for safe filesystem use
//
// Normalization applies NFKC so full-width digits, ligatures, and styled
// glyphs emitted by OCR engines compare like their plain equivalents.
package textutil
