package detect

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TesseractEngine runs the tesseract binary in TSV mode, feeding frames as
// PNG on stdin. Page segmentation mode 11 (sparse text) suits overlays on
// busy chart backgrounds better than the default block segmentation.
type TesseractEngine struct {
	Binary    string
	Languages string
}

// NewTesseractEngine builds an engine for the given binary and language set.
func NewTesseractEngine(binary, languages string) *TesseractEngine {
	if strings.TrimSpace(binary) == "" {
		binary = "tesseract"
	}
	if strings.TrimSpace(languages) == "" {
		languages = "eng"
	}
	return &TesseractEngine{Binary: binary, Languages: languages}
}

// Recognize invokes tesseract on one PNG image and parses its TSV output.
func (e *TesseractEngine) Recognize(ctx context.Context, pngData []byte) ([]Word, error) {
	cmd := exec.CommandContext(ctx, e.Binary,
		"stdin", "stdout",
		"-l", e.Languages,
		"--psm", "11",
		"tsv",
	)
	cmd.Stdin = bytes.NewReader(pngData)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("tesseract: %w: %s", err, firstLine(detail))
		}
		return nil, fmt.Errorf("tesseract: %w", err)
	}

	return ParseTSV(stdout.String())
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
