package detect

import (
	"bufio"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Tesseract TSV columns, per `tesseract --help-extra`:
// level page_num block_num par_num line_num word_num left top width height conf text
const (
	tsvColumns   = 12
	tsvWordLevel = 5
)

// ParseTSV extracts word-level entries from tesseract TSV output. Rows that
// are not word-level (page/block/line summaries, conf == -1) are skipped.
func ParseTSV(output string) ([]Word, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var words []Word
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		row := scanner.Text()
		if lineNo == 1 && strings.HasPrefix(row, "level\t") {
			continue
		}
		if strings.TrimSpace(row) == "" {
			continue
		}
		fields := strings.Split(row, "\t")
		if len(fields) < tsvColumns-1 {
			return nil, fmt.Errorf("tsv row %d: expected %d columns, got %d", lineNo, tsvColumns, len(fields))
		}

		level, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("tsv row %d: level: %w", lineNo, err)
		}
		if level != tsvWordLevel {
			continue
		}

		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv row %d: conf: %w", lineNo, err)
		}
		if conf < 0 {
			continue
		}

		geom := make([]int, 4)
		for i, col := range []int{6, 7, 8, 9} {
			value, err := strconv.Atoi(fields[col])
			if err != nil {
				return nil, fmt.Errorf("tsv row %d: geometry: %w", lineNo, err)
			}
			geom[i] = value
		}

		block, _ := strconv.Atoi(fields[2])
		par, _ := strconv.Atoi(fields[3])
		line, _ := strconv.Atoi(fields[4])

		text := ""
		if len(fields) >= tsvColumns {
			text = fields[11]
		}

		words = append(words, Word{
			Box:        Rect{Left: geom[0], Top: geom[1], Width: geom[2], Height: geom[3]},
			Line:       LineKey{Block: block, Paragraph: par, Line: line},
			Text:       text,
			Confidence: conf / 100.0,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan tsv: %w", err)
	}
	return words, nil
}

func (r Rect) toRectangle() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}
