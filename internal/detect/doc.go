// Package detect locates candidate text regions in decoded frames. The
// default engine shells out to tesseract in TSV mode; an Engine seam lets
// tests substitute canned recognition results. A detector failure on a single
// frame degrades to an empty region set so one bad frame never fails a task.
package detect
