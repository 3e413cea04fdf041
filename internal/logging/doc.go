// Package logging centralizes slog construction and shared structured-field
// conventions for subclean. It offers a console handler for interactive use, a
// JSON handler for machine consumption, attr helpers, and a context carrier
// so task identifiers follow work through the pipeline.
package logging
