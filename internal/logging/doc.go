// Package logging configures structured slog output for multisearch.
// Logs are JSON lines written to a size-rotated file under ~/.multisearch/logs/,
// optionally mirrored to stderr when --debug is set.
package logging
