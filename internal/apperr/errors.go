// Package apperr defines the error taxonomy shared across the engine.
//
// Per-note and per-attachment errors are isolated and collected into
// the run report; only ErrAuth and a failed catalog fetch abort a run.
package apperr

import "errors"

var (
	// ErrAuth means the remote rejected our credentials. Fatal for
	// the whole run.
	ErrAuth = errors.New("authentication rejected")

	// ErrNetwork is a transient request failure after retries were
	// exhausted. Fails the enclosing note or attachment only.
	ErrNetwork = errors.New("network failure")

	// ErrTransform marks markup the transformer could not interpret;
	// recovered by fencing the raw content verbatim.
	ErrTransform = errors.New("malformed markup")

	// ErrAttachment marks a single asset that could not be fetched;
	// the owning note is still written with a missing-asset marker.
	ErrAttachment = errors.New("attachment unavailable")

	// ErrFilesystem marks a path or write failure that persisted
	// after a sanitization retry.
	ErrFilesystem = errors.New("filesystem failure")

	// ErrCatalog marks structurally inconsistent remote metadata,
	// recovered by the fallback-to-root policy.
	ErrCatalog = errors.New("inconsistent catalog")
)
