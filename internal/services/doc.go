// Package services defines shared utilities consumed by the pipeline stages and
// their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp capture IDs, location names, stage names, and
//     run identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified into the error kind persisted on a capture.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
