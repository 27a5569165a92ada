// Package ingest imports capture metadata from the imagery catalog.
//
// For each monitored location and platform the Ingestor computes a search
// window that resumes after the newest capture already stored, renders the
// platform's catalog query, maps rows onto store.Capture and inserts only
// scenes whose main identifier is new. Re-running ingestion over an
// overlapping window never creates a second row for the same scene.
package ingest
