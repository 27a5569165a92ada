// Package main hosts the earthgazer CLI entrypoint and command graph.
//
// Stage commands (ingest, track, backup, composite, run) take the run lock,
// open the repository and the configured catalog and object store, and hand
// off to internal/pipeline. Location, capture, config and platform commands
// work directly against the repository and configuration.
//
// Per-capture failures are recorded on the capture and never fail a command;
// a non-zero exit means a stage could not make progress at all.
package main
