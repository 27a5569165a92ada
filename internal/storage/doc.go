// Package storage addresses object storage by URL.
//
// The pipeline speaks in URLs such as gs://bucket/key and file:///srv/data.
// ObjectStore implementations exist for Google Cloud Storage and the local
// filesystem; Router dispatches calls by URL scheme and bridges copies across
// schemes through a scratch file. Limited throttles any ObjectStore with a
// token bucket so transfer fan-out stays within provider quotas.
package storage
