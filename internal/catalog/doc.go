// Package catalog queries the public satellite imagery index.
//
// RenderQuery turns a platform's field mapping and a location window into a
// SQL statement whose window values are bound as named parameters; Client
// executes statements and returns rows keyed by the projected column names. BigQuery is the production implementation.
package catalog
