// Package locations validates and imports monitored locations.
//
// Locations arrive either one at a time from the command line or in bulk from
// a CSV file with a header row (name, description, latitude, longitude,
// monitoring_start, monitoring_end, active). Every record is validated before
// any is written, so a bad file leaves the repository untouched.
package locations
