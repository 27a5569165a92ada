// Package preflight provides readiness checks for the filesystem paths,
// repository, object store destinations and catalog that earthgazer depends
// on.
//
// These checks run in two contexts:
//   - `earthgazer run` calls RunAll before ingesting and refuses to start
//     when any check fails, so a misconfigured bucket does not strand a batch
//     of captures in transfer_error.
//   - `earthgazer check` prints every result for the operator.
package preflight
