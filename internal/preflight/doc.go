// Package preflight provides readiness checks for the filesystem paths and
// external tools the dubbing pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and refuses to start when a
//     required check fails.
//   - The CLI "vietdub status" command renders the same results so an
//     operator can see what is missing before submitting work.
//
// Tool checks for individual stages are optional here; a missing stage tool
// surfaces again through that stage's health check and fails only the jobs
// that need it.
package preflight
