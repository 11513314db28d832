// Package preflight provides readiness checks for the filesystem paths and
// template emlwatch depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup. A failing watched-root check is
//     fatal; a failing template check is logged and every candidate fails
//     until the template is fixed.
//   - The CLI "emlwatch status" command renders the same results.
package preflight
