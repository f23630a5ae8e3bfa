// Package ir provides the value graph that the optimizing tier compiles into.
//
// This package contains the node arena, the type lattice and the JavaScript
// Number arithmetic used to fold constants. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Nodes are referenced by NodeID (arena index), never by pointer, so loop
//     Phis can be closed after their back edge is built
//   - Global value numbering: one Graph never holds two live nodes with the
//     same kind, aux, type and inputs (see Graph.Verify)
//   - Constants are keyed by raw IEEE-754 bits, so +0 and -0 are different
//     nodes and every NaN folds to one canonical NaN
//   - A Graph belongs to exactly one compilation; there is no package-level
//     interning state
package ir
