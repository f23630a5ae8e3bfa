// Package optimizer implements the optimizing tier's front half: it lowers a
// function to an ir.Graph using parameter type feedback, canonicalizes every
// operator as it is interned, and discharges static assertions against the
// canonical graph.
//
// PIPELINE:
//
//	ir.Function + feedback
//	  -> builder (scopes, loop and branch phis, phi typing fixed point)
//	  -> Canonicalizer.Build on every operator (fold, identity, reorder)
//	  -> AssertionEvaluator.Finalize (Comparator congruence for phis)
//	  -> CheckLowering (no live StaticAssert survives)
//	  -> *Code
//
// Rewrites are restricted to the explicit identity table in identities.go.
// Each identity carries a type guard; an identity that could change the
// result for -0, NaN or a non-Number operand is not applied.
//
// One compilation owns one graph. Nothing in this package is shared between
// compilations, so functions may be compiled concurrently.
package optimizer
