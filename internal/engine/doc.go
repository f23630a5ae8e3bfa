// Package engine implements the tiering scheduler of tierfold.
//
// Functions start in the baseline tier: the Interpreter runs their source
// with JavaScript Number semantics and records the lattice type of every
// argument as feedback. A tier-up request hands the function and its
// feedback to the optimizer, which builds one graph, canonicalizes it and
// discharges its static assertions. Successful code is installed; calls
// then check the speculated parameter types and either run the code or
// bail out to the baseline.
//
// Tier transitions:
//
//	Unoptimized -> Optimized     explicit or threshold compile succeeded
//	Unoptimized -> Optimizing    threshold compile queued (background mode)
//	Optimizing  -> Optimized     background compile succeeded
//	Optimizing  -> Unoptimized   background compile failed or was superseded
//	Optimized   -> Unoptimized   speculation guard failed (bailout)
//
// Every request carries a version. Versions increase on each tier-up
// request and each bailout; a background compile installs its code only
// if its version is still current, otherwise it is recorded as
// superseded.
//
// CRITICAL PATTERNS:
//
// Logical clock: every CompileReport is stamped with a monotonic seq from
// Clock.Next(). Never use wall-clock timestamps for ordering.
//
// Compile failures are data: an unprovable static assertion produces a
// failed CompileReport, never a failed call.
package engine
