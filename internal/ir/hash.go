package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource  = "tierfold/source/v1"
	DomainCompile = "tierfold/compile/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SourceHash computes the content-addressed identity of a function's
// source. The object is whatever canonical form the front end produces;
// equal sources hash equally regardless of map order.
func SourceHash(source map[string]any) (string, error) {
	canonical, err := MarshalCanonical(source)
	if err != nil {
		return "", fmt.Errorf("SourceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSource, canonical), nil
}

// CompileReportID computes the ID of one compilation attempt.
// A function version is identified by its source hash and the scheduler's
// request version; seq disambiguates repeated attempts at one version.
//
// The feedback the compilation specialized on is part of the identity: the
// same source compiled under different parameter types is a different
// function version.
func CompileReportID(function, sourceHash string, feedback []string, version, seq int64) (string, error) {
	fb := make([]any, len(feedback))
	for i, f := range feedback {
		fb[i] = f
	}
	obj := map[string]any{
		"function":    function,
		"source_hash": sourceHash,
		"feedback":    fb,
		"version":     version,
		"seq":         seq,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CompileReportID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainCompile, canonical), nil
}

// MustSourceHash is like SourceHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSourceHash(source map[string]any) string {
	h, err := SourceHash(source)
	if err != nil {
		panic(err)
	}
	return h
}

// MustCompileReportID is like CompileReportID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCompileReportID(function, sourceHash string, feedback []string, version, seq int64) string {
	id, err := CompileReportID(function, sourceHash, feedback, version, seq)
	if err != nil {
		panic(err)
	}
	return id
}
