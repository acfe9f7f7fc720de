// Package canon provides canonical JSON (RFC 8785) and domain-separated
// content hashes.
//
// Golden snapshots of run results are written with Marshal so that they are
// byte-stable across runs and platforms, and suite identity in the run
// history is the DomainSuite hash of a suite's canonical form. canon imports
// nothing internal.
package canon
