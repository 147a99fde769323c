// Package keys manages the secp256k1 wallet keys that sign ledger
// submissions.
//
// Stable:
//   - Pure, deterministic primitives for address formatting and account
//     derivation from a root seed.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore). It is a local-first
//     convenience for operators without an external wallet and may change.
package keys
