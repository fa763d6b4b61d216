// Package crypto wraps the OpenPGP operations the client needs.
//
// Contents
//
//   - Identity generation bound to a display name (GenerateIdentity),
//     armored import/export (ParsePrivateArmor, PrivateArmor, PublicArmor)
//   - Public-key fingerprints for display and avatar derivation
//   - Multi-recipient encryption that always includes the sender's own key
//     (Encrypt) and decryption with a lenient signature policy (Decrypt)
//   - A passphrase envelope for key material at rest (Seal, Open)
//
// # Notes
//
// Signature verification failure is deliberately non-fatal: Decrypt returns
// the plaintext with unverified set and the caller decides how to flag it.
package crypto
