// Package keys manages creation, import and export of the local identity
// key pair. It validates inputs and delegates the OpenPGP work to
// internal/crypto.
package keys
