// Package store provides the client's local persistence.
//
// It contains concrete implementations of the domain storage interfaces:
// the credential record as JSON on disk (CredentialFileStore) and the
// decrypted message archive in bbolt (BoltArchive). All methods are
// concurrency-safe via internal locking, and every file write goes through
// a temp file followed by an atomic rename.
package store
