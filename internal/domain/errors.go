package domain

import "errors"

// Error taxonomy. Callers match with errors.Is; sites wrap with %w to keep
// the sentinel reachable through context.
var (
	// ErrKeyGeneration indicates a key pair could not be produced, for
	// example because the display name is empty.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrKeyParse indicates an armored key blob could not be parsed.
	ErrKeyParse = errors.New("key parse failed")

	// ErrIdentityExtraction indicates a parsed key carries no usable
	// identity metadata to recover a display name from.
	ErrIdentityExtraction = errors.New("no identity in key")

	// ErrDecryption indicates a ciphertext was not encrypted for the
	// local key.
	ErrDecryption = errors.New("decryption failed")

	// ErrMalformedCiphertext indicates a blob that cannot be parsed as a
	// ciphertext at all.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrDirectoryUnavailable covers every failed directory call.
	ErrDirectoryUnavailable = errors.New("directory unavailable")

	// ErrChannelConnection covers realtime connect and emit failures.
	ErrChannelConnection = errors.New("channel connection failed")
)
