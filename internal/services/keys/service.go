package keys

import (
	"fmt"
	"strings"

	"chatsecure/internal/crypto"
	"chatsecure/internal/domain"
)

// Service is the key manager.
type Service struct{}

// New returns a key manager.
func New() *Service { return &Service{} }

// Generate derives a deterministic pseudo-email from displayName and
// produces a fresh key pair bound to it. An empty display name is a
// generation error.
func (s *Service) Generate(displayName string) (*crypto.Identity, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, fmt.Errorf("%w: display name is required", domain.ErrKeyGeneration)
	}
	return crypto.GenerateIdentity(displayName)
}

// Import parses a serialized private key, deriving its public counterpart,
// fingerprint and the display name embedded in its identity metadata.
func (s *Service) Import(armoredText string) (*crypto.Identity, error) {
	return crypto.ParsePrivateArmor(armoredText)
}

// Export serializes the private key for download. Pure read.
func (s *Service) Export(id *crypto.Identity) (string, error) {
	return id.PrivateArmor()
}
