package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	pgperrors "github.com/ProtonMail/go-crypto/openpgp/errors"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"chatsecure/internal/domain"
)

const (
	messageType = "PGP MESSAGE"

	// identityDomain is the host part of the pseudo-email bound into every
	// generated key. The directory only ever sees the display name; the
	// email exists because OpenPGP user ids want one.
	identityDomain = "chatsecure.local"
)

// Identity is the local user's key pair plus the metadata embedded in it.
type Identity struct {
	DisplayName string
	Email       string
	Fingerprint string

	entity *openpgp.Entity
}

// PublicKey is a peer's parsed public key.
type PublicKey struct {
	DisplayName string
	Fingerprint string

	entity *openpgp.Entity
}

func pgpConfig() *packet.Config {
	return &packet.Config{Algorithm: packet.PubKeyAlgoEdDSA}
}

// GenerateIdentity produces a fresh key pair bound to displayName and a
// pseudo-email derived from it.
func GenerateIdentity(displayName string) (*Identity, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty display name", domain.ErrKeyGeneration)
	}
	entity, err := openpgp.NewEntity(name, "", pseudoEmail(name), pgpConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyGeneration, err)
	}
	return identityFromEntity(entity)
}

// ParsePrivateArmor rehydrates an Identity from an exported private key.
func ParsePrivateArmor(armored string) (*Identity, error) {
	ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil || len(ring) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyParse, err)
	}
	entity := ring[0]
	if entity.PrivateKey == nil {
		return nil, fmt.Errorf("%w: no private key material", domain.ErrKeyParse)
	}
	return identityFromEntity(entity)
}

// ParsePublicArmor parses a peer's public key.
func ParsePublicArmor(armored string) (*PublicKey, error) {
	ring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil || len(ring) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyParse, err)
	}
	entity := ring[0]
	name, _ := primaryName(entity)
	return &PublicKey{
		DisplayName: name,
		Fingerprint: fingerprintOf(entity),
		entity:      entity,
	}, nil
}

func identityFromEntity(entity *openpgp.Entity) (*Identity, error) {
	name, email := primaryName(entity)
	if name == "" {
		return nil, fmt.Errorf("%w: key has no named user id", domain.ErrIdentityExtraction)
	}
	return &Identity{
		DisplayName: name,
		Email:       email,
		Fingerprint: fingerprintOf(entity),
		entity:      entity,
	}, nil
}

// PrivateArmor serializes the private key for export. Pure read.
func (id *Identity) PrivateArmor() (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := id.entity.SerializePrivate(w, nil); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PublicArmor serializes the public half for the directory.
func (id *Identity) PublicArmor() (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := id.entity.Serialize(w); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Public returns the identity's own public key.
func (id *Identity) Public() *PublicKey {
	return &PublicKey{
		DisplayName: id.DisplayName,
		Fingerprint: id.Fingerprint,
		entity:      id.entity,
	}
}

// Encrypt seals plaintext for every key in to plus, always, the signer's
// own key, so the sender can decrypt its own sent history later. The
// result is signed with the sender's private key and armored.
func Encrypt(plaintext []byte, to []*PublicKey, signer *Identity) (string, error) {
	recipients := make([]*openpgp.Entity, 0, len(to)+1)
	seen := make(map[string]bool, len(to)+1)
	for _, pk := range to {
		if pk == nil || seen[pk.Fingerprint] {
			continue
		}
		seen[pk.Fingerprint] = true
		recipients = append(recipients, pk.entity)
	}
	if !seen[signer.Fingerprint] {
		recipients = append(recipients, signer.entity)
	}

	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, messageType, nil)
	if err != nil {
		return "", err
	}
	pw, err := openpgp.Encrypt(aw, recipients, signer.entity, nil, pgpConfig())
	if err != nil {
		return "", err
	}
	if _, err := pw.Write(plaintext); err != nil {
		return "", err
	}
	if err := pw.Close(); err != nil {
		return "", err
	}
	if err := aw.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Decrypt opens an armored ciphertext with the local private key.
//
// verifiers supplies candidate signing keys; unverified reports a signature
// that is missing, by an unknown key, or invalid. Per the lenient-trust
// policy this is not an error: the plaintext is still returned.
func Decrypt(armored string, own *Identity, verifiers []*PublicKey) (plaintext []byte, unverified bool, err error) {
	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrMalformedCiphertext, err)
	}

	ring := openpgp.EntityList{own.entity}
	for _, v := range verifiers {
		if v != nil && v.Fingerprint != own.Fingerprint {
			ring = append(ring, v.entity)
		}
	}

	md, err := openpgp.ReadMessage(block.Body, ring, nil, pgpConfig())
	if err != nil {
		return nil, false, wrapDecryptErr(err)
	}
	body, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, false, wrapDecryptErr(err)
	}
	unverified = !md.IsSigned || md.SignedBy == nil || md.SignatureError != nil
	return body, unverified, nil
}

func wrapDecryptErr(err error) error {
	var structural pgperrors.StructuralError
	var invalid pgperrors.InvalidArgumentError
	if errors.As(err, &structural) || errors.As(err, &invalid) {
		return fmt.Errorf("%w: %v", domain.ErrMalformedCiphertext, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrDecryption, err)
}

func fingerprintOf(e *openpgp.Entity) string {
	return hex.EncodeToString(e.PrimaryKey.Fingerprint[:])
}

func primaryName(e *openpgp.Entity) (name, email string) {
	for _, ident := range e.Identities {
		if ident.UserId == nil {
			continue
		}
		if ident.UserId.Name != "" {
			return ident.UserId.Name, ident.UserId.Email
		}
	}
	return "", ""
}

// pseudoEmail derives a deterministic address from the display name.
func pseudoEmail(displayName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(displayName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	local := b.String()
	if local == "" {
		local = "user"
	}
	return local + "@" + identityDomain
}
