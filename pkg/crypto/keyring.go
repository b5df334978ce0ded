package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keyring derives per-application signing keys from a single master seed,
// so a fleet of apps can share one root secret while their telemetry keys
// stay isolated.
type Keyring struct {
	master []byte
}

// NewKeyring wraps a 32-byte master seed.
func NewKeyring(master []byte) (*Keyring, error) {
	if len(master) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid master seed size: got %d, want %d", len(master), ed25519.SeedSize)
	}
	k := &Keyring{master: make([]byte, len(master))}
	copy(k.master, master)
	return k, nil
}

// SigningKey derives the deterministic Ed25519 signer for an app/env pair
// using HKDF-SHA256. The same keyring always yields the same key for the
// same pair.
func (k *Keyring) SigningKey(appID, env string) (*Ed25519Signer, error) {
	if appID == "" {
		return nil, fmt.Errorf("appID must not be empty")
	}
	if env == "" {
		return nil, fmt.Errorf("env must not be empty")
	}

	info := "panther/telemetry/" + appID + "/" + env
	hkdfReader := hkdf.New(sha256.New, k.master, []byte("panther-app-kdf"), []byte(info))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdfReader, seed); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}

	return NewEd25519SignerFromSeed(seed, appID+"/"+env)
}
